package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/example/unison-payments/internal/payments"
	perr "github.com/example/unison-payments/pkg/errors"
)

// VaultClient keeps instrument secrets in the storage service's KV vault.
type VaultClient struct {
	svc *ServiceClient
}

var _ payments.Vault = (*VaultClient)(nil)

func NewVaultClient(svc *ServiceClient) *VaultClient { return &VaultClient{svc: svc} }

type vaultEnvelope struct {
	Value payments.VaultSecret `json:"value"`
}

func (v *VaultClient) StoreSecret(ctx context.Context, key string, secret payments.VaultSecret) error {
	resp, err := v.svc.Put(ctx, "/kv/vault/{key}", map[string]string{"key": key}, vaultEnvelope{Value: secret})
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusCreated {
		return fmt.Errorf("vault store %s: status %d", key, resp.Status)
	}
	return nil
}

func (v *VaultClient) LoadSecret(ctx context.Context, key string) (payments.VaultSecret, error) {
	resp, err := v.svc.Get(ctx, "/kv/vault/{key}", map[string]string{"key": key})
	if err != nil {
		return payments.VaultSecret{}, err
	}
	switch resp.Status {
	case http.StatusOK:
	case http.StatusNotFound:
		return payments.VaultSecret{}, perr.NotFound("vault entry not found")
	default:
		return payments.VaultSecret{}, fmt.Errorf("vault fetch %s: status %d", key, resp.Status)
	}

	var env vaultEnvelope
	if err := resp.Decode(&env); err != nil {
		return payments.VaultSecret{}, fmt.Errorf("vault fetch %s: %w", key, err)
	}
	if env.Value.Token == "" {
		return payments.VaultSecret{}, perr.NotFound("vault entry has no token")
	}
	return env.Value, nil
}
