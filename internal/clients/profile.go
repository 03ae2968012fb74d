package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/example/unison-payments/internal/payments"
	perr "github.com/example/unison-payments/pkg/errors"
)

// ProfileClient reads and writes person profiles on the context service.
type ProfileClient struct {
	svc *ServiceClient
}

var _ payments.ProfileStore = (*ProfileClient)(nil)

func NewProfileClient(svc *ServiceClient) *ProfileClient { return &ProfileClient{svc: svc} }

type profileEnvelope struct {
	Profile map[string]any `json:"profile"`
}

func (p *ProfileClient) GetProfile(ctx context.Context, personID string) (map[string]any, error) {
	resp, err := p.svc.Get(ctx, "/profile/{person}", map[string]string{"person": personID})
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, perr.NotFound("profile not found")
	default:
		return nil, fmt.Errorf("profile fetch %s: status %d", personID, resp.Status)
	}

	var env profileEnvelope
	if err := resp.Decode(&env); err != nil {
		return nil, fmt.Errorf("profile fetch %s: %w", personID, err)
	}
	if env.Profile == nil {
		env.Profile = map[string]any{}
	}
	return env.Profile, nil
}

func (p *ProfileClient) PutProfile(ctx context.Context, personID string, profile map[string]any) error {
	resp, err := p.svc.Post(ctx, "/profile/{person}", map[string]string{"person": personID}, profileEnvelope{Profile: profile})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("profile store %s: status %d", personID, resp.Status)
	}
	return nil
}
