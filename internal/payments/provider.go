package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	perr "github.com/example/unison-payments/pkg/errors"
)

// Provider is the capability every payment service provider integration
// exposes. The coordinator depends on nothing else.
type Provider interface {
	Name() string
	// RegisterInstrument may enrich the instrument; persistence is the caller's job.
	RegisterInstrument(ctx context.Context, inst PaymentInstrument) (PaymentInstrument, error)
	// CreateTransaction returns a fully populated transaction with a txn_id.
	CreateTransaction(ctx context.Context, req PaymentTransactionRequest) (PaymentTransaction, error)
	// GetStatus fails with a NotFound error for ids unknown to the provider.
	GetStatus(ctx context.Context, txnID string) (PaymentTransaction, error)
	// HandleWebhook turns an inbound notification into a transaction update.
	// Implementations talking to a live PSP must authenticate the payload
	// (see VerifyWebhookSignature) before trusting it.
	HandleWebhook(ctx context.Context, payload map[string]any) (PaymentTransaction, error)
}

// Reserved webhook payload fields populated by the API surface.
const (
	WebhookRawBodyField   = "_raw_body"
	WebhookSignatureField = "_signature"
)

const ProviderMock = "mock"

// NewProvider selects a provider by name. Only the mock exists today, so
// other names fall back to it with a warning.
func NewProvider(name string, log *slog.Logger, opts ...MockOption) Provider {
	if name != ProviderMock {
		if log == nil {
			log = slog.Default()
		}
		log.Warn("unsupported payment provider; defaulting to mock", "provider", name)
	}
	return NewMockProvider(opts...)
}

// VerifyWebhookSignature checks a hex HMAC-SHA256 of rawBody under secret.
func VerifyWebhookSignature(secret, rawBody, signature string) error {
	if signature == "" {
		return perr.Provider("webhook signature missing", nil)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rawBody))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return perr.Provider("webhook signature invalid", nil)
	}
	return nil
}

// SignWebhook is the counterpart of VerifyWebhookSignature, used by tests and tooling.
func SignWebhook(secret, rawBody string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rawBody))
	return hex.EncodeToString(mac.Sum(nil))
}
