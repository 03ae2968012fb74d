package payments

import (
	"context"
	"fmt"
)

// Vault stores instrument secrets outside the instrument registry.
type Vault interface {
	StoreSecret(ctx context.Context, key string, secret VaultSecret) error
	// LoadSecret returns a NotFound error when no secret exists at key.
	LoadSecret(ctx context.Context, key string) (VaultSecret, error)
}

type VaultSecret struct {
	Provider string `json:"provider"`
	Kind     string `json:"kind"`
	Token    string `json:"token"`
}

func VaultKey(personID, instrumentID string) string {
	return fmt.Sprintf("payment:%s:%s", personID, instrumentID)
}

// ProfileStore holds the per-person profile document that mirrors instrument
// metadata. Profiles are opaque documents; the coordinator only touches
// payments.instruments.
type ProfileStore interface {
	GetProfile(ctx context.Context, personID string) (map[string]any, error)
	PutProfile(ctx context.Context, personID string, profile map[string]any) error
}

// EventSink delivers one payment event. Errors are reported to EventLogger,
// which swallows them.
type EventSink interface {
	Emit(ctx context.Context, ev PaymentEvent) error
}

// EventRecorder is what the coordinator needs from the audit trail.
type EventRecorder interface {
	LogEvent(ctx context.Context, ev PaymentEvent)
}
