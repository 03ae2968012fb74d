package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusCreated    PaymentStatus = "created"
	StatusAuthorized PaymentStatus = "authorized"
	StatusSucceeded  PaymentStatus = "succeeded"
	StatusFailed     PaymentStatus = "failed"
)

// ParseStatus accepts the lowercase wire names only.
func ParseStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(strings.TrimSpace(s)); st {
	case StatusCreated, StatusAuthorized, StatusSucceeded, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("invalid payment status %q", s)
	}
}

const DefaultCurrency = "USD"

// Timestamp normalizes t to UTC with microsecond precision, the finest
// resolution a Postgres TIMESTAMPTZ keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// MetadataVaultKey is the only metadata entry allowed to reference a secret.
const MetadataVaultKey = "vault_key"

// PaymentInstrument is a tokenized funding source. Display fields are non-secret.
type PaymentInstrument struct {
	InstrumentID string         `json:"instrument_id"`
	PersonID     string         `json:"person_id"`
	Provider     string         `json:"provider"`
	Kind         string         `json:"kind"`
	DisplayName  string         `json:"display_name,omitempty"`
	Brand        string         `json:"brand,omitempty"`
	Last4        string         `json:"last4,omitempty"`
	Expiry       string         `json:"expiry,omitempty"`
	Handle       string         `json:"handle,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// VaultKey returns the metadata vault reference, if any.
func (i PaymentInstrument) VaultKey() string {
	v, _ := i.Metadata[MetadataVaultKey].(string)
	return v
}

func (i PaymentInstrument) clone() PaymentInstrument {
	i.Metadata = cloneMap(i.Metadata)
	return i
}

// PaymentTransactionRequest is consumed once by CreateTransaction and never stored.
type PaymentTransactionRequest struct {
	PersonID             string
	InstrumentID         string
	Amount               decimal.Decimal
	Currency             string
	Description          string
	Counterparty         string
	AuthorizationContext map[string]any
	ProviderToken        string
	Surface              string
}

type PaymentTransaction struct {
	TxnID                string          `json:"txn_id"`
	PersonID             string          `json:"person_id"`
	InstrumentID         string          `json:"instrument_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Status               PaymentStatus   `json:"status"`
	Provider             string          `json:"provider"`
	Description          string          `json:"description,omitempty"`
	Counterparty         string          `json:"counterparty,omitempty"`
	AuthorizationContext map[string]any  `json:"authorization_context"`
	Metadata             map[string]any  `json:"metadata"`
	CreatedAt            time.Time       `json:"created_at"`
}

func (t PaymentTransaction) clone() PaymentTransaction {
	t.AuthorizationContext = cloneMap(t.AuthorizationContext)
	t.Metadata = cloneMap(t.Metadata)
	return t
}

// cloneMap copies nested maps and slices too, and never returns nil so JSON
// always renders {}.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
