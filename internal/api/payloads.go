package api

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/unison-payments/internal/payments"
	perr "github.com/example/unison-payments/pkg/errors"
)

const defaultProvider = "mock"

// InstrumentPayload is the body of POST /payments/instruments. Token is a
// provider reference only; it never leaves the vault once accepted.
type InstrumentPayload struct {
	PersonID    string         `json:"person_id"`
	Provider    string         `json:"provider"`
	Kind        string         `json:"kind"`
	DisplayName string         `json:"display_name"`
	Brand       string         `json:"brand"`
	Last4       string         `json:"last4"`
	Expiry      string         `json:"expiry"`
	Handle      string         `json:"handle"`
	Metadata    map[string]any `json:"metadata"`
	Token       string         `json:"token"`
}

func (p *InstrumentPayload) Normalize() error {
	p.PersonID = strings.TrimSpace(p.PersonID)
	if p.PersonID == "" {
		return perr.Validation("person_id is required")
	}
	if p.Provider = strings.TrimSpace(p.Provider); p.Provider == "" {
		p.Provider = defaultProvider
	}
	if p.Kind = strings.TrimSpace(p.Kind); p.Kind == "" {
		p.Kind = defaultProvider
	}
	return nil
}

// Instrument leaves InstrumentID empty; the coordinator assigns one.
func (p InstrumentPayload) Instrument() payments.PaymentInstrument {
	return payments.PaymentInstrument{
		PersonID:    p.PersonID,
		Provider:    p.Provider,
		Kind:        p.Kind,
		DisplayName: p.DisplayName,
		Brand:       p.Brand,
		Last4:       p.Last4,
		Expiry:      p.Expiry,
		Handle:      p.Handle,
		Metadata:    p.Metadata,
	}
}

// TransactionPayload is the body of POST /payments/transactions.
type TransactionPayload struct {
	PersonID             string          `json:"person_id"`
	InstrumentID         string          `json:"instrument_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Description          string          `json:"description"`
	Counterparty         string          `json:"counterparty"`
	AuthorizationContext map[string]any  `json:"authorization_context"`
	Surface              string          `json:"surface"`
}

func (p *TransactionPayload) Normalize() error {
	p.PersonID = strings.TrimSpace(p.PersonID)
	p.InstrumentID = strings.TrimSpace(p.InstrumentID)
	switch {
	case p.PersonID == "":
		return perr.Validation("person_id is required")
	case p.InstrumentID == "":
		return perr.Validation("instrument_id is required")
	case !p.Amount.IsPositive():
		return perr.Validation("amount must be greater than zero")
	}

	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = payments.DefaultCurrency
	}
	if len(p.Currency) != 3 || strings.Trim(p.Currency, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
		return perr.Validation("currency must be a 3-letter code")
	}
	if p.AuthorizationContext == nil {
		p.AuthorizationContext = map[string]any{}
	}
	return nil
}

func (p TransactionPayload) Request() payments.PaymentTransactionRequest {
	return payments.PaymentTransactionRequest{
		PersonID:             p.PersonID,
		InstrumentID:         p.InstrumentID,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Description:          p.Description,
		Counterparty:         p.Counterparty,
		AuthorizationContext: p.AuthorizationContext,
		Surface:              p.Surface,
	}
}

// CheckApproval enforces explicit approval. Only a boolean true counts;
// "true" or 1 are rejected.
func CheckApproval(required bool, authz map[string]any) error {
	if !required {
		return nil
	}
	if approved, ok := authz["approved"].(bool); ok && approved {
		return nil
	}
	return perr.Forbidden("payment requires explicit approval")
}

func decodeBody(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return perr.Wrap(perr.CodeValidation, "invalid JSON body", err)
	}
	return nil
}

// WebhookPayload turns a raw webhook body into the provider payload. A body
// that is not a JSON object becomes an empty payload. The raw text is always
// attached so providers can verify signatures over it.
func WebhookPayload(raw []byte, signature string) map[string]any {
	payload := map[string]any{}
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err == nil {
		if obj, ok := decoded.(map[string]any); ok {
			payload = obj
		}
	}
	payload[payments.WebhookRawBodyField] = string(raw)
	if signature != "" {
		payload[payments.WebhookSignatureField] = signature
	}
	return payload
}
