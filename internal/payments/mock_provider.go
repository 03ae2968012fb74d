package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	perr "github.com/example/unison-payments/pkg/errors"
)

// MockProvider settles every transaction immediately. It keeps its own
// registry so GetStatus and webhooks behave like a remote PSP.
type MockProvider struct {
	mu            sync.Mutex
	transactions  map[string]PaymentTransaction
	webhookSecret string
	now           func() time.Time
	newID         func() string
}

type MockOption func(*MockProvider)

// WithWebhookSecret makes the mock verify the _signature field against the
// raw body. Without it the mock trusts every payload.
func WithWebhookSecret(secret string) MockOption {
	return func(p *MockProvider) { p.webhookSecret = secret }
}

func WithMockClock(now func() time.Time) MockOption {
	return func(p *MockProvider) { p.now = now }
}

func NewMockProvider(opts ...MockOption) *MockProvider {
	p := &MockProvider{
		transactions: map[string]PaymentTransaction{},
		now:          func() time.Time { return Timestamp(time.Now()) },
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *MockProvider) Name() string { return ProviderMock }

func (p *MockProvider) RegisterInstrument(_ context.Context, inst PaymentInstrument) (PaymentInstrument, error) {
	return inst, nil
}

func (p *MockProvider) CreateTransaction(_ context.Context, req PaymentTransactionRequest) (PaymentTransaction, error) {
	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	txn := PaymentTransaction{
		TxnID:                p.newID(),
		PersonID:             req.PersonID,
		InstrumentID:         req.InstrumentID,
		Amount:               req.Amount,
		Currency:             currency,
		Status:               StatusSucceeded,
		Provider:             p.Name(),
		Description:          req.Description,
		Counterparty:         req.Counterparty,
		AuthorizationContext: cloneMap(req.AuthorizationContext),
		Metadata:             map[string]any{},
		CreatedAt:            p.now(),
	}
	p.put(txn)
	return txn.clone(), nil
}

func (p *MockProvider) GetStatus(_ context.Context, txnID string) (PaymentTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	txn, ok := p.transactions[txnID]
	if !ok {
		return PaymentTransaction{}, perr.NotFound("transaction not found")
	}
	return txn.clone(), nil
}

func (p *MockProvider) HandleWebhook(_ context.Context, payload map[string]any) (PaymentTransaction, error) {
	if p.webhookSecret != "" {
		raw, _ := payload[WebhookRawBodyField].(string)
		sig, _ := payload[WebhookSignatureField].(string)
		if err := VerifyWebhookSignature(p.webhookSecret, raw, sig); err != nil {
			return PaymentTransaction{}, err
		}
	}

	status := StatusSucceeded
	if s := stringField(payload, "status", ""); s != "" {
		parsed, err := ParseStatus(s)
		if err != nil {
			return PaymentTransaction{}, perr.Provider("webhook status rejected", err)
		}
		status = parsed
	}
	amount, err := decimalField(payload, "amount")
	if err != nil {
		return PaymentTransaction{}, perr.Provider("webhook amount rejected", err)
	}

	txn := PaymentTransaction{
		TxnID:                stringField(payload, "txn_id", p.newID()),
		PersonID:             stringField(payload, "person_id", "unknown"),
		InstrumentID:         stringField(payload, "instrument_id", "unknown"),
		Amount:               amount,
		Currency:             stringField(payload, "currency", DefaultCurrency),
		Status:               status,
		Provider:             p.Name(),
		Description:          stringField(payload, "description", ""),
		Counterparty:         stringField(payload, "counterparty", ""),
		AuthorizationContext: map[string]any{},
		Metadata:             map[string]any{},
		CreatedAt:            p.now(),
	}
	p.put(txn)
	return txn.clone(), nil
}

func (p *MockProvider) put(txn PaymentTransaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactions[txn.TxnID] = txn.clone()
}

func stringField(payload map[string]any, key, fallback string) string {
	if v, ok := payload[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// decimalField reads a JSON number or numeric string; absent means zero.
func decimalField(payload map[string]any, key string) (decimal.Decimal, error) {
	switch v := payload[key].(type) {
	case nil:
		return decimal.Zero, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(v)
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
	}
}
