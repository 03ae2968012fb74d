package payments

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	perr "github.com/example/unison-payments/pkg/errors"
	m "github.com/example/unison-payments/pkg/metrics"
)

// Deps wires the coordinator. Provider is required; Vault, Profiles and
// Events are optional and every failure they report is swallowed.
type Deps struct {
	Provider     Provider
	Vault        Vault
	Profiles     ProfileStore
	Events       EventRecorder
	Instruments  InstrumentRegistry
	Transactions TransactionRegistry
	Logger       *slog.Logger
	Now          func() time.Time
}

// Service coordinates provider calls, vault access, profile mirroring and
// event logging, and owns the instrument and transaction registries.
type Service struct {
	provider     Provider
	vault        Vault
	profiles     ProfileStore
	events       EventRecorder
	instruments  InstrumentRegistry
	transactions TransactionRegistry
	log          *slog.Logger
	now          func() time.Time
}

func NewService(d Deps) (*Service, error) {
	if d.Provider == nil {
		return nil, fmt.Errorf("payments: provider is required")
	}
	s := &Service{
		provider:     d.Provider,
		vault:        d.Vault,
		profiles:     d.Profiles,
		events:       d.Events,
		instruments:  d.Instruments,
		transactions: d.Transactions,
		log:          d.Logger,
		now:          d.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.events == nil {
		s.events = NewEventLogger(nil, s.log)
	}
	if s.instruments == nil || s.transactions == nil {
		mem := NewMemoryRegistry()
		if s.instruments == nil {
			s.instruments = mem
		}
		if s.transactions == nil {
			s.transactions = mem
		}
	}
	if s.now == nil {
		s.now = func() time.Time { return Timestamp(time.Now()) }
	}
	return s, nil
}

// ProviderName is the identity webhooks must be addressed to.
func (s *Service) ProviderName() string { return s.provider.Name() }

// RegisterInstrument enriches the instrument through the provider, stores
// token in the vault, records the instrument and mirrors its non-secret
// fields into the owner's profile. Only provider errors are returned.
func (s *Service) RegisterInstrument(ctx context.Context, inst PaymentInstrument, token string) (PaymentInstrument, error) {
	if inst.InstrumentID == "" {
		inst.InstrumentID = uuid.NewString()
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = s.now()
	}
	inst.Metadata = scrubMetadata(inst.Metadata, token)
	delete(inst.Metadata, MetadataVaultKey)

	registered, err := s.provider.RegisterInstrument(ctx, inst)
	if err != nil {
		return PaymentInstrument{}, asProviderError("register instrument", err)
	}
	registered.Metadata = scrubMetadata(registered.Metadata, token)
	registered.CreatedAt = Timestamp(registered.CreatedAt)

	if key, ok := s.storeInstrumentSecret(ctx, registered, token); ok {
		registered.Metadata[MetadataVaultKey] = key
	}

	if err := s.instruments.PutInstrument(ctx, registered); err != nil {
		return PaymentInstrument{}, fmt.Errorf("store instrument %s: %w", registered.InstrumentID, err)
	}

	s.mirrorInstrument(ctx, registered)

	s.events.LogEvent(ctx, PaymentEvent{
		EventType:      EventInstrumentRegistered,
		SubjectID:      registered.InstrumentID,
		PersonID:       registered.PersonID,
		Provider:       optional(registered.Provider),
		Status:         "registered",
		InstrumentKind: optional(registered.Kind),
	})
	return registered.clone(), nil
}

// GetInstrument returns a NotFound error for unknown ids.
func (s *Service) GetInstrument(ctx context.Context, instrumentID string) (PaymentInstrument, error) {
	inst, ok, err := s.instruments.GetInstrument(ctx, instrumentID)
	if err != nil {
		return PaymentInstrument{}, fmt.Errorf("load instrument %s: %w", instrumentID, err)
	}
	if !ok {
		return PaymentInstrument{}, perr.NotFound("instrument not found")
	}
	return inst, nil
}

// CreateTransaction charges a registered instrument. A missing provider
// token is resolved from the vault; failing to resolve one is not an error.
func (s *Service) CreateTransaction(ctx context.Context, req PaymentTransactionRequest) (PaymentTransaction, error) {
	inst, err := s.GetInstrument(ctx, req.InstrumentID)
	if err != nil {
		return PaymentTransaction{}, err
	}
	if inst.PersonID != req.PersonID {
		return PaymentTransaction{}, perr.Forbidden("instrument does not belong to person")
	}
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	if req.ProviderToken == "" {
		req.ProviderToken = s.loadInstrumentSecret(ctx, inst)
	}

	txn, err := s.provider.CreateTransaction(ctx, req)
	if err != nil {
		return PaymentTransaction{}, asProviderError("create transaction", err)
	}
	txn = txn.clone()
	txn.CreatedAt = Timestamp(txn.CreatedAt)

	if err := s.transactions.PutTransaction(ctx, txn); err != nil {
		return PaymentTransaction{}, fmt.Errorf("store transaction %s: %w", txn.TxnID, err)
	}

	s.events.LogEvent(ctx, transactionEvent(txn, req.Surface, inst.Kind))
	return txn, nil
}

// GetTransactionStatus prefers the local registry and falls back to the
// provider for transactions this instance has not seen.
func (s *Service) GetTransactionStatus(ctx context.Context, txnID string) (PaymentTransaction, error) {
	txn, ok, err := s.transactions.GetTransaction(ctx, txnID)
	if err != nil {
		return PaymentTransaction{}, fmt.Errorf("load transaction %s: %w", txnID, err)
	}
	if ok {
		return txn, nil
	}

	txn, err = s.provider.GetStatus(ctx, txnID)
	if err != nil {
		if perr.CodeOf(err) == perr.CodeNotFound {
			return PaymentTransaction{}, err
		}
		return PaymentTransaction{}, asProviderError("get status", err)
	}
	txn = txn.clone()
	txn.CreatedAt = Timestamp(txn.CreatedAt)
	return txn, nil
}

// ProcessWebhook applies a provider notification. The result overwrites any
// registry entry with the same txn_id.
func (s *Service) ProcessWebhook(ctx context.Context, providerName string, payload map[string]any) (PaymentTransaction, error) {
	if providerName != s.provider.Name() {
		return PaymentTransaction{}, perr.UnknownProvider(providerName)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	txn, err := s.provider.HandleWebhook(ctx, payload)
	if err != nil {
		return PaymentTransaction{}, asProviderError("handle webhook", err)
	}
	txn = txn.clone()
	txn.CreatedAt = Timestamp(txn.CreatedAt)

	if err := s.transactions.PutTransaction(ctx, txn); err != nil {
		return PaymentTransaction{}, fmt.Errorf("store transaction %s: %w", txn.TxnID, err)
	}

	var kind string
	if inst, ok, err := s.instruments.GetInstrument(ctx, txn.InstrumentID); err == nil && ok {
		kind = inst.Kind
	}
	s.events.LogEvent(ctx, transactionEvent(txn, "", kind))
	return txn, nil
}

func (s *Service) storeInstrumentSecret(ctx context.Context, inst PaymentInstrument, token string) (string, bool) {
	if token == "" || s.vault == nil {
		return "", false
	}
	key := VaultKey(inst.PersonID, inst.InstrumentID)
	secret := VaultSecret{Provider: inst.Provider, Kind: inst.Kind, Token: token}
	if err := s.vault.StoreSecret(ctx, key, secret); err != nil {
		m.IncSoftFailure("vault", "store")
		s.log.Debug("vault store failed", "vault_key", key, "err", err)
		return "", false
	}
	return key, true
}

func (s *Service) loadInstrumentSecret(ctx context.Context, inst PaymentInstrument) string {
	key := inst.VaultKey()
	if key == "" || s.vault == nil {
		return ""
	}
	secret, err := s.vault.LoadSecret(ctx, key)
	if err != nil {
		if perr.CodeOf(err) != perr.CodeNotFound {
			m.IncSoftFailure("vault", "load")
			s.log.Debug("vault fetch failed", "vault_key", key, "err", err)
		}
		return ""
	}
	return secret.Token
}

// mirrorInstrument replaces the instrument's entry in the owner's profile.
// A profile that cannot be read (other than not found) is left untouched.
func (s *Service) mirrorInstrument(ctx context.Context, inst PaymentInstrument) {
	if s.profiles == nil {
		return
	}
	profile, err := s.profiles.GetProfile(ctx, inst.PersonID)
	switch {
	case err == nil:
	case perr.CodeOf(err) == perr.CodeNotFound:
		profile = nil
	default:
		m.IncSoftFailure("profile", "get")
		s.log.Debug("payment instrument metadata persistence failed", "person_id", inst.PersonID, "err", err)
		return
	}

	profile = mergeInstrumentMirror(profile, inst)
	if err := s.profiles.PutProfile(ctx, inst.PersonID, profile); err != nil {
		m.IncSoftFailure("profile", "put")
		s.log.Debug("payment instrument metadata persistence failed", "person_id", inst.PersonID, "err", err)
	}
}

func mergeInstrumentMirror(profile map[string]any, inst PaymentInstrument) map[string]any {
	if profile == nil {
		profile = map[string]any{}
	}
	section, ok := profile["payments"].(map[string]any)
	if !ok {
		section = map[string]any{}
	}
	existing, _ := section["instruments"].([]any)

	entries := make([]any, 0, len(existing)+1)
	for _, e := range existing {
		if entry, ok := e.(map[string]any); ok && entry["instrument_id"] == inst.InstrumentID {
			continue
		}
		entries = append(entries, e)
	}
	entries = append(entries, instrumentMirror(inst))

	section["instruments"] = entries
	profile["payments"] = section
	return profile
}

// instrumentMirror holds display fields and the vault reference only.
func instrumentMirror(inst PaymentInstrument) map[string]any {
	var vaultKey any
	if key := inst.VaultKey(); key != "" {
		vaultKey = key
	}
	return map[string]any{
		"instrument_id": inst.InstrumentID,
		"provider":      inst.Provider,
		"kind":          inst.Kind,
		"display_name":  inst.DisplayName,
		"brand":         inst.Brand,
		"last4":         inst.Last4,
		"expiry":        inst.Expiry,
		"handle":        inst.Handle,
		"vault_key":     vaultKey,
		"created_at":    inst.CreatedAt.Format(time.RFC3339Nano),
	}
}

var secretMetadataKeys = []string{"token", "provider_token"}

// scrubMetadata deep-copies md without raw token entries. Secret keys and
// values equal to token are dropped at every depth, including list items.
func scrubMetadata(md map[string]any, token string) map[string]any {
	out := cloneMap(md)
	scrubMap(out, token)
	return out
}

func scrubMap(md map[string]any, token string) {
	for _, k := range secretMetadataKeys {
		delete(md, k)
	}
	for k, v := range md {
		if isToken(v, token) {
			delete(md, k)
			continue
		}
		md[k] = scrubValue(v, token)
	}
}

func scrubValue(v any, token string) any {
	switch x := v.(type) {
	case map[string]any:
		scrubMap(x, token)
		return x
	case []any:
		kept := x[:0]
		for _, e := range x {
			if !isToken(e, token) {
				kept = append(kept, scrubValue(e, token))
			}
		}
		return kept
	default:
		return v
	}
}

func isToken(v any, token string) bool {
	s, ok := v.(string)
	return ok && token != "" && s == token
}

func asProviderError(op string, err error) error {
	var coded perr.E
	if stderrors.As(err, &coded) {
		return err
	}
	return perr.Provider(op+" failed", err)
}
