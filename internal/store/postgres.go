// unison-payments/internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/example/unison-payments/internal/payments"
)

// DB is the subset of *pgxpool.Pool the registries need.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Postgres persists instruments and transactions. Both tables are keyed by
// their id and every put is an upsert, so the last write wins. created_at is
// stored at microsecond precision; see payments.Timestamp.
type Postgres struct {
	db DB
}

var (
	_ payments.InstrumentRegistry  = (*Postgres)(nil)
	_ payments.TransactionRegistry = (*Postgres)(nil)
)

func NewPostgres(db DB) *Postgres { return &Postgres{db: db} }

// Connect opens a pool and makes sure the schema exists.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, *Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	pg := NewPostgres(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, pg, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS payment_instruments (
	instrument_id TEXT PRIMARY KEY,
	person_id     TEXT NOT NULL,
	provider      TEXT NOT NULL,
	kind          TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	brand         TEXT NOT NULL DEFAULT '',
	last4         TEXT NOT NULL DEFAULT '',
	expiry        TEXT NOT NULL DEFAULT '',
	handle        TEXT NOT NULL DEFAULT '',
	metadata      JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_transactions (
	txn_id                TEXT PRIMARY KEY,
	person_id             TEXT NOT NULL,
	instrument_id         TEXT NOT NULL,
	amount                NUMERIC NOT NULL,
	currency              TEXT NOT NULL,
	status                TEXT NOT NULL,
	provider              TEXT NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	counterparty          TEXT NOT NULL DEFAULT '',
	authorization_context JSONB NOT NULL DEFAULT '{}',
	metadata              JSONB NOT NULL DEFAULT '{}',
	created_at            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS payment_transactions_person_idx ON payment_transactions (person_id);
`

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate payments schema: %w", err)
	}
	return nil
}

const upsertInstrument = `
INSERT INTO payment_instruments
	(instrument_id, person_id, provider, kind, display_name, brand, last4, expiry, handle, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)
ON CONFLICT (instrument_id) DO UPDATE SET
	person_id = EXCLUDED.person_id,
	provider = EXCLUDED.provider,
	kind = EXCLUDED.kind,
	display_name = EXCLUDED.display_name,
	brand = EXCLUDED.brand,
	last4 = EXCLUDED.last4,
	expiry = EXCLUDED.expiry,
	handle = EXCLUDED.handle,
	metadata = EXCLUDED.metadata,
	created_at = EXCLUDED.created_at`

const selectInstrument = `
SELECT instrument_id, person_id, provider, kind, display_name, brand, last4, expiry, handle, metadata::text, created_at
FROM payment_instruments WHERE instrument_id = $1`

func (p *Postgres) PutInstrument(ctx context.Context, inst payments.PaymentInstrument) error {
	meta, err := encodeJSON(inst.Metadata)
	if err != nil {
		return fmt.Errorf("put instrument %s: %w", inst.InstrumentID, err)
	}
	_, err = p.db.Exec(ctx, upsertInstrument,
		inst.InstrumentID, inst.PersonID, inst.Provider, inst.Kind,
		inst.DisplayName, inst.Brand, inst.Last4, inst.Expiry, inst.Handle,
		meta, payments.Timestamp(inst.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put instrument %s: %w", inst.InstrumentID, err)
	}
	return nil
}

func (p *Postgres) GetInstrument(ctx context.Context, instrumentID string) (payments.PaymentInstrument, bool, error) {
	var (
		inst payments.PaymentInstrument
		meta string
	)
	err := p.db.QueryRow(ctx, selectInstrument, instrumentID).Scan(
		&inst.InstrumentID, &inst.PersonID, &inst.Provider, &inst.Kind,
		&inst.DisplayName, &inst.Brand, &inst.Last4, &inst.Expiry, &inst.Handle,
		&meta, &inst.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.PaymentInstrument{}, false, nil
	}
	if err != nil {
		return payments.PaymentInstrument{}, false, fmt.Errorf("get instrument %s: %w", instrumentID, err)
	}
	if inst.Metadata, err = decodeJSON(meta); err != nil {
		return payments.PaymentInstrument{}, false, fmt.Errorf("get instrument %s: %w", instrumentID, err)
	}
	inst.CreatedAt = inst.CreatedAt.UTC()
	return inst, true, nil
}

const upsertTransaction = `
INSERT INTO payment_transactions
	(txn_id, person_id, instrument_id, amount, currency, status, provider, description, counterparty,
	 authorization_context, metadata, created_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb, $12)
ON CONFLICT (txn_id) DO UPDATE SET
	person_id = EXCLUDED.person_id,
	instrument_id = EXCLUDED.instrument_id,
	amount = EXCLUDED.amount,
	currency = EXCLUDED.currency,
	status = EXCLUDED.status,
	provider = EXCLUDED.provider,
	description = EXCLUDED.description,
	counterparty = EXCLUDED.counterparty,
	authorization_context = EXCLUDED.authorization_context,
	metadata = EXCLUDED.metadata,
	created_at = EXCLUDED.created_at`

const selectTransaction = `
SELECT txn_id, person_id, instrument_id, amount::text, currency, status, provider, description, counterparty,
	authorization_context::text, metadata::text, created_at
FROM payment_transactions WHERE txn_id = $1`

func (p *Postgres) PutTransaction(ctx context.Context, txn payments.PaymentTransaction) error {
	authz, err := encodeJSON(txn.AuthorizationContext)
	if err != nil {
		return fmt.Errorf("put transaction %s: %w", txn.TxnID, err)
	}
	meta, err := encodeJSON(txn.Metadata)
	if err != nil {
		return fmt.Errorf("put transaction %s: %w", txn.TxnID, err)
	}
	_, err = p.db.Exec(ctx, upsertTransaction,
		txn.TxnID, txn.PersonID, txn.InstrumentID, txn.Amount.String(), txn.Currency,
		string(txn.Status), txn.Provider, txn.Description, txn.Counterparty,
		authz, meta, payments.Timestamp(txn.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put transaction %s: %w", txn.TxnID, err)
	}
	return nil
}

func (p *Postgres) GetTransaction(ctx context.Context, txnID string) (payments.PaymentTransaction, bool, error) {
	var (
		txn            payments.PaymentTransaction
		amount, status string
		authz, meta    string
		createdAt      time.Time
	)
	err := p.db.QueryRow(ctx, selectTransaction, txnID).Scan(
		&txn.TxnID, &txn.PersonID, &txn.InstrumentID, &amount, &txn.Currency,
		&status, &txn.Provider, &txn.Description, &txn.Counterparty,
		&authz, &meta, &createdAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return payments.PaymentTransaction{}, false, nil
	}
	if err != nil {
		return payments.PaymentTransaction{}, false, fmt.Errorf("get transaction %s: %w", txnID, err)
	}

	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return payments.PaymentTransaction{}, false, fmt.Errorf("get transaction %s: amount: %w", txnID, err)
	}
	if txn.Status, err = payments.ParseStatus(status); err != nil {
		return payments.PaymentTransaction{}, false, fmt.Errorf("get transaction %s: %w", txnID, err)
	}
	if txn.AuthorizationContext, err = decodeJSON(authz); err != nil {
		return payments.PaymentTransaction{}, false, fmt.Errorf("get transaction %s: %w", txnID, err)
	}
	if txn.Metadata, err = decodeJSON(meta); err != nil {
		return payments.PaymentTransaction{}, false, fmt.Errorf("get transaction %s: %w", txnID, err)
	}
	txn.CreatedAt = createdAt.UTC()
	return txn, true, nil
}

func encodeJSON(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(s string) (map[string]any, error) {
	out := map[string]any{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode jsonb: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
