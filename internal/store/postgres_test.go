package store

import (
	"context"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/unison-payments/internal/payments"
)

// fakeDB keeps upsert arguments per table and replays them as rows. Select
// column order matches insert argument order, which the fake relies on.
type fakeDB struct {
	mu     sync.Mutex
	tables map[string]map[string][]any
	execs  []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{tables: map[string]map[string][]any{
		"payment_instruments":  {},
		"payment_transactions": {},
	}}
}

func tableOf(sql string) string {
	if strings.Contains(sql, "payment_transactions") {
		return "payment_transactions"
	}
	return "payment_instruments"
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if strings.Contains(sql, "INSERT INTO") {
		f.tables[tableOf(sql)][args[0].(string)] = args
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := f.tables[tableOf(sql)]
	values, ok := table[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: values}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func sampleInstrument() payments.PaymentInstrument {
	return payments.PaymentInstrument{
		InstrumentID: "i1",
		PersonID:     "p1",
		Provider:     "mock",
		Kind:         "card",
		Brand:        "visa",
		Last4:        "4242",
		Metadata:     map[string]any{"vault_key": "payment:p1:i1"},
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sampleTransaction(id string, status payments.PaymentStatus) payments.PaymentTransaction {
	return payments.PaymentTransaction{
		TxnID:                id,
		PersonID:             "p1",
		InstrumentID:         "i1",
		Amount:               decimal.RequireFromString("12.50"),
		Currency:             "USD",
		Status:               status,
		Provider:             "mock",
		AuthorizationContext: map[string]any{"approved": true},
		Metadata:             map[string]any{},
		CreatedAt:            time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMigrateRunsSchema(t *testing.T) {
	db := newFakeDB()
	require.NoError(t, NewPostgres(db).Migrate(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS payment_instruments")
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS payment_transactions")
}

func TestInstrumentRoundTripOnFake(t *testing.T) {
	pg := NewPostgres(newFakeDB())
	ctx := context.Background()

	_, found, err := pg.GetInstrument(ctx, "i1")
	require.NoError(t, err)
	assert.False(t, found)

	want := sampleInstrument()
	require.NoError(t, pg.PutInstrument(ctx, want))

	got, found, err := pg.GetInstrument(ctx, "i1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestTransactionUpsertLastWriteWins(t *testing.T) {
	db := newFakeDB()
	pg := NewPostgres(db)
	ctx := context.Background()

	require.NoError(t, pg.PutTransaction(ctx, sampleTransaction("t1", payments.StatusSucceeded)))
	require.NoError(t, pg.PutTransaction(ctx, sampleTransaction("t1", payments.StatusFailed)))

	got, found, err := pg.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payments.StatusFailed, got.Status)
	assert.True(t, decimal.RequireFromString("12.5").Equal(got.Amount))
	assert.Equal(t, map[string]any{"approved": true}, got.AuthorizationContext)
	assert.Len(t, db.tables["payment_transactions"], 1)
}

func TestPutTruncatesCreatedAtToMicroseconds(t *testing.T) {
	db := newFakeDB()
	pg := NewPostgres(db)
	ctx := context.Background()
	nanos := time.Date(2024, 5, 1, 12, 0, 5, 123456789, time.FixedZone("WIB", 7*3600))
	want := time.Date(2024, 5, 1, 5, 0, 5, 123456000, time.UTC)

	txn := sampleTransaction("t1", payments.StatusSucceeded)
	txn.CreatedAt = nanos
	require.NoError(t, pg.PutTransaction(ctx, txn))
	got, _, err := pg.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, want, got.CreatedAt)

	inst := sampleInstrument()
	inst.CreatedAt = nanos
	require.NoError(t, pg.PutInstrument(ctx, inst))
	gotInst, _, err := pg.GetInstrument(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, want, gotInst.CreatedAt)
}

// TestPostgresLive runs against a real database when PAYMENTS_TEST_DATABASE_URL is set.
func TestPostgresLive(t *testing.T) {
	url := os.Getenv("PAYMENTS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PAYMENTS_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, pg, err := Connect(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	// sub-microsecond digits must not survive, and what comes back must
	// match what the coordinator returned at write time
	stamp := payments.Timestamp(time.Date(2024, 5, 1, 12, 0, 5, 123456789, time.UTC))

	inst := sampleInstrument()
	inst.InstrumentID = uuid.NewString()
	inst.CreatedAt = stamp
	require.NoError(t, pg.PutInstrument(ctx, inst))
	gotInst, found, err := pg.GetInstrument(ctx, inst.InstrumentID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, inst, gotInst)

	id := uuid.NewString()
	require.NoError(t, pg.PutTransaction(ctx, sampleTransaction(id, payments.StatusSucceeded)))
	failed := sampleTransaction(id, payments.StatusFailed)
	failed.CreatedAt = time.Date(2024, 5, 1, 12, 0, 5, 123456789, time.UTC)
	require.NoError(t, pg.PutTransaction(ctx, failed))
	got, found, err := pg.GetTransaction(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payments.StatusFailed, got.Status)
	assert.Equal(t, payments.Timestamp(failed.CreatedAt), got.CreatedAt)
	assert.True(t, decimal.RequireFromString("12.50").Equal(got.Amount))
}
