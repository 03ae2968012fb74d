package payments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistryCopiesValues(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	inst := PaymentInstrument{InstrumentID: "i1", PersonID: "p1", Metadata: map[string]any{"a": "b"}}
	require.NoError(t, reg.PutInstrument(ctx, inst))
	inst.Metadata["a"] = "mutated"

	got, ok, err := reg.GetInstrument(ctx, "i1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", got.Metadata["a"])

	got.Metadata["a"] = "mutated again"
	again, _, _ := reg.GetInstrument(ctx, "i1")
	assert.Equal(t, "b", again.Metadata["a"])
}

func TestMemoryRegistryTransactions(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	_, ok, err := reg.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, reg.PutTransaction(ctx, PaymentTransaction{TxnID: "t1", Status: StatusCreated}))
	require.NoError(t, reg.PutTransaction(ctx, PaymentTransaction{TxnID: "t1", Status: StatusSucceeded}))

	got, ok, err := reg.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.NotNil(t, got.Metadata)
	assert.Equal(t, 1, reg.transactionCount())
}

func TestMemoryRegistryCopiesNestedValues(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	require.NoError(t, reg.PutTransaction(ctx, PaymentTransaction{
		TxnID:                "t1",
		AuthorizationContext: map[string]any{"approver": map[string]any{"id": "u1"}, "scopes": []any{"pay"}},
	}))

	got, _, err := reg.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	got.AuthorizationContext["approver"].(map[string]any)["id"] = "mutated"
	got.AuthorizationContext["scopes"].([]any)[0] = "mutated"

	again, _, err := reg.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"approver": map[string]any{"id": "u1"}, "scopes": []any{"pay"}}, again.AuthorizationContext)
}

func TestScrubMetadata(t *testing.T) {
	in := map[string]any{"token": "x", "provider_token": "y", "note": "tok_1", "keep": 1}
	out := scrubMetadata(in, "tok_1")

	assert.Equal(t, map[string]any{"keep": 1}, out)
	assert.Len(t, in, 4, "input must not be modified")
}

func TestScrubMetadataNested(t *testing.T) {
	in := map[string]any{
		"psp":  map[string]any{"ref": "tok_1", "token": "z", "region": "id"},
		"refs": []any{"tok_1", "ref_2", map[string]any{"inner": "tok_1", "n": 2}},
	}
	out := scrubMetadata(in, "tok_1")

	assert.Equal(t, map[string]any{
		"psp":  map[string]any{"region": "id"},
		"refs": []any{"ref_2", map[string]any{"n": 2}},
	}, out)
	assert.Equal(t, "tok_1", in["psp"].(map[string]any)["ref"], "input must not be modified")
	assert.Len(t, in["refs"], 3)
}

func TestScrubMetadataWithoutToken(t *testing.T) {
	out := scrubMetadata(map[string]any{"note": "", "psp": map[string]any{"token": "z", "ok": true}}, "")
	assert.Equal(t, map[string]any{"note": "", "psp": map[string]any{"ok": true}}, out)
}

// transactionCount is a test helper; production code never needs a count.
func (r *MemoryRegistry) transactionCount() int {
	r.txnMu.RLock()
	defer r.txnMu.RUnlock()
	return len(r.transactions)
}
