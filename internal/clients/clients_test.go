package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/unison-payments/internal/auth"
	"github.com/example/unison-payments/internal/payments"
	perr "github.com/example/unison-payments/pkg/errors"
)

var fastRetry = RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Timeout: time.Second}

// kvServer imitates the storage and context services in memory.
type kvServer struct {
	mu      sync.Mutex
	docs    map[string][]byte
	batons  []string
	failFor atomic.Int32
	hits    atomic.Int32
}

func (kv *kvServer) hasDoc(path string) bool {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	_, ok := kv.docs[path]
	return ok
}

func (kv *kvServer) seenBatons() []string {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return append([]string(nil), kv.batons...)
}

func newKVServer(t *testing.T) (*kvServer, *httptest.Server) {
	t.Helper()
	kv := &kvServer{docs: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := kv.hits.Add(1)
		kv.mu.Lock()
		defer kv.mu.Unlock()
		kv.batons = append(kv.batons, r.Header.Get(auth.BatonHeader))
		if n <= kv.failFor.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.Method {
		case http.MethodPut, http.MethodPost:
			var body json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			kv.docs[r.URL.Path] = body
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			doc, ok := kv.docs[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(doc)
		}
	}))
	t.Cleanup(srv.Close)
	return kv, srv
}

func TestVaultClientRoundTrip(t *testing.T) {
	kv, srv := newKVServer(t)
	vault := NewVaultClient(NewServiceClient(srv.URL, fastRetry))
	ctx := auth.WithBaton(context.Background(), "baton-1")

	secret := payments.VaultSecret{Provider: "mock", Kind: "card", Token: "tok_1"}
	require.NoError(t, vault.StoreSecret(ctx, "payment:p1:i1", secret))
	assert.True(t, kv.hasDoc("/kv/vault/payment:p1:i1"))

	got, err := vault.LoadSecret(ctx, "payment:p1:i1")
	require.NoError(t, err)
	assert.Equal(t, secret, got)
	assert.Equal(t, []string{"baton-1", "baton-1"}, kv.seenBatons())

	_, err = vault.LoadSecret(ctx, "payment:p1:missing")
	assert.Equal(t, perr.CodeNotFound, perr.CodeOf(err))
}

func TestServiceClientRetriesServerErrors(t *testing.T) {
	kv, srv := newKVServer(t)
	kv.failFor.Store(2)
	vault := NewVaultClient(NewServiceClient(srv.URL, fastRetry))

	require.NoError(t, vault.StoreSecret(context.Background(), "payment:p1:i1", payments.VaultSecret{Token: "t"}))
	assert.Equal(t, int32(3), kv.hits.Load())
}

func TestServiceClientGivesUpAfterMaxRetries(t *testing.T) {
	kv, srv := newKVServer(t)
	kv.failFor.Store(100)
	vault := NewVaultClient(NewServiceClient(srv.URL, fastRetry))

	err := vault.StoreSecret(context.Background(), "payment:p1:i1", payments.VaultSecret{Token: "t"})
	require.Error(t, err)
	assert.Equal(t, int32(1+fastRetry.MaxRetries), kv.hits.Load())
}

func TestServiceClientDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewVaultClient(NewServiceClient(srv.URL, fastRetry)).
		StoreSecret(context.Background(), "k", payments.VaultSecret{Token: "t"})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestProfileClientRoundTrip(t *testing.T) {
	_, srv := newKVServer(t)
	profiles := NewProfileClient(NewServiceClient(srv.URL, fastRetry))
	ctx := context.Background()

	_, err := profiles.GetProfile(ctx, "p1")
	assert.Equal(t, perr.CodeNotFound, perr.CodeOf(err))

	doc := map[string]any{"payments": map[string]any{"instruments": []any{}}}
	require.NoError(t, profiles.PutProfile(ctx, "p1", doc))

	got, err := profiles.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestEventSink(t *testing.T) {
	var (
		mu     sync.Mutex
		got    map[string]any
		status atomic.Int32
	)
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/events", r.URL.Path)
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()
	sink := NewEventSink(NewServiceClient(srv.URL, fastRetry))

	require.NoError(t, sink.Emit(context.Background(), payments.PaymentEvent{
		EventType: payments.EventInstrumentRegistered, SubjectID: "i1", PersonID: "p1", Status: "registered",
	}))
	mu.Lock()
	assert.Equal(t, "i1", got["subject_id"])
	mu.Unlock()

	status.Store(http.StatusAccepted)
	assert.NoError(t, sink.Emit(context.Background(), payments.PaymentEvent{}))
	status.Store(http.StatusMultipleChoices)
	assert.Error(t, sink.Emit(context.Background(), payments.PaymentEvent{}))
}
