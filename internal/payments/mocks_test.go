package payments

import (
	"context"
	"fmt"
	"sync"

	perr "github.com/example/unison-payments/pkg/errors"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []PaymentEvent
}

func (r *recordingEvents) LogEvent(_ context.Context, ev PaymentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (r *recordingEvents) last() PaymentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fakeVault struct {
	mu      sync.Mutex
	secrets map[string]VaultSecret
	failPut bool
	failGet bool
}

func newFakeVault() *fakeVault { return &fakeVault{secrets: map[string]VaultSecret{}} }

func (v *fakeVault) StoreSecret(_ context.Context, key string, secret VaultSecret) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failPut {
		return fmt.Errorf("vault unavailable")
	}
	v.secrets[key] = secret
	return nil
}

func (v *fakeVault) LoadSecret(_ context.Context, key string) (VaultSecret, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failGet {
		return VaultSecret{}, fmt.Errorf("vault unavailable")
	}
	s, ok := v.secrets[key]
	if !ok {
		return VaultSecret{}, perr.NotFound("secret not found")
	}
	return s, nil
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]map[string]any
	getErr   error
	putErr   error
	puts     int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: map[string]map[string]any{}}
}

func (p *fakeProfiles) GetProfile(_ context.Context, personID string) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	prof, ok := p.profiles[personID]
	if !ok {
		return nil, perr.NotFound("profile not found")
	}
	return prof, nil
}

func (p *fakeProfiles) PutProfile(_ context.Context, personID string, profile map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.puts++
	if p.putErr != nil {
		return p.putErr
	}
	p.profiles[personID] = profile
	return nil
}

// countingProvider wraps the mock and records the last request it saw.
type countingProvider struct {
	*MockProvider
	mu          sync.Mutex
	createCalls int
	lastRequest PaymentTransactionRequest
	registerErr error
}

func (c *countingProvider) RegisterInstrument(ctx context.Context, inst PaymentInstrument) (PaymentInstrument, error) {
	if c.registerErr != nil {
		return PaymentInstrument{}, c.registerErr
	}
	return c.MockProvider.RegisterInstrument(ctx, inst)
}

func (c *countingProvider) CreateTransaction(ctx context.Context, req PaymentTransactionRequest) (PaymentTransaction, error) {
	c.mu.Lock()
	c.createCalls++
	c.lastRequest = req
	c.mu.Unlock()
	return c.MockProvider.CreateTransaction(ctx, req)
}
