package payments

import (
	"context"
	"sync"
)

// InstrumentRegistry is keyed by instrument_id. Put overwrites.
type InstrumentRegistry interface {
	GetInstrument(ctx context.Context, instrumentID string) (PaymentInstrument, bool, error)
	PutInstrument(ctx context.Context, inst PaymentInstrument) error
}

// TransactionRegistry is keyed by txn_id. Put overwrites (last write wins).
type TransactionRegistry interface {
	GetTransaction(ctx context.Context, txnID string) (PaymentTransaction, bool, error)
	PutTransaction(ctx context.Context, txn PaymentTransaction) error
}

// MemoryRegistry implements both registries with one lock each. Values are
// deep-copied in and out so callers never share metadata maps.
type MemoryRegistry struct {
	instMu      sync.RWMutex
	instruments map[string]PaymentInstrument

	txnMu        sync.RWMutex
	transactions map[string]PaymentTransaction
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		instruments:  map[string]PaymentInstrument{},
		transactions: map[string]PaymentTransaction{},
	}
}

func (r *MemoryRegistry) GetInstrument(_ context.Context, instrumentID string) (PaymentInstrument, bool, error) {
	r.instMu.RLock()
	defer r.instMu.RUnlock()
	inst, ok := r.instruments[instrumentID]
	if !ok {
		return PaymentInstrument{}, false, nil
	}
	return inst.clone(), true, nil
}

func (r *MemoryRegistry) PutInstrument(_ context.Context, inst PaymentInstrument) error {
	r.instMu.Lock()
	defer r.instMu.Unlock()
	r.instruments[inst.InstrumentID] = inst.clone()
	return nil
}

func (r *MemoryRegistry) GetTransaction(_ context.Context, txnID string) (PaymentTransaction, bool, error) {
	r.txnMu.RLock()
	defer r.txnMu.RUnlock()
	txn, ok := r.transactions[txnID]
	if !ok {
		return PaymentTransaction{}, false, nil
	}
	return txn.clone(), true, nil
}

func (r *MemoryRegistry) PutTransaction(_ context.Context, txn PaymentTransaction) error {
	r.txnMu.Lock()
	defer r.txnMu.Unlock()
	r.transactions[txn.TxnID] = txn.clone()
	return nil
}
