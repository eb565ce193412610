// Package registry holds the authoritative payment records. Reads hand out
// copies; writes go through Update so a record transition is atomic with
// respect to concurrent readers.
package registry

import (
	"fmt"
	"sync"

	"github.com/coinforward/gateway/types"
)

type Registry struct {
	mu        sync.RWMutex
	records   map[string]*types.PaymentRecord
	byAddress map[string]string
}

func New() *Registry {
	return &Registry{
		records:   make(map[string]*types.PaymentRecord),
		byAddress: make(map[string]string),
	}
}

// Insert adds a new record. A receiving address belongs to at most one
// record for the lifetime of the registry.
func (r *Registry) Insert(rec *types.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; exists {
		return types.NewError(types.ErrDuplicateRecord, fmt.Sprintf("payment id %s already registered", rec.ID))
	}
	if owner, exists := r.byAddress[rec.ReceivingAddress]; exists {
		return types.NewError(types.ErrDuplicateRecord,
			fmt.Sprintf("address %s already bound to payment %s", rec.ReceivingAddress, owner))
	}

	clone := *rec
	r.records[rec.ID] = &clone
	r.byAddress[rec.ReceivingAddress] = rec.ID
	return nil
}

// Get returns a copy of the record.
func (r *Registry) Get(id string) (types.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return types.PaymentRecord{}, types.NewError(types.ErrNotFound, fmt.Sprintf("no payment with id %s", id))
	}
	return *rec, nil
}

// Status returns the current lifecycle state of a record.
func (r *Registry) Status(id string) (types.PaymentStatus, error) {
	rec, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// Pending returns copies of every record still awaiting funds.
func (r *Registry) Pending() []types.PaymentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.PaymentRecord
	for _, rec := range r.records {
		if rec.Status == types.StatusPending {
			out = append(out, *rec)
		}
	}
	return out
}

// All returns copies of every record, audit-style; records are never
// deleted.
func (r *Registry) All() []types.PaymentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.PaymentRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Update applies fn to the live record under the write lock and returns a
// copy of the result. If fn returns an error the record is left untouched.
// Readers observe either the state before fn or after it, never a partial
// mutation.
func (r *Registry) Update(id string, fn func(*types.PaymentRecord) error) (types.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return types.PaymentRecord{}, types.NewError(types.ErrNotFound, fmt.Sprintf("no payment with id %s", id))
	}

	scratch := *rec
	if err := fn(&scratch); err != nil {
		return types.PaymentRecord{}, err
	}
	*rec = scratch
	return scratch, nil
}
