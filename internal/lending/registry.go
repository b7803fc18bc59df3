package lending

import (
	"sync"
	"sync/atomic"
)

// Registry is the append-only collection of every loan ever opened. Readers get an immutable
// snapshot without locking; appends are serialized and publish a fresh slice.
type Registry struct {
	mu    sync.Mutex
	loans atomic.Pointer[[]*Loan]
}

func NewRegistry(loans ...*Loan) *Registry {
	r := &Registry{}
	initial := append([]*Loan(nil), loans...)
	r.loans.Store(&initial)
	return r
}

func (r *Registry) Add(loan *Loan) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.loans.Load()
	next := make([]*Loan, len(current), len(current)+1)
	copy(next, current)
	next = append(next, loan)
	r.loans.Store(&next)
}

// Reset replaces the whole collection, e.g. after loading persisted loans. Snapshots taken
// earlier keep the old contents.
func (r *Registry) Reset(loans ...*Loan) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := append([]*Loan(nil), loans...)
	r.loans.Store(&next)
}

// Snapshot must not be modified by the caller.
func (r *Registry) Snapshot() []*Loan {
	return *r.loans.Load()
}

// Filter returns the loans in the current snapshot that match keep.
func (r *Registry) Filter(keep func(*Loan) bool) []*Loan {
	var out []*Loan
	for _, l := range r.Snapshot() {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}
