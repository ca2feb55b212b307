// Package userlock serializes mutations per user. Every service that
// mutates a user's balance or credibility state shares one Registry, so
// concurrent approvals, redemptions, and sweeps for the same user never
// interleave their read-modify-write cycles. Different users proceed in
// parallel.
package userlock

import "sync"

// Registry hands out one mutex per user id. Locks are never released from
// the map; the per-user footprint is a single mutex.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the user's mutex and returns the unlock func.
//
//	defer locks.Lock(userID)()
func (r *Registry) Lock(userID string) func() {
	r.mu.Lock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
