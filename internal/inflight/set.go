// Package inflight tracks ids currently being worked so the router and
// keep-alive driver never process the same request or subscription twice
// concurrently (once from the event watcher, once from the fallback poll).
package inflight

import (
	"sync"

	"github.com/bobbyswhip/x402c/internal/metrics"
)

// Set is a concurrency-safe single-flight set of [32]byte ids.
type Set struct {
	mu       sync.Mutex
	members  map[[32]byte]struct{}
	gauge    func(delta int)
}

// New creates an empty set. gauge, if non-nil, is called with +1/-1 on
// every claim/release so callers can wire it to a Prometheus gauge.
func New(gauge func(delta int)) *Set {
	return &Set{
		members: make(map[[32]byte]struct{}),
		gauge:   gauge,
	}
}

// NewRouterSet is a convenience constructor wired to the router's
// in-flight gauge.
func NewRouterSet() *Set {
	return New(func(delta int) {
		metrics.RouterInFlightRequests.Add(float64(delta))
	})
}

// TryClaim attempts to claim id. It returns true if the claim succeeded
// (the caller now owns exclusive processing rights for id) or false if
// another goroutine already holds it.
func (s *Set) TryClaim(id [32]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.members[id]; exists {
		return false
	}
	s.members[id] = struct{}{}
	if s.gauge != nil {
		s.gauge(1)
	}
	return true
}

// Release relinquishes a previously claimed id. Releasing an id that was
// never claimed (or already released) is a no-op.
func (s *Set) Release(id [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.members[id]; !exists {
		return
	}
	delete(s.members, id)
	if s.gauge != nil {
		s.gauge(-1)
	}
}

// Contains reports whether id is currently claimed, without claiming it.
func (s *Set) Contains(id [32]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.members[id]
	return exists
}

// Len returns the number of currently claimed ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}
