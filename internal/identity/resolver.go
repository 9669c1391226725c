// Package identity resolves on-chain addresses to human-readable names for
// dashboard display. It is deliberately the thinnest possible layer: the
// agent has no database of its own (cursors are the only state it persists
// across restarts), so resolution is backed by a static, operator-supplied
// table rather than a lookup service.
package identity

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Resolver maps an address to a display name. ok is false when the address
// is unknown; callers must treat that as "leave it blank", never as an
// error worth failing a snapshot refresh over.
type Resolver interface {
	Resolve(ctx context.Context, addr common.Address) (name string, ok bool)
}

// StaticResolver is an address book seeded at construction; Put is its only
// mutation path. Reads never block on each other.
type StaticResolver struct {
	mu      sync.RWMutex
	entries map[common.Address]string
}

// NewStaticResolver builds a resolver from a fixed address-to-name table.
// A nil or empty map is valid: every lookup simply misses.
func NewStaticResolver(entries map[common.Address]string) *StaticResolver {
	copied := make(map[common.Address]string, len(entries))
	for addr, name := range entries {
		copied[addr] = name
	}
	return &StaticResolver{entries: copied}
}

func (r *StaticResolver) Resolve(_ context.Context, addr common.Address) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.entries[addr]
	return name, ok
}

// Put adds or overwrites one entry at runtime, without a restart. No admin
// API route calls it.
func (r *StaticResolver) Put(addr common.Address, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[addr] = name
}
