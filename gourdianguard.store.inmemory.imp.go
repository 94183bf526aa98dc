// File: gourdianguard.store.inmemory.imp.go

package gourdianguard

import (
	"context"
	"sync"
	"time"
)

type setKey struct {
	guard    string
	identity string
}

// MemorySessionStore is an in-memory SessionStore.
// Suitable for development, testing, or single-instance deployments.
//
// Sets are kept in their encoded form so callers never share record slices with
// the store. A single mutex serializes mutations; a background goroutine sweeps
// every set on cleanupInterval until Close is called.
type MemorySessionStore struct {
	sessionPolicy
	opts storeOptions

	mu   sync.RWMutex
	sets map[setKey][]byte

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// NewMemorySessionStore creates a new in-memory session store.
// cleanupInterval determines how often expired records are swept (default: 5 minutes).
func NewMemorySessionStore(cleanupInterval time.Duration, options ...StoreOption) *MemorySessionStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	opts := defaultStoreOptions()
	for _, o := range options {
		o(&opts)
	}

	store := &MemorySessionStore{
		opts:            opts,
		sets:            make(map[setKey][]byte),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	store.sessionPolicy = sessionPolicy{backend: store, now: opts.now}

	go store.periodicCleanup()

	return store
}

func (m *MemorySessionStore) load(ctx context.Context, guard, identity string) (SessionSet, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	data, ok := m.sets[setKey{guard, identity}]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	set, err := DecodeSessionSet(data)
	if err != nil {
		return nil, false, err
	}
	return set, true, nil
}

func (m *MemorySessionStore) mutate(ctx context.Context, guard, identity string, fn mutateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := setKey{guard, identity}

	m.mu.Lock()
	defer m.mu.Unlock()

	var set SessionSet
	data, exists := m.sets[key]
	if exists {
		var err error
		if set, err = DecodeSessionSet(data); err != nil {
			return err
		}
	}

	next, write, err := fn(set, exists)
	if err != nil || !write {
		return err
	}

	if len(next) == 0 {
		delete(m.sets, key)
		return nil
	}

	encoded, err := EncodeSessionSet(next)
	if err != nil {
		return err
	}
	m.sets[key] = encoded
	return nil
}

// SweepAll sweeps every session set of guard and returns the number visited.
// A set that fails to sweep is logged and skipped.
func (m *MemorySessionStore) SweepAll(ctx context.Context, guard string) (int, error) {
	m.mu.RLock()
	identities := make([]string, 0, len(m.sets))
	for k := range m.sets {
		if k.guard == guard {
			identities = append(identities, k.identity)
		}
	}
	m.mu.RUnlock()

	visited := 0
	for _, identity := range identities {
		if err := ctx.Err(); err != nil {
			return visited, err
		}
		if err := m.Sweep(ctx, guard, identity); err != nil {
			m.opts.logger.Warn().Err(err).Str("guard", guard).Str("identity", identity).Msg("failed to sweep session set")
			continue
		}
		visited++
	}
	return visited, nil
}

func (m *MemorySessionStore) guards() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for k := range m.sets {
		seen[k.guard] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	return out
}

// periodicCleanup runs background sweeps of every stored set
func (m *MemorySessionStore) periodicCleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	ctx := context.Background()

	for {
		select {
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			for _, guard := range m.guards() {
				if _, err := m.SweepAll(ctx, guard); err != nil {
					m.opts.logger.Warn().Err(err).Str("guard", guard).Msg("background session sweep failed")
				}
			}
		}
	}
}

// Close stops the background cleanup goroutine.
// Call this when shutting down the application.
func (m *MemorySessionStore) Close() error {
	m.cleanupOnce.Do(func() {
		close(m.stopCleanup)
	})
	return nil
}

// Stats returns the number of stored sets and records.
// Useful for monitoring and debugging.
func (m *MemorySessionStore) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := 0
	for _, data := range m.sets {
		if set, err := DecodeSessionSet(data); err == nil {
			records += len(set)
		}
	}
	return map[string]int{
		"session_sets": len(m.sets),
		"sessions":     records,
	}
}
