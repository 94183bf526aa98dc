package gourdianguard

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionStore is the authoritative record of live sessions, scoped per
// (guard, identity). Every mutating method is a single atomic read-modify-write
// of that identity's SessionSet; different identities never contend.
type SessionStore interface {
	// Insert applies the capacity policy for record.ClientType, appends record and
	// sweeps the set. It returns how many records the capacity policy evicted.
	Insert(ctx context.Context, guard, identity string, record SessionRecord, clientTypeLimit int) (int, error)

	// Sweep drops refresh-expired records and clears the access token of
	// access-expired ones. The set is deleted once empty.
	Sweep(ctx context.Context, guard, identity string) error

	// ConfirmMembership returns nil when token is a live member of the set, and
	// ErrSessionNotFound otherwise. Lapsed records met on the way are cleaned up.
	ConfirmMembership(ctx context.Context, guard, identity, token string, kind TokenType) error

	// RevokeOne removes the record holding accessToken. Unknown tokens are a no-op.
	RevokeOne(ctx context.Context, guard, identity, accessToken string) error

	// RevokeAll deletes the whole set.
	RevokeAll(ctx context.Context, guard, identity string) error

	// ReplaceAccess rebinds the record holding refreshToken to a freshly minted
	// access token. It returns ErrSessionNotFound when no live record matches.
	ReplaceAccess(ctx context.Context, guard, identity, refreshToken, accessToken string, issuedAt time.Time, ttl time.Duration) error

	// Sessions returns a snapshot of the live records without modifying the set.
	Sessions(ctx context.Context, guard, identity string) ([]SessionRecord, error)
}

// GuardSweeper is implemented by stores that can enumerate the session sets of a
// guard and sweep each of them. A set that fails to sweep is logged and skipped;
// only a canceled context or an enumeration failure ends the walk early.
type GuardSweeper interface {
	SweepAll(ctx context.Context, guard string) (int, error)
}

// mutateFunc receives the current set (exists is false when there is none) and
// returns the new set and whether it must be written. Writing an empty set
// deletes it. It may run several times when a backend retries.
type mutateFunc func(set SessionSet, exists bool) (SessionSet, bool, error)

// setBackend is the per-backend atomic primitive the policy layer is built on.
type setBackend interface {
	mutate(ctx context.Context, guard, identity string, fn mutateFunc) error
	load(ctx context.Context, guard, identity string) (SessionSet, bool, error)
}

// StoreOption configures a SessionStore implementation.
type StoreOption func(*storeOptions)

type storeOptions struct {
	now        func() time.Time
	logger     zerolog.Logger
	keyPrefix  string
	maxRetries int
}

func defaultStoreOptions() storeOptions {
	return storeOptions{
		now:        time.Now,
		logger:     zerolog.Nop(),
		maxRetries: 8,
	}
}

// WithStoreClock overrides the clock used for expiry decisions.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithStoreLogger sets the logger used for retries and background sweeps.
func WithStoreLogger(logger zerolog.Logger) StoreOption {
	return func(o *storeOptions) { o.logger = logger }
}

// WithKeyPrefix namespaces the keys written by the Redis store.
func WithKeyPrefix(prefix string) StoreOption {
	return func(o *storeOptions) { o.keyPrefix = prefix }
}

// WithMaxRetries bounds optimistic-concurrency retries before ErrStoreConflict.
func WithMaxRetries(n int) StoreOption {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// sessionPolicy implements SessionStore on top of a setBackend. Backends embed it.
type sessionPolicy struct {
	backend setBackend
	now     func() time.Time
}

func (p sessionPolicy) Insert(ctx context.Context, guard, identity string, record SessionRecord, clientTypeLimit int) (int, error) {
	var evicted int
	err := p.backend.mutate(ctx, guard, identity, func(set SessionSet, exists bool) (SessionSet, bool, error) {
		evicted = 0
		if !exists {
			return SessionSet{record}, true, nil
		}
		set, evicted = set.admit(record, clientTypeLimit)
		set, _ = set.sweep(p.now())
		return set, true, nil
	})
	if err != nil {
		return 0, err
	}
	return evicted, nil
}

func (p sessionPolicy) Sweep(ctx context.Context, guard, identity string) error {
	return p.backend.mutate(ctx, guard, identity, func(set SessionSet, exists bool) (SessionSet, bool, error) {
		if !exists {
			return nil, false, nil
		}
		set, changed := set.sweep(p.now())
		return set, changed, nil
	})
}

func (p sessionPolicy) ConfirmMembership(ctx context.Context, guard, identity, token string, kind TokenType) error {
	var found bool
	err := p.backend.mutate(ctx, guard, identity, func(set SessionSet, exists bool) (SessionSet, bool, error) {
		found = false
		if !exists {
			return nil, false, nil
		}
		set, ok, changed := set.confirm(token, kind, p.now())
		found = ok
		return set, changed, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrSessionNotFound
	}
	return nil
}

func (p sessionPolicy) RevokeOne(ctx context.Context, guard, identity, accessToken string) error {
	return p.backend.mutate(ctx, guard, identity, func(set SessionSet, exists bool) (SessionSet, bool, error) {
		if !exists {
			return nil, false, nil
		}
		set, removed := set.removeAccess(accessToken)
		return set, removed, nil
	})
}

func (p sessionPolicy) RevokeAll(ctx context.Context, guard, identity string) error {
	return p.backend.mutate(ctx, guard, identity, func(_ SessionSet, exists bool) (SessionSet, bool, error) {
		return nil, exists, nil
	})
}

func (p sessionPolicy) ReplaceAccess(ctx context.Context, guard, identity, refreshToken, accessToken string, issuedAt time.Time, ttl time.Duration) error {
	var found bool
	err := p.backend.mutate(ctx, guard, identity, func(set SessionSet, exists bool) (SessionSet, bool, error) {
		found = false
		if !exists {
			return nil, false, nil
		}
		set, changed := set.sweep(p.now())
		i := set.indexOf(refreshToken, RefreshToken)
		if i < 0 {
			return set, changed, nil
		}
		found = true
		set[i].AccessToken = accessToken
		set[i].AccessIssuedAt = issuedAt
		set[i].AccessTTL = ttl
		return set, true, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrSessionNotFound
	}
	return nil
}

func (p sessionPolicy) Sessions(ctx context.Context, guard, identity string) ([]SessionRecord, error) {
	set, exists, err := p.backend.load(ctx, guard, identity)
	if err != nil || !exists {
		return nil, err
	}
	return set.live(p.now()), nil
}
