// File: gourdianguard.store.redis.imp.go

package gourdianguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps one key per (guard, identity), named
// "<prefix>token_<guard>:<identity>", holding the encoded SessionSet. Every
// mutation runs under WATCH/MULTI/EXEC and retries when another writer touched
// the key in between. Keys expire on their own once the last refresh token of
// the set would have.
type RedisSessionStore struct {
	sessionPolicy
	client     redis.UniversalClient
	opts       storeOptions
	ownsClient bool
}

// NewRedisSessionStore creates a Redis-backed session store and checks the
// connection.
func NewRedisSessionStore(client redis.UniversalClient, options ...StoreOption) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	opts := defaultStoreOptions()
	for _, o := range options {
		o(&opts)
	}

	store := &RedisSessionStore{client: client, opts: opts}
	store.sessionPolicy = sessionPolicy{backend: store, now: opts.now}
	return store, nil
}

// NewRedisSessionStoreFromConfig dials Redis with cfg and owns the client; Close
// releases it.
func NewRedisSessionStoreFromConfig(cfg RedisConfig, options ...StoreOption) (*RedisSessionStore, error) {
	client := redis.NewClient(cfg.Options())
	store, err := NewRedisSessionStore(client, append([]StoreOption{WithKeyPrefix(cfg.KeyPrefix)}, options...)...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store.ownsClient = true
	return store, nil
}

// Close releases the Redis client when the store created it.
func (r *RedisSessionStore) Close() error {
	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}

func (r *RedisSessionStore) guardPrefix(guard string) string {
	return r.opts.keyPrefix + "token_" + guard + ":"
}

func (r *RedisSessionStore) key(guard, identity string) string {
	return r.guardPrefix(guard) + identity
}

func (r *RedisSessionStore) read(ctx context.Context, cmd redis.Cmdable, key string) (SessionSet, bool, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis error: %w", err)
	}

	set, err := DecodeSessionSet(data)
	if err != nil {
		return nil, false, fmt.Errorf("key %s: %w", key, err)
	}
	return set, true, nil
}

func (r *RedisSessionStore) load(ctx context.Context, guard, identity string) (SessionSet, bool, error) {
	return r.read(ctx, r.client, r.key(guard, identity))
}

func (r *RedisSessionStore) mutate(ctx context.Context, guard, identity string, fn mutateFunc) error {
	key := r.key(guard, identity)

	for attempt := 0; attempt < r.opts.maxRetries; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			set, exists, err := r.read(ctx, tx, key)
			if err != nil {
				return err
			}

			next, write, err := fn(set, exists)
			if err != nil || !write {
				return err
			}

			var data []byte
			ttl := next.latestExpiry().Sub(r.opts.now())
			if len(next) > 0 && ttl > 0 {
				if data, err = EncodeSessionSet(next); err != nil {
					return err
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if data == nil {
					pipe.Del(ctx, key)
					return nil
				}
				pipe.Set(ctx, key, data, ttl)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			r.opts.logger.Debug().
				Str("key", key).
				Int("attempt", attempt+1).
				Msg("session set changed concurrently, retrying")
			continue
		case errors.Is(err, ErrCorruptSessionSet):
			return err
		default:
			return fmt.Errorf("redis session store: %w", err)
		}
	}
	return ErrStoreConflict
}

// SweepAll sweeps every session set of guard. It walks the keyspace with SCAN in
// batches and returns the number of sets visited. A set that fails to sweep is
// logged and skipped.
func (r *RedisSessionStore) SweepAll(ctx context.Context, guard string) (int, error) {
	var cursor uint64
	const batchSize = 100

	prefix := r.guardPrefix(guard)
	visited := 0
	for {
		if err := ctx.Err(); err != nil {
			return visited, fmt.Errorf("context canceled: %w", err)
		}

		keys, next, err := r.client.Scan(ctx, cursor, escapeGlob(prefix)+"*", batchSize).Result()
		if err != nil {
			return visited, fmt.Errorf("redis scan error: %w", err)
		}

		for _, key := range keys {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			identity := strings.TrimPrefix(key, prefix)
			if err := r.Sweep(ctx, guard, identity); err != nil {
				r.opts.logger.Warn().Err(err).Str("key", key).Msg("failed to sweep session set")
				continue
			}
			visited++
		}

		if next == 0 {
			break
		}
		cursor = next
	}
	return visited, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
