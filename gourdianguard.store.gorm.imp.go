// File: gourdianguard.store.gorm.imp.go

package gourdianguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SessionSetRow is the database row holding one encoded SessionSet.
type SessionSetRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Guard     string    `gorm:"uniqueIndex:idx_guard_identity;type:varchar(64);not null"`
	Identity  string    `gorm:"uniqueIndex:idx_guard_identity;type:varchar(255);not null"`
	Data      []byte    `gorm:"not null"`
	Version   int64     `gorm:"not null;default:1"`
	ExpiresAt time.Time `gorm:"index:idx_session_sets_expires_at;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for SessionSetRow
func (SessionSetRow) TableName() string {
	return "session_sets"
}

// GormSessionStore is a SessionStore backed by any GORM dialect.
//
// Updates are optimistic: a row is only rewritten when its version still matches
// the one that was read, and concurrent first inserts race on the unique
// (guard, identity) index. Losers re-read and retry.
type GormSessionStore struct {
	sessionPolicy
	db   *gorm.DB
	opts storeOptions
}

// NewGormSessionStore creates a GORM-based session store and migrates its table.
func NewGormSessionStore(db *gorm.DB, options ...StoreOption) (*GormSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	// Test the connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.AutoMigrate(&SessionSetRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	opts := defaultStoreOptions()
	for _, o := range options {
		o(&opts)
	}

	store := &GormSessionStore{db: db, opts: opts}
	store.sessionPolicy = sessionPolicy{backend: store, now: opts.now}
	return store, nil
}

func (r *GormSessionStore) fetch(ctx context.Context, guard, identity string) (SessionSetRow, bool, error) {
	var row SessionSetRow
	err := r.db.WithContext(ctx).
		Where("guard = ? AND identity = ?", guard, identity).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, false, nil
	}
	if err != nil {
		return row, false, fmt.Errorf("database error: %w", err)
	}
	return row, true, nil
}

func (r *GormSessionStore) load(ctx context.Context, guard, identity string) (SessionSet, bool, error) {
	row, exists, err := r.fetch(ctx, guard, identity)
	if err != nil || !exists {
		return nil, false, err
	}
	set, err := DecodeSessionSet(row.Data)
	if err != nil {
		return nil, false, err
	}
	return set, true, nil
}

func (r *GormSessionStore) mutate(ctx context.Context, guard, identity string, fn mutateFunc) error {
	for attempt := 0; attempt < r.opts.maxRetries; attempt++ {
		row, exists, err := r.fetch(ctx, guard, identity)
		if err != nil {
			return err
		}

		var set SessionSet
		if exists {
			if set, err = DecodeSessionSet(row.Data); err != nil {
				return err
			}
		}

		next, write, err := fn(set, exists)
		if err != nil || !write {
			return err
		}

		applied, err := r.apply(ctx, guard, identity, row, exists, next)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}

		r.opts.logger.Debug().
			Str("guard", guard).
			Str("identity", identity).
			Int("attempt", attempt+1).
			Msg("session set row changed concurrently, retrying")
	}
	return ErrStoreConflict
}

// apply writes next over the row that was read. It reports false when another
// writer got there first.
func (r *GormSessionStore) apply(ctx context.Context, guard, identity string, row SessionSetRow, exists bool, next SessionSet) (bool, error) {
	db := r.db.WithContext(ctx)

	if len(next) == 0 {
		if !exists {
			return true, nil
		}
		result := db.Where("id = ? AND version = ?", row.ID, row.Version).Delete(&SessionSetRow{})
		if result.Error != nil {
			return false, fmt.Errorf("failed to delete session set: %w", result.Error)
		}
		return result.RowsAffected > 0, nil
	}

	data, err := EncodeSessionSet(next)
	if err != nil {
		return false, err
	}

	if !exists {
		model := SessionSetRow{
			Guard:     guard,
			Identity:  identity,
			Data:      data,
			Version:   1,
			ExpiresAt: next.latestExpiry().UTC(),
		}
		if err := db.Create(&model).Error; err != nil {
			// A concurrent insert won the unique index.
			if _, found, ferr := r.fetch(ctx, guard, identity); ferr == nil && found {
				return false, nil
			}
			return false, fmt.Errorf("failed to create session set: %w", err)
		}
		return true, nil
	}

	result := db.Model(&SessionSetRow{}).
		Where("id = ? AND version = ?", row.ID, row.Version).
		Updates(map[string]interface{}{
			"data":       data,
			"version":    row.Version + 1,
			"expires_at": next.latestExpiry().UTC(),
			"updated_at": r.opts.now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update session set: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SweepAll sweeps every session set of guard and returns the number visited.
// A set that fails to sweep is logged and skipped.
func (r *GormSessionStore) SweepAll(ctx context.Context, guard string) (int, error) {
	var identities []string
	if err := r.db.WithContext(ctx).
		Model(&SessionSetRow{}).
		Where("guard = ?", guard).
		Pluck("identity", &identities).Error; err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}

	visited := 0
	for _, identity := range identities {
		if err := ctx.Err(); err != nil {
			return visited, fmt.Errorf("context canceled: %w", err)
		}
		if err := r.Sweep(ctx, guard, identity); err != nil {
			r.opts.logger.Warn().Err(err).Str("guard", guard).Str("identity", identity).Msg("failed to sweep session set")
			continue
		}
		visited++
	}
	return visited, nil
}

// PurgeExpired deletes every row whose last refresh token has expired and
// returns how many were removed.
func (r *GormSessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", r.opts.now().UTC()).
		Delete(&SessionSetRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge expired session sets: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		r.opts.logger.Debug().Int64("rows", result.RowsAffected).Msg("purged expired session sets")
	}
	return result.RowsAffected, nil
}

// Close closes the underlying database connection.
func (r *GormSessionStore) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	return sqlDB.Close()
}
