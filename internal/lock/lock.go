package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a per-key mutual exclusion lock shared across processes.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Extend pushes the lock expiry out by its TTL, where the backend has one.
	Extend(ctx context.Context) error
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Factory creates locks using the best available backend.
// Redis is preferred; without it, Postgres advisory locks are used.
type Factory struct {
	Redis *redis.Client
	DB    *sql.DB
	TTL   time.Duration
}

func (f *Factory) New(key string) DistLock {
	if f.Redis != nil {
		return NewRedisLock(f.Redis, key, f.TTL)
	}
	return NewPGAdvisoryLock(f.DB, key)
}

// CampaignKey is the lock key guarding one campaign's send run.
func CampaignKey(campaignID string) string {
	return fmt.Sprintf("campaign-send:%s", campaignID)
}

// PGAdvisoryLock implements DistLock with pg_try_advisory_lock.
// Advisory locks are session scoped, so the lock pins one pooled connection
// from Acquire until Release.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Extend is a no-op: advisory locks live as long as the session.
func (l *PGAdvisoryLock) Extend(ctx context.Context) error { return nil }

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
