// Package lock prevents concurrent ingestion runs against the same sink
// using PostgreSQL advisory locks.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/epidata/casepipe/internal/logger"
)

// ErrLockHeld is returned when another run already holds the job lock.
var ErrLockHeld = errors.New("another ingestion run holds the lock for this job")

// AdvisoryLock guards a named ingestion job with a session-scoped
// PostgreSQL advisory lock. The lock is released on Release or when the
// session ends, so a crashed run never leaves a stale lock behind.
type AdvisoryLock struct {
	db   *sql.DB
	key  int64
	name string
	held bool
	log  *logger.Logger
}

// New creates an advisory lock for the given job name.
func New(db *sql.DB, jobName string, log *logger.Logger) *AdvisoryLock {
	return &AdvisoryLock{
		db:   db,
		key:  lockKey(jobName),
		name: jobName,
		log:  log,
	}
}

// lockKey derives a stable 64-bit advisory lock key from the job name.
func lockKey(jobName string) int64 {
	h := fnv.New64a()
	h.Write([]byte("casepipe:" + jobName))
	return int64(h.Sum64())
}

// Acquire attempts to take the lock without blocking. It returns
// ErrLockHeld if another session holds it.
func (l *AdvisoryLock) Acquire(ctx context.Context) error {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire advisory lock for job %s: %w", l.name, err)
	}
	if !acquired {
		return ErrLockHeld
	}

	l.held = true
	l.log.Debugw("acquired advisory lock", "job", l.name, "key", l.key)
	return nil
}

// Release releases the lock if held.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}

	var released bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&released)
	if err != nil {
		return fmt.Errorf("failed to release advisory lock for job %s: %w", l.name, err)
	}
	if !released {
		l.log.Warnw("advisory lock was not held at release", "job", l.name)
	}

	l.held = false
	return nil
}

// Held reports whether this instance currently holds the lock.
func (l *AdvisoryLock) Held() bool {
	return l.held
}
