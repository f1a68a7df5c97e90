// Package lock provides the advisory process lock guarding single-writer
// access to the document cache sidecar database.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/localkb/knowledgebase/internal/errors"
)

// DefaultRetryInterval is the pause between acquisition attempts.
var DefaultRetryInterval = 50 * time.Millisecond

// DefaultRetryTimeout is the total bounded window for acquisition before
// surfacing a LockContention error.
var DefaultRetryTimeout = 2 * time.Second

// CacheLock is an exclusive, cross-process, non-blocking-with-retry lock
// taken for the duration of any cache-mutating operation.
type CacheLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock file at <cachePath>.lock, sibling to the sidecar database.
func New(cachePath string) *CacheLock {
	lockPath := cachePath + ".lock"
	return &CacheLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Acquire attempts to take the lock, retrying at DefaultRetryInterval until
// DefaultRetryTimeout elapses. On exhaustion it returns a retryable
// LockContention error.
func (l *CacheLock) Acquire() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(errors.ErrCodeFileNotFound, "failed to create lock directory", err)
	}

	deadline := time.Now().Add(DefaultRetryTimeout)
	for {
		acquired, err := l.flock.TryLock()
		if err != nil {
			return errors.New(errors.ErrCodeFileNotFound, "failed to acquire cache lock", err)
		}
		if acquired {
			l.locked = true
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New(errors.ErrCodeLockContention,
				fmt.Sprintf("could not acquire cache lock at %s within %s", l.path, DefaultRetryTimeout), nil)
		}
		time.Sleep(DefaultRetryInterval)
	}
}

// Release drops the lock. Safe to call multiple times or when not held.
func (l *CacheLock) Release() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return errors.New(errors.ErrCodeFileNotFound, "failed to release cache lock", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file's path.
func (l *CacheLock) Path() string {
	return l.path
}

// Held reports whether this instance currently holds the lock.
func (l *CacheLock) Held() bool {
	return l.locked
}

// WithLock acquires the lock, runs fn, and releases the lock unconditionally.
func WithLock(cachePath string, fn func() error) error {
	l := New(cachePath)
	if err := l.Acquire(); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
