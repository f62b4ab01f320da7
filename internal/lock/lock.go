// Package lock provides the cross-process lock that serializes update
// operations against one install root.
package lock

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/mutex/v2"
)

const (
	// DefaultTimeout bounds how long Acquire waits for another holder.
	DefaultTimeout = 5 * time.Second

	defaultDelay = 50 * time.Millisecond
	namePrefix   = "hatch-"
)

// ErrTimeout is returned when the lock is still held by someone else once the
// timeout elapses.
const ErrTimeout = errors.ConstError("timed out waiting for update lock")

// Name returns the lock name for an install root. Equivalent spellings of the
// same path map to the same name.
func Name(rootPath string) string {
	if abs, err := filepath.Abs(rootPath); err == nil {
		rootPath = abs
	}
	sum := sha1.Sum([]byte(filepath.Clean(rootPath)))
	return namePrefix + hex.EncodeToString(sum[:])[:32]
}

// Locker acquires install-root locks.
type Locker struct {
	Clock   clock.Clock
	Timeout time.Duration
	Delay   time.Duration

	acquire func(mutex.Spec) (mutex.Releaser, error)
}

// New returns a Locker on the wall clock. A zero timeout means DefaultTimeout.
func New(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Locker{
		Clock:   clock.WallClock,
		Timeout: timeout,
		Delay:   defaultDelay,
		acquire: mutex.Acquire,
	}
}

// Lock is a held install-root lock.
type Lock struct {
	name     string
	releaser mutex.Releaser
	once     sync.Once
}

// Acquire blocks until the lock for rootPath is held, the timeout elapses or
// ctx is done.
func (l *Locker) Acquire(ctx context.Context, rootPath string) (*Lock, error) {
	name := Name(rootPath)
	spec := mutex.Spec{
		Name:    name,
		Clock:   l.Clock,
		Delay:   l.Delay,
		Timeout: l.Timeout,
		Cancel:  ctx.Done(),
	}
	acquire := l.acquire
	if acquire == nil {
		acquire = mutex.Acquire
	}
	releaser, err := acquire(spec)
	switch {
	case errors.Is(err, mutex.ErrTimeout):
		return nil, errors.Annotatef(ErrTimeout, "%s after %s", rootPath, l.Timeout)
	case errors.Is(err, mutex.ErrCancelled):
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, errors.Annotatef(err, "acquiring lock for %s", rootPath)
	case err != nil:
		return nil, errors.Annotatef(err, "acquiring lock for %s", rootPath)
	}
	return &Lock{name: name, releaser: releaser}, nil
}

// Name returns the name of the underlying mutex.
func (l *Lock) Name() string {
	return l.name
}

// Release releases the lock. Calling it more than once is safe.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	l.once.Do(l.releaser.Release)
}
