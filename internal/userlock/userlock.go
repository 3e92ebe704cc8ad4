// Package userlock serializes work per user.
package userlock

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrInProgress is returned instead of waiting when ctx came from
// WithoutWaiting and the user's lock is held.
var ErrInProgress = errors.New("a run for this user is already in progress")

type noWaitKey struct{}

// WithoutWaiting marks ctx so that Acquire fails with ErrInProgress rather
// than queueing behind the current holder.
func WithoutWaiting(ctx context.Context) context.Context {
	return context.WithValue(ctx, noWaitKey{}, true)
}

// Locks holds one lock per user. The zero value is not usable; call New.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// New returns an empty lock set.
func New() *Locks {
	return &Locks{locks: make(map[string]*semaphore.Weighted)}
}

// Acquire takes userID's lock, waiting until ctx is done unless ctx was
// marked with WithoutWaiting. The returned func releases the lock.
func (l *Locks) Acquire(ctx context.Context, userID string) (func(), error) {
	lock := l.get(userID)
	if noWait, _ := ctx.Value(noWaitKey{}).(bool); noWait {
		if !lock.TryAcquire(1) {
			return nil, ErrInProgress
		}
	} else if err := lock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { lock.Release(1) }, nil
}

func (l *Locks) get(userID string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = semaphore.NewWeighted(1)
		l.locks[userID] = lock
	}
	return lock
}
