// Package lease provides short-lived keyed leases used as admission control in
// front of allocation transactions.
package lease

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned when a lease could not be obtained before the context ended.
var ErrBusy = errors.New("lease busy")

// Release gives a lease back. Calling it more than once is safe.
type Release func()

// Locker hands out exclusive leases on string keys.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// InstanceKey names the lease guarding a robot instance.
func InstanceKey(id string) string { return "instance:" + id }

// PartKey names the lease guarding a part.
func PartKey(id string) string { return "part:" + id }

// AcquireAll takes leases for keys in order and returns a release for all of them.
// If any acquisition fails, the leases already held are released.
func AcquireAll(ctx context.Context, l Locker, keys ...string) (Release, error) {
	var held []Release
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, key := range keys {
		rel, err := l.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, rel)
	}
	return releaseAll, nil
}

// Local is an in-process keyed mutex.
type Local struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocal constructs an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]chan struct{})}
}

// Acquire blocks until key is free or ctx ends.
func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, errors.Join(ErrBusy, ctx.Err())
		}
	}
}
