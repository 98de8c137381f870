package lock

import (
	"context"
	"sync"
)

// Release gives a held lock back. Calling it more than once is a no-op.
type Release func()

// Locker serializes work that shares a key. Work on different keys runs in parallel.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

func onceRelease(fn func()) Release {
	var once sync.Once
	return func() { once.Do(fn) }
}

// LocalLocker is an in-process keyed mutex for single-instance deployments.
// Entries are reference counted and dropped when no goroutine holds or waits on them.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return onceRelease(func() {
			<-e.sem
			l.drop(key, e)
		}), nil
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) drop(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports tracked keys; used by tests.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
