package service

import (
	"context"
	"sync"
)

// UserLocker serializes submissions of the same user.
type UserLocker interface {
	Lock(ctx context.Context, name string) (func(), error)
}

type localLock struct {
	sem  chan struct{}
	refs int
}

// LocalUserLocker is an in-process UserLocker. Entries are dropped once no
// goroutine holds or waits for them.
type LocalUserLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

// NewLocalUserLocker returns an empty locker.
func NewLocalUserLocker() *LocalUserLocker {
	return &LocalUserLocker{locks: make(map[string]*localLock)}
}

func (l *LocalUserLocker) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[name]
	if !ok {
		entry = &localLock{sem: make(chan struct{}, 1)}
		l.locks[name] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(name, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(name, entry)
		})
	}, nil
}

func (l *LocalUserLocker) release(name string, entry *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, name)
	}
}
