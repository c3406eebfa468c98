package app

import (
	"context"
	"sync"
)

// userLocks is a registry of per-user mutexes. Entries are reference counted
// and dropped once nobody holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	sem  chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

func (l *userLocks) ref(userID int64) *userLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &userLock{sem: make(chan struct{}, 1)}
		l.locks[userID] = lock
	}
	lock.refs++
	return lock
}

func (l *userLocks) unref(userID int64, lock *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, userID)
	}
}

// acquire blocks until the user's lock is held or ctx is done.
func (l *userLocks) acquire(ctx context.Context, userID int64) (func(), error) {
	lock := l.ref(userID)
	select {
	case lock.sem <- struct{}{}:
		return l.releaser(userID, lock), nil
	case <-ctx.Done():
		l.unref(userID, lock)
		return nil, ctx.Err()
	}
}

// tryAcquire takes the lock only if it is free.
func (l *userLocks) tryAcquire(userID int64) (func(), bool) {
	lock := l.ref(userID)
	select {
	case lock.sem <- struct{}{}:
		return l.releaser(userID, lock), true
	default:
		l.unref(userID, lock)
		return nil, false
	}
}

func (l *userLocks) releaser(userID int64, lock *userLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.sem
			l.unref(userID, lock)
		})
	}
}
