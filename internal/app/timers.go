package app

import (
	"context"
	"sync"
)

// timerKey identifies the question a countdown belongs to.
type timerKey struct {
	sessionID string
	index     int
}

type timerHandle struct {
	key    timerKey
	cancel context.CancelFunc
}

// timerRegistry owns the countdown task of every user. At most one
// uncancelled task is registered per user.
type timerRegistry struct {
	mu     sync.Mutex
	active map[int64]*timerHandle
	closed bool
	wg     sync.WaitGroup
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{active: make(map[int64]*timerHandle)}
}

// start cancels the user's current task, if any, and runs a new one. It
// reports false once the registry is closed or parent is done.
func (r *timerRegistry) start(parent context.Context, userID int64, key timerKey, run func(ctx context.Context)) bool {
	r.mu.Lock()
	if r.closed || parent.Err() != nil {
		r.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	h := &timerHandle{key: key, cancel: cancel}
	if old, ok := r.active[userID]; ok {
		old.cancel()
	}
	r.active[userID] = h
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.release(userID, h)
		run(ctx)
	}()
	return true
}

func (r *timerRegistry) release(userID int64, h *timerHandle) {
	r.mu.Lock()
	if r.active[userID] == h {
		delete(r.active, userID)
	}
	r.mu.Unlock()
	h.cancel()
}

// cancel stops whatever task the user has.
func (r *timerRegistry) cancel(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[userID]
	if !ok {
		return false
	}
	h.cancel()
	delete(r.active, userID)
	return true
}

// cancelIf stops the user's task only when it belongs to key.
func (r *timerRegistry) cancelIf(userID int64, key timerKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[userID]
	if !ok || h.key != key {
		return false
	}
	h.cancel()
	delete(r.active, userID)
	return true
}

func (r *timerRegistry) current(userID int64) (timerKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[userID]
	if !ok {
		return timerKey{}, false
	}
	return h.key, true
}

func (r *timerRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// wait blocks until every task has returned.
func (r *timerRegistry) wait() {
	r.wg.Wait()
}

// close refuses further tasks, cancels the running ones and waits for them.
func (r *timerRegistry) close() {
	r.mu.Lock()
	r.closed = true
	for userID, h := range r.active {
		h.cancel()
		delete(r.active, userID)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
