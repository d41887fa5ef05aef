// Package service implements the A2A core operations on top of the store,
// broadcast, and bus ports: message routing, task lifecycle, push config
// management, and the discovery document.
package service

import "sync"

// taskLocks is a refcounted keyed mutex registry. Holding a task's lock
// makes transition, store write, and event publication one atomic step for
// that task without serializing unrelated tasks. Entries are removed when
// the last holder releases, so the registry does not grow with task count.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*taskLock
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[string]*taskLock)}
}

// lock acquires the mutex for the given task ID and returns its release
// function.
func (l *taskLocks) lock(taskID string) (unlock func()) {
	l.mu.Lock()
	tl, ok := l.locks[taskID]
	if !ok {
		tl = &taskLock{}
		l.locks[taskID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, taskID)
		}
		l.mu.Unlock()
	}
}
