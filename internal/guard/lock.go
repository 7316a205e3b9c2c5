// Package guard holds the process-wide concurrency guards: the scheduler
// lock and the per-caller request rate limiters.
package guard

import (
	"sync"
	"time"
)

// SchedulerLock allows one sweep at a time. A hold older than timeout is
// treated as abandoned and may be taken over.
type SchedulerLock struct {
	mu         sync.Mutex
	held       bool
	token      uint64
	acquiredAt time.Time
	timeout    time.Duration
	now        func() time.Time
}

func NewSchedulerLock(timeout time.Duration, now func() time.Time) *SchedulerLock {
	if now == nil {
		now = time.Now
	}
	return &SchedulerLock{timeout: timeout, now: now}
}

// TryAcquire takes the lock. It returns false while a live hold exists.
// The token identifies this hold and must be passed to Release.
func (l *SchedulerLock) TryAcquire() (token uint64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.held && now.Sub(l.acquiredAt) < l.timeout {
		return 0, false
	}
	l.token++
	l.held = true
	l.acquiredAt = now
	return l.token, true
}

// Release ends the hold identified by token. A hold that was reclaimed
// after going stale belongs to its new owner and is left alone.
func (l *SchedulerLock) Release(token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held || token != l.token {
		return
	}
	l.held = false
	l.acquiredAt = time.Time{}
}

// Held reports whether a live hold exists and when it was taken.
func (l *SchedulerLock) Held() (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held || l.now().Sub(l.acquiredAt) >= l.timeout {
		return false, time.Time{}
	}
	return true, l.acquiredAt
}
