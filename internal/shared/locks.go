package shared

import "sync"

// UserLocks serializes mutations for the same user while letting different
// users proceed in parallel. Mutex entries are never removed; the population
// is bounded by the active user count.
type UserLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewUserLocks returns an empty lock table.
func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the user's mutex and returns the matching unlock.
func (l *UserLocks) Lock(userID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
