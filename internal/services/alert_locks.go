package services

import (
	"sync"

	"github.com/google/uuid"
)

// alertLocks serializes all writers of a single alert. Entries are
// refcounted so the map does not grow with alert history.
type alertLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*alertLockEntry
}

type alertLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newAlertLocks() *alertLocks {
	return &alertLocks{locks: make(map[uuid.UUID]*alertLockEntry)}
}

func (l *alertLocks) lock(id uuid.UUID) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &alertLockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *alertLocks) unlock(id uuid.UUID) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
	}
	l.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
