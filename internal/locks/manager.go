// Package locks provides per-record mutual exclusion for pipeline traversals.
package locks

import "sync"

// Manager hands out one mutex per record id, created lazily under a coarse
// guard. The map grows for the life of the process; record ids are bounded by
// store size, so the growth is too.
type Manager struct {
	global sync.Mutex

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{locks: make(map[int64]*sync.Mutex)}
}

// Record returns the mutex dedicated to recordID, creating it on first
// reference. Callers lock and unlock it around the record's full traversal.
func (m *Manager) Record(recordID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[recordID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[recordID] = lock
	}
	return lock
}

// Global returns the process-wide lock used only to snapshot the
// unprocessed-record list. It is never held during per-record work.
func (m *Manager) Global() *sync.Mutex {
	return &m.global
}
