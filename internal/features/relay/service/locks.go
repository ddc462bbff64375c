package service

import "sync"

// lockTable is the process-local advisory lock set guarding topic creation.
// Locks are held only across the check-then-create critical section and are
// never shared between processes.
type lockTable struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[int64]struct{})}
}

// TryAcquire takes the lock for id without blocking. A false return means
// another relay attempt for the same user is already creating the topic.
func (t *lockTable) TryAcquire(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.held[id]; ok {
		return false
	}
	t.held[id] = struct{}{}
	return true
}

func (t *lockTable) Release(id int64) {
	t.mu.Lock()
	delete(t.held, id)
	t.mu.Unlock()
}
