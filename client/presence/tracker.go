// Package presence tracks the live set of collaborators in a project view.
package presence

import (
	"sync"

	"github.com/waldo1234567/task-management/domain"
)

// Tracker holds the current member set. Each presence broadcast replaces the
// set wholesale; the broadcast is authoritative and complete, so there is no
// merge or diff logic. A REST snapshot seeds the set while the push channel
// warms up.
type Tracker struct {
	mu      sync.Mutex
	members []domain.Member
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Replace installs a new member set, discarding the previous one.
func (t *Tracker) Replace(members []domain.Member) {
	next := append([]domain.Member(nil), members...)
	t.mu.Lock()
	t.members = next
	t.mu.Unlock()
}

// Members returns a read-only snapshot of the current set.
func (t *Tracker) Members() []domain.Member {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Member(nil), t.members...)
}
