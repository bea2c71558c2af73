// Package rooms tracks which logical room the client last joined per
// room kind, so membership can be re-announced after a reconnect.
package rooms

import (
	"sort"
	"sync"
)

// Well-known room kinds on the Podwave platform.
const (
	KindGame          = "game"
	KindCollaborative = "collaborative"
)

// Membership is one recorded room id for a kind.
type Membership struct {
	Kind string
	ID   string
}

// Tracker holds at most one room id per kind.
type Tracker struct {
	mu     sync.Mutex
	byKind map[string]string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{byKind: make(map[string]string)}
}

// Join records id under kind, overwriting any prior value. The prior
// room is not notified of a leave; that is the caller's concern.
func (t *Tracker) Join(kind, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKind[kind] = id
}

// Leave clears the stored value for kind only when it currently equals
// id, guarding against a stale leave racing a newer join. Reports
// whether anything was cleared.
func (t *Tracker) Leave(kind, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.byKind[kind]; ok && current == id {
		delete(t.byKind, kind)
		return true
	}
	return false
}

// Get returns the recorded room id for kind.
func (t *Tracker) Get(kind string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byKind[kind]
	return id, ok
}

// Snapshot returns all memberships ordered by kind, for deterministic
// rejoin emission.
func (t *Tracker) Snapshot() []Membership {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Membership, 0, len(t.byKind))
	for kind, id := range t.byKind {
		out = append(out, Membership{Kind: kind, ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Clear removes all memberships.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKind = make(map[string]string)
}

// Len returns the number of kinds with a recorded room.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKind)
}
