// Package presence owns the in-memory mapping from identity to its live
// connection. It is the single source of truth for "who is online right
// now" and holds no durable state: the registry is empty on every process
// start and rebuilt purely from live connection activity.
package presence

import (
	"sort"
	"sync"

	"parley/contract"
	"parley/errors"
)

type entry struct {
	displayName string
	conn        contract.Conn
}

type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry // map userID -> live connection
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register creates the presence entry for an identity. It fails with
// ErrAlreadyOnline if an entry already exists; the caller runs the
// eviction protocol and retries rather than overwriting.
func (r *Registry) Register(userID, displayName string, c contract.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[userID]; ok {
		return errors.ErrAlreadyOnline
	}
	r.entries[userID] = entry{displayName: displayName, conn: c}
	return nil
}

// Unregister removes the entry for an identity. Idempotent; no-op if absent.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
}

// UnregisterConn removes the entry only if it still points at this exact
// connection. The disconnect path of an evicted connection uses this so it
// cannot tear down the entry of the newer connection that replaced it.
// Returns true if an entry was removed.
func (r *Registry) UnregisterConn(userID string, c contract.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok || e.conn.ID() != c.ID() {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Lookup returns the connection handle currently owned by an identity.
func (r *Registry) Lookup(userID string) (contract.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// DisplayNames returns the names of everyone online, sorted so that the
// chat_update_users broadcast is stable across calls.
func (r *Registry) DisplayNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.displayName)
	}
	sort.Strings(names)
	return names
}
