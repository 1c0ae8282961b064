// Package server tracks which connections are subscribed to which broadcast
// groups. Broadcasts only take per-group read locks, so traffic in one
// tenant's groups never contends with another's.
package server

import (
	"sync"

	"github.com/samber/lo"
)

type group struct {
	mu      sync.RWMutex
	members map[*Client]struct{}
}

// Registry is a concurrency-safe mapping from group name to the set of
// member connections. Groups exist implicitly: they are created on first
// subscribe and removed when their last member leaves, and broadcasting to
// an absent group is a no-op.
//
// Membership mutations hold the table lock for their full duration. They
// happen exactly once per connection lifecycle, so the hot path is
// Broadcast, which only takes read locks.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*group
}

// NewRegistry creates an empty membership registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]*group)}
}

// Subscribe adds the client to the named group, creating it if needed.
func (r *Registry) Subscribe(name string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[name]
	if !ok {
		g = &group{members: make(map[*Client]struct{})}
		r.groups[name] = g
	}

	g.mu.Lock()
	g.members[c] = struct{}{}
	g.mu.Unlock()
}

// Unsubscribe removes the client from the named group and drops the group
// once it has no members left.
func (r *Registry) Unsubscribe(name string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[name]
	if !ok {
		return
	}

	g.mu.Lock()
	delete(g.members, c)
	empty := len(g.members) == 0
	g.mu.Unlock()

	if empty {
		delete(r.groups, name)
	}
}

// Broadcast delivers payload to every member of the named group except the
// excluded sender. Delivery is best effort: a recipient with a full outbound
// buffer is skipped rather than blocking the others. Returns the number of
// connections the payload was handed to.
func (r *Registry) Broadcast(name string, payload []byte, exclude *Client) int {
	r.mu.RLock()
	g, ok := r.groups[name]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	g.mu.RLock()
	members := lo.Keys(g.members)
	g.mu.RUnlock()

	delivered := 0
	for _, member := range members {
		if member == exclude {
			continue
		}
		if member.trySend(payload) {
			delivered++
		}
	}
	return delivered
}

// MemberCount reports the current size of the named group.
func (r *Registry) MemberCount(name string) int {
	r.mu.RLock()
	g, ok := r.groups[name]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}
