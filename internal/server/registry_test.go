package server

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHub(RateLimitConfig{Window: time.Second, Capacity: 30}, log, NewLogSink(log))
}

func testClient(t *testing.T, hub *Hub, identity *Identity) *Client {
	t.Helper()
	return newClient("test-"+identity.Tenant, nil, hub, identity)
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case payload := <-c.send:
		return payload
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected a queued payload")
		return nil
	}
}

func requireEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected payload queued: %s", payload)
	default:
	}
}

func TestRegistrySubscribeAndBroadcast(t *testing.T) {
	req := require.New(t)

	hub := testHub(t)
	reg := hub.Registry()

	sender := testClient(t, hub, &Identity{UserID: 1, Tenant: "acme.com"})
	peerA := testClient(t, hub, &Identity{UserID: 2, Tenant: "acme.com"})
	peerB := testClient(t, hub, &Identity{UserID: 3, Tenant: "acme.com"})

	name := ChannelGroup("acme.com", 2)
	reg.Subscribe(name, sender)
	reg.Subscribe(name, peerA)
	reg.Subscribe(name, peerB)
	req.Equal(3, reg.MemberCount(name))

	delivered := reg.Broadcast(name, []byte("hello"), sender)
	req.Equal(2, delivered)

	req.Equal([]byte("hello"), receive(t, peerA))
	req.Equal([]byte("hello"), receive(t, peerB))
	requireEmpty(t, sender)
}

func TestRegistryBroadcastAbsentGroup(t *testing.T) {
	hub := testHub(t)
	require.Zero(t, hub.Registry().Broadcast("t:ghost", []byte("x"), nil))
}

func TestRegistryUnsubscribe(t *testing.T) {
	req := require.New(t)

	hub := testHub(t)
	reg := hub.Registry()
	c := testClient(t, hub, &Identity{UserID: 1, Tenant: "acme.com"})

	name := TenantGroup("acme.com")
	reg.Subscribe(name, c)
	req.Equal(1, reg.MemberCount(name))

	reg.Unsubscribe(name, c)
	req.Zero(reg.MemberCount(name))

	// Unsubscribing twice or from an unknown group is harmless.
	reg.Unsubscribe(name, c)
	reg.Unsubscribe("t:ghost", c)
}

// Connections of one tenant must never receive broadcasts addressed to a
// group of another tenant, even for the same channel id.
func TestRegistryTenantIsolation(t *testing.T) {
	req := require.New(t)

	hub := testHub(t)
	reg := hub.Registry()

	acme := testClient(t, hub, &Identity{UserID: 1, Tenant: "acme.com", ChannelIDs: map[int64]struct{}{2: {}}})
	beta := testClient(t, hub, &Identity{UserID: 1, Tenant: "beta.io", ChannelIDs: map[int64]struct{}{2: {}}})

	for _, name := range acme.identity.Groups() {
		reg.Subscribe(name, acme)
	}
	for _, name := range beta.identity.Groups() {
		reg.Subscribe(name, beta)
	}

	delivered := reg.Broadcast(ChannelGroup("acme.com", 2), []byte("acme only"), nil)
	req.Equal(1, delivered)
	req.Equal([]byte("acme only"), receive(t, acme))
	requireEmpty(t, beta)
}

func TestRegistryDropsOnFullBuffer(t *testing.T) {
	req := require.New(t)

	hub := testHub(t)
	reg := hub.Registry()
	c := testClient(t, hub, &Identity{UserID: 1, Tenant: "acme.com"})

	name := TenantGroup("acme.com")
	reg.Subscribe(name, c)

	for i := 0; i < cap(c.send); i++ {
		c.send <- []byte("fill")
	}

	// A saturated recipient is skipped, not blocked on.
	req.Zero(reg.Broadcast(name, []byte("dropped"), nil))
}

func TestRegistryConcurrentChurn(t *testing.T) {
	hub := testHub(t)
	reg := hub.Registry()
	name := TenantGroup("acme.com")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			c := newClient("churn", nil, hub, &Identity{UserID: n, Tenant: "acme.com"})
			for j := 0; j < 50; j++ {
				reg.Subscribe(name, c)
				reg.Broadcast(name, []byte("x"), c)
				reg.Unsubscribe(name, c)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	require.Zero(t, reg.MemberCount(name))
}
