// Package server coordinates connection registration, group subscription,
// and teardown for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub owns the shared state of the relay: the set of live connections and
// the group membership registry. Lifecycle events flow through channels so
// a connection is fully subscribed before its read loop processes anything,
// exactly once per connection.
type Hub struct {
	registry *Registry
	audit    AuditSink
	log      *slog.Logger
	limits   RateLimitConfig

	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub ready to manage connections. The audit sink receives
// every accept, close, and drop decision.
func NewHub(limits RateLimitConfig, log *slog.Logger, audit AuditSink) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if audit == nil {
		audit = NewLogSink(log)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   NewRegistry(),
		audit:      audit,
		log:        log,
		limits:     limits,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry exposes the group membership table.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run is the hub's event loop. It must be running before connections are
// handed to the hub, and should be started in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return
		case client := <-h.register:
			h.attach(client)
		case client := <-h.unregister:
			h.detach(client)
		}
	}
}

// attach admits an authenticated connection: it joins the client map,
// subscribes to every group derived from the identity, greets the client
// with a ready event, and only then starts the pumps. Subscription happens
// exactly once, before any inbound event can be read.
func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	c.closed = false
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	for _, name := range c.groups {
		h.registry.Subscribe(name, c)
	}

	h.audit.Consume(AuditEvent{
		Kind:   AuditConnectionAccepted,
		ConnID: c.id,
		Tenant: c.identity.Tenant,
		UserID: c.identity.UserID,
	})
	h.log.Info("connection attached",
		"conn_id", c.id,
		"tenant", c.identity.Tenant,
		"user_id", c.identity.UserID,
		"groups", len(c.groups),
		"total_clients", total,
	)

	c.enqueueEvent(EventReady, ReadyPayload{
		Tenant: c.identity.Tenant,
		UserID: c.identity.UserID,
		Role:   c.identity.Role,
		Groups: len(c.groups),
	})

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// detach tears a connection down: membership is dropped from every group,
// the send channel is closed, and a closure audit event reports the reason
// and the connection's authenticated duration.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	c.closed = true
	total := len(h.clients)
	h.mu.Unlock()

	close(c.send)

	for _, name := range c.groups {
		h.registry.Unsubscribe(name, c)
	}

	reason := c.closeReason
	if reason == "" {
		reason = "server-shutdown"
	}
	h.audit.Consume(AuditEvent{
		Kind:     AuditConnectionClosed,
		ConnID:   c.id,
		Tenant:   c.identity.Tenant,
		UserID:   c.identity.UserID,
		Reason:   reason,
		Duration: time.Since(c.authedAt),
	})
	h.log.Info("connection detached", "conn_id", c.id, "total_clients", total)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for all connection goroutines to finish,
// up to the timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	// The event loop is gone, so drain teardown requests from the pump
	// goroutines until they have all finished.
	go func() {
		for {
			select {
			case c := <-h.unregister:
				h.detach(c)
			case <-finished:
				return
			}
		}
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
