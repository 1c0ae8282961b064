// Package server manages one authenticated websocket connection: its
// read/write pumps, rate limiting, event dispatch, and teardown.
package server

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

const (
	// maxFrameBytes bounds a raw inbound frame. The 500-character message
	// cap is checked after decoding; this limit only protects the reader
	// from oversized frames.
	maxFrameBytes = 8192

	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
)

// Client is one authenticated connection. It owns exactly one Identity and
// one rate limiter, and holds the group subscription set computed once at
// connect time. None of these change for the connection's lifetime.
type Client struct {
	id       string
	conn     *websocket.Conn
	hub      *Hub
	identity *Identity
	groups   []string
	send     chan []byte
	limiter  *rateLimiter
	authedAt time.Time

	// closed is guarded by hub.mu; it gates sends against the closing of
	// the send channel during teardown.
	closed bool

	closeReason string
}

func newClient(id string, conn *websocket.Conn, hub *Hub, identity *Identity) *Client {
	if conn != nil {
		conn.SetReadLimit(maxFrameBytes)
	}
	return &Client{
		id:       id,
		conn:     conn,
		hub:      hub,
		identity: identity,
		groups:   identity.Groups(),
		send:     make(chan []byte, 256),
		limiter:  newRateLimiter(hub.limits.Capacity, hub.limits.Window),
		authedAt: time.Now(),
	}
}

// Identity returns the verified identity the connection was accepted with.
func (c *Client) Identity() *Identity {
	return c.identity
}

// trySend queues a payload for delivery without blocking. A full buffer or a
// closing connection drops the payload.
func (c *Client) trySend(payload []byte) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) enqueueEvent(event string, payload any) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		c.hub.log.Error("marshal outbound event", "event", event, "error", err)
		return
	}
	c.trySend(data)
}

func (c *Client) setupReadConnection() {
	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.noteReadError(err)
			return
		}
		c.handleEvent(raw)
	}
}

// noteReadError records why the read loop stopped, for the closure audit.
func (c *Client) noteReadError(err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.closeReason = "client-disconnect"
	default:
		c.closeReason = "read-error"
		if !isExpectedCloseError(err) {
			c.hub.log.Debug("websocket read error", "conn_id", c.id, "error", err)
		}
	}
}

// handleEvent runs one inbound event through the rate limiter and dispatches
// it by kind. A rate-limited event is dropped outright, never queued, and
// the connection stays open.
func (c *Client) handleEvent(raw []byte) {
	if !c.limiter.Admit(time.Now()) {
		c.hub.audit.Consume(AuditEvent{
			Kind:   AuditEventRateLimited,
			ConnID: c.id,
			Tenant: c.identity.Tenant,
			UserID: c.identity.UserID,
			Reason: dropReason(ErrRateLimited),
		})
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.auditRouteDrop(ErrInvalidPayload)
		return
	}

	switch env.Event {
	case EventPing:
		c.enqueueEvent(EventPong, PongPayload{Timestamp: time.Now().UnixMilli()})
	case EventMessage:
		c.handleRoutedMessage(env.Data)
	default:
		c.auditRouteDrop(ErrInvalidPayload)
	}
}

// handleRoutedMessage evaluates one routing request. Accepted messages fan
// out to the destination group, excluding this connection, and the sender is
// acknowledged with a delivery event carrying the same payload.
func (c *Client) handleRoutedMessage(data json.RawMessage) {
	var req RoutingRequest
	if len(data) == 0 || json.Unmarshal(data, &req) != nil {
		c.auditRouteDrop(ErrInvalidPayload)
		return
	}

	dest, err := Route(c.identity, &req)
	if err != nil {
		c.auditRouteDrop(err)
		return
	}

	delivery := DeliveryPayload{
		SenderUserID: c.identity.UserID,
		Message:      req.Message,
		Timestamp:    time.Now().UnixMilli(),
	}
	payload, merr := marshalEvent(EventDelivery, delivery)
	if merr != nil {
		c.hub.log.Error("marshal delivery", "conn_id", c.id, "error", merr)
		return
	}

	delivered := c.hub.registry.Broadcast(dest, payload, c)
	c.enqueueEvent(EventDeliveryAck, delivery)

	c.hub.audit.Consume(AuditEvent{
		Kind:        AuditRouteDelivered,
		ConnID:      c.id,
		Tenant:      c.identity.Tenant,
		UserID:      c.identity.UserID,
		Destination: dest,
		MessageLen:  utf8.RuneCountInString(req.Message),
		Delivered:   delivered,
	})
}

func (c *Client) auditRouteDrop(err error) {
	c.hub.audit.Consume(AuditEvent{
		Kind:   AuditRouteRejected,
		ConnID: c.id,
		Tenant: c.identity.Tenant,
		UserID: c.identity.UserID,
		Reason: dropReason(err),
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeMessage(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

func (c *Client) writeMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return false
	}
	if !ok {
		_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.log.Debug("websocket write error", "conn_id", c.id, "error", err)
		}
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return false
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil) == nil
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
