// Package server defines the wire envelopes exchanged with relay clients.
package server

import "encoding/json"

// Event names consumed from clients.
const (
	EventPing    = "ping"
	EventMessage = "message"
)

// Event names emitted to clients.
const (
	EventReady       = "ready"
	EventPong        = "pong"
	EventDelivery    = "message"
	EventDeliveryAck = "message:sent"
)

// Envelope is the outer frame of every event in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ReadyPayload is sent once after the connection is subscribed to its groups.
type ReadyPayload struct {
	Tenant string `json:"tenant"`
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	Groups int    `json:"groups"`
}

// PongPayload answers a client ping with the server clock.
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// DeliveryPayload is the body of both the group broadcast and the sender ack.
type DeliveryPayload struct {
	SenderUserID int64  `json:"sender_user_id"`
	Message      string `json:"message"`
	Timestamp    int64  `json:"timestamp"`
}

func marshalEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
