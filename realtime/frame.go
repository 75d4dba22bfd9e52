package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"

	"vibe-drinks/models"
)

// Event names written on the push channel.
const (
	EventConnected          = "connected"
	EventHeartbeat          = "heartbeat"
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventOrderAssigned      = "order_assigned"
	EventOrderUpdated       = "order_updated"
)

// Frame is one named event with a JSON body.
type Frame struct {
	Event string
	Data  json.RawMessage
}

func NewFrame(event string, payload any) (Frame, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// Bytes renders the frame as "event: <name>\ndata: <json>\n\n".
func (f Frame) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(len(f.Event) + len(f.Data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(f.Event)
	buf.WriteString("\ndata: ")
	buf.Write(f.Data)
	buf.WriteString("\n\n")
	return buf.Bytes()
}

// Decode unmarshals the frame body into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}

type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type OrderCreatedPayload struct {
	OrderID string             `json:"orderId"`
	Status  models.OrderStatus `json:"status"`
}

type OrderStatusChangedPayload struct {
	OrderID        string             `json:"orderId"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previousStatus"`
}

type OrderAssignedPayload struct {
	OrderID   string             `json:"orderId"`
	MotoboyID string             `json:"motoboyId"`
	Status    models.OrderStatus `json:"status"`
}

type OrderUpdatedPayload struct {
	OrderID string `json:"orderId"`
}
