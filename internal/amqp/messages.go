package amqp

import (
	"encoding/json"
	"time"

	"rette/internal/core"
)

// PaymentMessage is the body published for every confirmed payment.
type PaymentMessage struct {
	EventID   string         `json:"event_id"`
	Operation core.Operation `json:"operation"`
	RecordIDs []int64        `json:"record_ids"`
	Date      string         `json:"date"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewPaymentMessage(ev core.PaymentEvent) *PaymentMessage {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &PaymentMessage{
		EventID:   ev.EventID,
		Operation: ev.Operation,
		RecordIDs: ev.RecordIDs,
		Date:      ev.Date,
		Timestamp: ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentMessageFromJSON creates a message from JSON bytes
func PaymentMessageFromJSON(data []byte) (*PaymentMessage, error) {
	var msg PaymentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
