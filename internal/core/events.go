package core

import "time"

// Operation names a payment mutation.
type Operation string

const (
	OpMarkPaid     Operation = "mark_paid"
	OpSetDate      Operation = "set_date"
	OpMarkPaidBulk Operation = "mark_paid_bulk"
)

// PaymentEvent describes a mutation the remote source has confirmed.
type PaymentEvent struct {
	EventID   string    `json:"event_id"`
	Operation Operation `json:"operation"`
	RecordIDs []int64   `json:"record_ids"`
	Date      string    `json:"date"`
	At        time.Time `json:"at"`
}
