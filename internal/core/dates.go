package core

import (
	"strings"
	"time"
	_ "time/tzdata" // reference zone must resolve on hosts without zoneinfo
)

// ReferenceZone is the fixed timezone used to display and edit dates.
const ReferenceZone = "Asia/Kolkata"

const (
	dateOnlyLayout = "2006-01-02"
	localLayout    = "2006-01-02T15:04:05"
	spacedLayout   = "2006-01-02 15:04:05"
	displayLayout  = "02-Jan-2006"
	// CanonicalLayout is the timestamp form produced by the remote source.
	CanonicalLayout = "2006-01-02T15:04:05.000Z"
)

// NotAvailable is displayed for dates that were never recorded.
const NotAvailable = "N/A"

var referenceLocation = mustLoadLocation(ReferenceZone)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("load reference zone: " + err.Error())
	}
	return loc
}

// ReferenceLocation returns the display/edit timezone.
func ReferenceLocation() *time.Location {
	return referenceLocation
}

// ParsePaymentDate parses a stored date value. Date-only strings are read
// as midnight UTC, timestamps with an offset as-is and timestamps without
// one (T or space separated) as UTC.
func ParsePaymentDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if strings.Contains(value, " ") {
		t, err := time.ParseInLocation(spacedLayout, value, time.UTC)
		return t, err == nil
	}
	if !strings.Contains(value, "T") {
		t, err := time.Parse(dateOnlyLayout, value)
		return t, err == nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(localLayout, value, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// FirstOfMonth returns midnight of the first day of now's month in the
// reference zone.
func FirstOfMonth(now time.Time) time.Time {
	n := now.In(referenceLocation)
	return time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, referenceLocation)
}

// IsOverdue reports whether a stored date value is missing or earlier than
// the first day of now's month. Unparseable values are never overdue.
func IsOverdue(value string, now time.Time) bool {
	if strings.TrimSpace(value) == "" {
		return true
	}
	if value == PendingLabel {
		return false
	}
	t, ok := ParsePaymentDate(value)
	if !ok {
		return false
	}
	return t.Before(FirstOfMonth(now))
}

// DisplayDate renders a stored date value as DD-Mon-YYYY in the reference
// zone. Empty values render as NotAvailable; anything unparseable is
// returned verbatim.
func DisplayDate(value string) string {
	if value == "" || value == NotAvailable {
		return NotAvailable
	}
	if value == PendingLabel {
		return value
	}
	t, ok := ParsePaymentDate(value)
	if !ok {
		return value
	}
	return t.In(referenceLocation).Format(displayLayout)
}

// EditableDate renders a stored date value as YYYY-MM-DD in the reference
// zone, or "" when it cannot be parsed.
func EditableDate(value string) string {
	t, ok := ParsePaymentDate(value)
	if !ok {
		return ""
	}
	return t.In(referenceLocation).Format(dateOnlyLayout)
}

// CanonicalDate formats an instant the way the remote source stamps
// payments.
func CanonicalDate(t time.Time) string {
	return t.UTC().Format(CanonicalLayout)
}

// Overdue classifies the state at now. Pending states are never overdue.
func (p PaymentState) Overdue(now time.Time) bool {
	if p.pending {
		return false
	}
	return IsOverdue(p.date, now)
}

// Status classifies the state at now.
func (p PaymentState) Status(now time.Time) Status {
	switch {
	case p.pending:
		return StatusPending
	case IsOverdue(p.date, now):
		return StatusOverdue
	default:
		return StatusPaid
	}
}

// Display renders the state for presentation.
func (p PaymentState) Display() string {
	if p.pending {
		return PendingLabel
	}
	return DisplayDate(p.date)
}

// Editable renders the state for a date picker.
func (p PaymentState) Editable() string {
	if p.pending {
		return ""
	}
	return EditableDate(p.date)
}
