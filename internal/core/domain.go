package core

import (
	"errors"
	"fmt"
	"strings"
)

// PendingLabel is the status text shown for a record whose payment is being
// confirmed by the remote source. It is never sent to or stored remotely.
const PendingLabel = "Updating..."

type (
	// PaymentState is either Settled with a stored date value (possibly
	// empty, meaning never recorded) or Pending while a server-stamped
	// payment is awaited.
	PaymentState struct {
		pending bool
		date    string
	}

	// Record is one roster entry. ID is assigned by the remote source and is
	// unique across the whole roster.
	Record struct {
		ID           int64
		Name         string
		Payment      PaymentState
		Phone        string // empty when not provided
		GuardianName string // empty when not provided
	}

	// Cohorts is the raw cohort-name to records mapping returned by a source.
	Cohorts map[string][]Record
)

// Settled returns a state holding a stored date value.
func Settled(date string) PaymentState {
	return PaymentState{date: date}
}

// Pending returns the in-flight state.
func Pending() PaymentState {
	return PaymentState{pending: true}
}

// IsPending reports whether a server-stamped payment is awaited.
func (p PaymentState) IsPending() bool {
	return p.pending
}

// Date returns the stored date value. It is empty for pending states.
func (p PaymentState) Date() string {
	if p.pending {
		return ""
	}
	return p.date
}

// String renders the state as the wire value, or PendingLabel.
func (p PaymentState) String() string {
	if p.pending {
		return PendingLabel
	}
	return p.date
}

// Status is the row status of a record at a given instant.
type Status string

const (
	StatusPending Status = "pending"
	StatusOverdue Status = "overdue"
	StatusPaid    Status = "paid"
)

var (
	ErrSetupRequired      = errors.New("setup required: no roster endpoint configured")
	ErrLoadFailure        = errors.New("roster load failed")
	ErrMutationFailure    = errors.New("payment update failed")
	ErrNotFound           = errors.New("record not found")
	ErrMutationInProgress = errors.New("an update for this record is already in progress, try again")
	ErrEmptyDate          = errors.New("empty payment date")
	ErrDuplicateID        = errors.New("duplicate record id")
	ErrInvalidID          = errors.New("record id must be positive")
)

// LoadError wraps anything that went wrong while fetching the full roster.
// errors.Is(err, ErrLoadFailure) matches it.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", ErrLoadFailure, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoadFailure }

// Message is the text meant for the user-visible error surface.
func (e *LoadError) Message() string {
	if e.Err == nil {
		return ErrLoadFailure.Error()
	}
	return e.Err.Error()
}

// MutationError wraps a failed single or bulk update. The optimistic change
// has already been rolled back when a caller sees it.
// errors.Is(err, ErrMutationFailure) matches it.
type MutationError struct {
	Op  string
	IDs []int64
	Err error
}

func (e *MutationError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%s (%s ids=[%s]): %v", ErrMutationFailure, e.Op, strings.Join(ids, ","), e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

func (e *MutationError) Is(target error) bool { return target == ErrMutationFailure }
