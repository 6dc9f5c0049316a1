package sheets

import (
	"context"
	"errors"
	"fmt"

	"rette/internal/core"
)

// Ports for outbound adapters.
type (
	// RosterReader fetches the whole roster in one call.
	RosterReader interface {
		FetchRoster(ctx context.Context) (core.Cohorts, error)
	}

	// PaymentWriter stamps payments on the remote source. Every method
	// returns the canonical date the source stored.
	PaymentWriter interface {
		// MarkPaid stamps the record with the source's current time.
		MarkPaid(ctx context.Context, id int64) (string, error)
		// SetPaymentDate stores an explicit date for the record.
		SetPaymentDate(ctx context.Context, id int64, date string) (string, error)
		// MarkPaidBulk stamps every listed record with one shared time.
		MarkPaidBulk(ctx context.Context, ids []int64) (string, error)
	}

	// RosterSource is a complete remote data source.
	RosterSource interface {
		RosterReader
		PaymentWriter
	}
)

// ErrMalformedResponse is returned when a response body does not match the
// expected envelope.
var ErrMalformedResponse = errors.New("malformed response")

// RemoteError is an explicit failure reported by the remote source.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "remote source reported failure"
	}
	return fmt.Sprintf("remote source reported failure: %s", e.Message)
}
