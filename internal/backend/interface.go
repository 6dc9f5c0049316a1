package backend

import (
	"context"
	"time"

	"rette/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the roster source and optional cleanup function.
// Source is nil when the selected backend is not configured yet; callers
// then report setup required.
type BackendResult struct {
	Source  sheets.RosterSource
	Cleanup CleanupFunc
}

// Factory creates roster sources based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Apps Script specific
	RosterEndpoint string

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleSheetTimeZone      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Memory backend specific
	SeedFile string

	// Shared by remote backends
	RateLimit float64
	Timeout   time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	AppScriptBackend BackendType = "appscript"
	SheetsBackend    BackendType = "sheets"
	MemoryBackend    BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case AppScriptBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
