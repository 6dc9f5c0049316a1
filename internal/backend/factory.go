package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rette/internal/core"
	"rette/internal/sheets/appscript"
	gsheet "rette/internal/sheets/google"
	"rette/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case AppScriptBackend:
		return f.createAppScriptBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createAppScriptBackend(config Config) (*BackendResult, error) {
	cli, err := appscript.New(appscript.Config{
		Endpoint:  config.RosterEndpoint,
		RateLimit: config.RateLimit,
		Timeout:   config.Timeout,
	})
	if errors.Is(err, core.ErrSetupRequired) {
		f.logger.Warn("Roster endpoint not configured, setup required")
		return &BackendResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Apps Script client: %w", err)
	}

	f.logger.Info("Initialized Apps Script backend", "rate_limit", config.RateLimit)

	return &BackendResult{Source: cli}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		SheetName:          config.GoogleSheetName,
		TimeZone:           config.GoogleSheetTimeZone,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
		RateLimit:          config.RateLimit,
		Timeout:            config.Timeout,
	})
	if errors.Is(err, core.ErrSetupRequired) {
		f.logger.Warn("Google spreadsheet id not configured, setup required")
		return &BackendResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		"sheet", config.GoogleSheetName,
		"time_zone", config.GoogleSheetTimeZone)

	return &BackendResult{Source: cli}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)

	return &BackendResult{Source: store}, nil
}
