// Package cli provides common CLI initialization utilities shared by the
// rette subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rette/internal/amqp"
	"rette/internal/backend"
	"rette/internal/config"
	"rette/internal/log"
	"rette/internal/metrics"
	"rette/internal/services"
	"rette/internal/storage"
)

// SetupLogger builds the application logger from cfg and installs it as
// the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
		Output:    os.Stderr,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitJournal opens the payment journal. An empty path disables it and
// returns nil.
func InitJournal(logger *log.Logger, dbPath string) (*storage.Journal, error) {
	if dbPath == "" {
		return nil, nil
	}
	j, err := storage.NewJournal(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open payment journal %s: %w", dbPath, err)
	}
	logger.Info("Payment journal ready", "path", dbPath)
	return j, nil
}

// App holds the wired tracker and the resources behind it.
type App struct {
	Tracker   *services.Tracker
	Journal   *storage.Journal
	Publisher *amqp.Publisher
	Metrics   *metrics.Metrics

	cleanups []func() error
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanups = nil
	return errors.Join(errs...)
}

// BuildOptions selects the optional recorders.
type BuildOptions struct {
	// Journal opens the sqlite journal when a path is configured.
	Journal bool
	// Publish connects the AMQP publisher when a URL is configured.
	Publish bool
}

// BuildTracker wires the roster source, recorders and metrics into a
// tracker. A publisher that cannot connect is logged and skipped.
func BuildTracker(ctx context.Context, cfg *config.Config, logger *log.Logger, opts BuildOptions) (*App, error) {
	app := &App{Metrics: metrics.New()}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}
	if res.Cleanup != nil {
		app.cleanups = append(app.cleanups, res.Cleanup)
	}
	if res.Source == nil {
		logger.Warn("Roster source not configured", log.FieldBackend, bcfg.Type.String())
	} else {
		logger.Info("Roster source initialized", log.FieldBackend, bcfg.Type.String())
	}

	var recorders []services.Recorder
	if opts.Journal {
		j, err := InitJournal(logger, cfg.JournalDBPath)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		if j != nil {
			app.Journal = j
			app.cleanups = append(app.cleanups, j.Close)
			recorders = append(recorders, j)
		}
	}
	if opts.Publish && cfg.AMQPURL != "" {
		p, err := amqp.NewPublisher(ctx, amqp.Config{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRoutingKey,
		})
		if err != nil {
			logger.Warn("AMQP publisher unavailable, continuing without it", log.FieldError, err)
		} else {
			app.Publisher = p
			app.cleanups = append(app.cleanups, p.Close)
			recorders = append(recorders, p)
		}
	}

	trackerOpts := []services.TrackerOption{
		services.WithLogger(logger),
		services.WithMetrics(app.Metrics),
	}
	if len(recorders) > 0 {
		trackerOpts = append(trackerOpts, services.WithRecorder(services.NewMultiRecorder(logger, app.Metrics, recorders...)))
	}
	app.Tracker = services.NewTracker(res.Source, trackerOpts...)
	return app, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM.
// The returned stop func restores default signal handling.
func GracefulShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ShutdownTimeout bounds the drain of in-flight requests.
const ShutdownTimeout = 30 * time.Second
