package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rette/internal/cli"
	"rette/internal/core"
	apphttp "rette/internal/http"
	"rette/internal/log"
)

func serveCmd() *cobra.Command {
	var rpm int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the roster JSON API",
		Long: `Serve the roster JSON API.

The roster is loaded once at startup. A failed or unconfigured load keeps
the server up and reports the state on /readyz and /api/roster.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rpm)
		},
	}
	cmd.Flags().IntVar(&rpm, "rate-limit", 0, "mutating requests per minute per client (0 uses the default)")
	return cmd
}

func runServe(rpm int) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := cli.GracefulShutdown()
	defer stop()

	app, err := cli.BuildTracker(ctx, cfg, logger, cli.BuildOptions{Journal: true, Publish: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Cleanup failed", log.FieldError, err)
		}
	}()

	opts := apphttp.Options{
		Metrics:           app.Metrics,
		Logger:            logger,
		RequestsPerMinute: rpm,
	}
	if app.Journal != nil {
		opts.History = app.Journal
	}
	srv := apphttp.NewServer(":"+cfg.Port, app.Tracker, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting rette server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := app.Tracker.Load(gctx)
		switch {
		case errors.Is(err, core.ErrSetupRequired):
			logger.Warn("Roster source not configured, serving setup state")
		case err != nil:
			logger.Error("Initial roster load failed", log.FieldError, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
