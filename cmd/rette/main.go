package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rette/internal/cli"
	"rette/internal/config"
	"rette/internal/log"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "rette",
		Short:         "Track recurring fee payments kept in a shared spreadsheet",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cli.LoadEnvFile()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(rosterCmd())
	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(setDateCmd())
	rootCmd.AddCommand(payBulkCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads config and a logger for a subcommand.
func setup() (*config.Config, *log.Logger, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, cli.SetupLogger(cfg), nil
}

// loadedApp wires the tracker and performs the first roster load.
func loadedApp(ctx context.Context, opts cli.BuildOptions) (*cli.App, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}
	app, err := cli.BuildTracker(ctx, cfg, logger, opts)
	if err != nil {
		return nil, err
	}
	if err := app.Tracker.Load(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}
