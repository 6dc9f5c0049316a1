package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rette/internal/cli"
	"rette/internal/storage"
)

func historyCmd() *cobra.Command {
	var (
		recordID int64
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled payments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			j, err := cli.InitJournal(logger, cfg.JournalDBPath)
			if err != nil {
				return err
			}
			if j == nil {
				return errors.New("payment journal disabled: set JOURNAL_DB_PATH")
			}
			defer j.Close()

			entries, err := j.ListPayments(cmd.Context(), recordID, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RECORDED\tRECORD\tOPERATION\tDATE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.At.Format("2006-01-02 15:04:05"), e.RecordID, e.Operation, e.Date)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64Var(&recordID, "record", 0, "only this record id")
	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultHistoryLimit, "maximum entries")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply payment journal migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			if cfg.JournalDBPath == "" {
				return errors.New("payment journal disabled: set JOURNAL_DB_PATH")
			}
			if err := storage.RunMigrations(cfg.JournalDBPath); err != nil {
				return err
			}
			version, dirty, err := storage.SchemaVersion(cfg.JournalDBPath)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return err
		},
	}
}
