package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"rette/internal/cli"
	"rette/internal/services"
)

func rosterCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Print the ordered roster with payment status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadedApp(cmd.Context(), cli.BuildOptions{})
			if err != nil {
				return err
			}
			defer app.Close()

			view := app.Tracker.View(time.Now())
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			printRoster(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func printRoster(out io.Writer, v services.RosterView) {
	if v.Status == services.StatusEmpty {
		fmt.Fprintln(out, "Roster is empty.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range v.Cohorts {
		fmt.Fprintf(tw, "%s\n", c.Name)
		for _, r := range c.Records {
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", r.ID, r.Name, r.Display, r.Status)
		}
	}
	tw.Flush()
	fmt.Fprintf(out, "\n%d records, %d overdue, %d pending\n",
		v.Summary.Records, v.Summary.Overdue, v.Summary.Pending)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid record id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func payCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay <id>",
		Short: "Mark a record as paid now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, err := loadedApp(cmd.Context(), cli.BuildOptions{Journal: true, Publish: true})
			if err != nil {
				return err
			}
			defer app.Close()

			date, err := app.Tracker.MarkPaid(cmd.Context(), ids[0])
			if err != nil {
				return err
			}
			return reportPaid(cmd.OutOrStdout(), ids, date)
		},
	}
}

func setDateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-date <id> <YYYY-MM-DD>",
		Short: "Set the last payment date of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			app, err := loadedApp(cmd.Context(), cli.BuildOptions{Journal: true, Publish: true})
			if err != nil {
				return err
			}
			defer app.Close()

			date, err := app.Tracker.SetPaymentDate(cmd.Context(), ids[0], args[1])
			if err != nil {
				return err
			}
			return reportPaid(cmd.OutOrStdout(), ids, date)
		},
	}
}

func payBulkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay-bulk <id>...",
		Short: "Mark several records as paid in one update",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			app, err := loadedApp(cmd.Context(), cli.BuildOptions{Journal: true, Publish: true})
			if err != nil {
				return err
			}
			defer app.Close()

			date, err := app.Tracker.MarkPaidBulk(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return reportPaid(cmd.OutOrStdout(), ids, date)
		},
	}
}

func reportPaid(out io.Writer, ids []int64, date string) error {
	if date == "" {
		_, err := fmt.Fprintln(out, "Nothing to update.")
		return err
	}
	_, err := fmt.Fprintf(out, "Updated %v: %s\n", ids, date)
	return err
}
