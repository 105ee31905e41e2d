package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glossa-app/glossa/pkg/ledger"
	"github.com/glossa-app/glossa/pkg/models"
)

func newAttemptsCmd(g *globals) *cobra.Command {
	var (
		requestID  string
		backend    string
		capability string
		outcome    string
		since      string
		limit      int
		stats      bool
	)

	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Search the ledger of backend attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			l, err := ledger.New(cfg.Ledger.DBPath, 0)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			ctx := context.Background()
			if stats {
				rows, err := l.Stats(ctx)
				if err != nil {
					return err
				}
				return printAttemptStats(rows)
			}

			opts := models.AttemptQueryOpts{
				RequestID:  requestID,
				Backend:    models.BackendID(backend),
				Capability: models.Capability(capability),
				Outcome:    models.AttemptOutcome(outcome),
				Limit:      limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			rows, err := l.Query(ctx, opts)
			if err != nil {
				return err
			}
			return printAttempts(rows)
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "filter by request ID")
	cmd.Flags().StringVar(&backend, "backend", "", "filter by backend (local, cloud)")
	cmd.Flags().StringVar(&capability, "capability", "", "filter by capability")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (success, failure, skipped)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max attempts to return")
	cmd.Flags().BoolVar(&stats, "stats", false, "show counts and mean latency instead of rows")
	return cmd
}

func printAttempts(rows []models.Attempt) error {
	if len(rows) == 0 {
		fmt.Println("No attempts found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tREQUEST\tCAPABILITY\tBACKEND\tOUTCOME\tTRIES\tLATENCY\tERROR")
	for _, a := range rows {
		errText := "-"
		if a.ErrorKind != "" {
			errText = a.ErrorKind + ": " + a.Message
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%dms\t%s\n",
			humanize.Time(a.CreatedAt), a.RequestID, a.Capability, a.Backend,
			a.Outcome, a.Attempts, a.LatencyMs, errText)
	}
	return w.Flush()
}

func printAttemptStats(rows []models.AttemptStat) error {
	if len(rows) == 0 {
		fmt.Println("No attempts recorded.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tCAPABILITY\tOUTCOME\tCOUNT\tAVG LATENCY")
	for _, s := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0fms\n",
			s.Backend, s.Capability, s.Outcome, humanize.Comma(int64(s.Count)), s.AvgLatencyMs)
	}
	return w.Flush()
}
