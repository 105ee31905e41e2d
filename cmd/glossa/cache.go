package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glossa-app/glossa/pkg/cache"
	"github.com/glossa-app/glossa/pkg/models"
)

func newCacheCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the result cache",
	}
	cmd.AddCommand(
		newCacheStatsCmd(g),
		newCacheClearCmd(g),
		newCacheMaintainCmd(g),
	)
	return cmd
}

// withCache runs fn against the configured cache.
func withCache(g *globals, fn func(ctx context.Context, m *cache.Manager) error) error {
	ctx := context.Background()
	coord, _, cleanup, err := g.openCoordinator(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, coord.Cache())
}

func newCacheStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache occupancy per namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(g, func(ctx context.Context, m *cache.Manager) error {
				usage := m.Usage(ctx)
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAMESPACE\tENTRIES")
				for _, ns := range models.Namespaces {
					fmt.Fprintf(w, "%s\t%d\n", ns, usage.Entries[ns])
				}
				if err := w.Flush(); err != nil {
					return err
				}
				quota := "unlimited"
				if usage.QuotaBytes > 0 {
					quota = humanize.IBytes(uint64(usage.QuotaBytes))
				}
				fmt.Printf("\nStorage: %s of %s\n", humanize.IBytes(uint64(usage.BytesInUse)), quota)
				return nil
			})
		},
	}
}

func newCacheClearCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(g, func(ctx context.Context, m *cache.Manager) error {
				m.ClearAll(ctx)
				fmt.Println("All cache entries cleared.")
				return nil
			})
		},
	}
}

func newCacheMaintainCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Remove expired entries and enforce entry limits and the storage quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(g, func(ctx context.Context, m *cache.Manager) error {
				report := m.PerformMaintenance(ctx)
				for _, ns := range models.Namespaces {
					if n := report.Removed[ns]; n > 0 {
						fmt.Printf("%-12s %s removed\n", ns, humanize.Comma(int64(n)))
					}
				}
				fmt.Printf("Removed %s entries.\n", humanize.Comma(int64(report.Total())))
				return nil
			})
		},
	}
}
