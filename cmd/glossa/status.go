package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glossa-app/glossa/pkg/models"
)

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe every configured backend and show which are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			coord, _, cleanup, err := g.openCoordinator(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			status := coord.RefreshStatus(ctx)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tSTATE")
			for _, id := range models.BackendIDs {
				state := "not configured"
				if ok, known := status.BackendAvailable[id]; known {
					state = "unavailable"
					if ok {
						state = "available"
					}
				}
				fmt.Fprintf(w, "%s\t%s\n", id, state)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !status.AnyAvailable() {
				return fmt.Errorf("no backend available")
			}
			return nil
		},
	}
}
