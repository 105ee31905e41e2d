package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glossa-app/glossa/pkg/mcp"
)

func newMCPCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the enrichment tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coord, _, cleanup, err := g.openCoordinator(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := []mcp.Option{mcp.WithLogger(g.logger)}
			if m := coord.Cache(); m != nil {
				opts = append(opts, mcp.WithCache(m))
			}
			if q, ok := coord.Recorder().(mcp.AttemptQuerier); ok {
				opts = append(opts, mcp.WithAttempts(q))
			}
			return mcp.New(coord, version, opts...).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
