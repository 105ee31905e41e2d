package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glossa-app/glossa/pkg/server"
)

func newServeCmd(g *globals) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the enrichment HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coord, cfg, cleanup, err := g.openCoordinator(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if listen == "" {
				listen = cfg.Listen
			}
			srv := server.New(coord,
				server.WithListen(listen),
				server.WithMaintenanceInterval(cfg.Cache.MaintenanceInterval),
				server.WithLogger(g.logger),
			)
			g.logger.Info("starting glossa", "store", cfg.Store.Kind, "config", g.configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}
