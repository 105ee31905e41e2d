package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/glossa-app/glossa/pkg/config"
	"github.com/glossa-app/glossa/pkg/coordinator"
)

var version = "dev"

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	verbose    bool
	logger     *slog.Logger
}

func main() {
	g := &globals{}

	root := &cobra.Command{
		Use:           "glossa",
		Short:         "glossa: AI article enrichment with backend fallback and result caching",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if g.verbose {
				level = slog.LevelDebug
			}
			g.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(g.logger)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "",
		"path to glossa config file (default $"+coordinator.ConfigEnv+")")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(g),
		newEnrichCmd(g),
		newCacheCmd(g),
		newStatusCmd(g),
		newAttemptsCmd(g),
		newMCPCmd(g),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (g *globals) loadConfig() (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = os.Getenv(coordinator.ConfigEnv)
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openCoordinator builds a coordinator from the configuration. The returned
// cleanup destroys it.
func (g *globals) openCoordinator(ctx context.Context) (*coordinator.Coordinator, *config.Config, func(), error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	coord, err := coordinator.FromConfig(ctx, cfg, g.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := coord.Destroy(); err != nil {
			g.logger.Warn("shutdown incomplete", "error", err)
		}
	}
	return coord, cfg, cleanup, nil
}
