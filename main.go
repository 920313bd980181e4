package main

// main.go: entrypoint, starts the MCP server over stdio.

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bollu/elide-sub000/internal/config"
)

var version = "0.1.0"

func main() {
	var configPath, logLevel string

	rootCmd := &cobra.Command{
		Use:   "elide-mcp",
		Short: "MCP server for editing Lean 4 files against a live language server",
		Long: `Serves editing sessions for .lean files over MCP on stdio. Each open
file gets its own Lean language server: "lake serve" inside a Lake project,
"lean --server" otherwise.

Configuration is read from a TOML file (--config) and ELIDE_* environment
variables. Logs go to stderr or the configured log file, never stdout.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.Version = version

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ws := newWorkspace(cfg, log, nil)
	server := newServer(ws)

	log.Info("serving", zap.String("version", version))
	serveErr := server.Run(ctx, &mcp.StdioTransport{})
	if err := ws.shutdown(); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}

func newServer(ws *workspace) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "elide-mcp",
		Version: version,
	}, nil)
	registerTools(server, ws)
	return server
}
