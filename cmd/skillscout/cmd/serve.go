package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillscout/skillscout/internal/config"
	"github.com/skillscout/skillscout/internal/embed"
	"github.com/skillscout/skillscout/internal/httpapi"
	"github.com/skillscout/skillscout/internal/index"
	"github.com/skillscout/skillscout/internal/lifecycle"
	"github.com/skillscout/skillscout/internal/logging"
	"github.com/skillscout/skillscout/internal/mcp"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var configPath string
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the skill retrieval server",
		Long: `Start the Skillscout server. Configured skill sources load in the
background; the server answers requests immediately.

The HTTP listener (streamable MCP at /mcp, POST /skills/upload,
GET /health) always runs. With --transport stdio the MCP protocol is
additionally served on standard input/output for direct client spawns.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, transport)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "skillscout.json", "Path to the configuration file")
	cmd.Flags().StringVar(&transport, "transport", "http", "MCP transport: http or stdio")

	return cmd
}

func runServe(parent context.Context, configPath, transport string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := cfg.Log
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	defer cleanup()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder := embed.NewProvider(cfg.EmbeddingModel, cfg.OllamaHost, logger)
	defer func() { _ = embedder.Close() }()

	idx := index.New(embedder, logger)

	coordinator, err := lifecycle.New(cfg, idx, logger)
	if err != nil {
		return err
	}

	mcpServer, err := mcp.NewServer(idx, coordinator.State(), cfg, logger)
	if err != nil {
		return err
	}

	api := httpapi.New(cfg.ListenAddr, mcpServer.MCPServer(), coordinator, logger)

	coordinator.Start(ctx)

	errCh := make(chan error, 2)
	go func() { errCh <- api.Start() }()

	if transport == "stdio" {
		go func() { errCh <- mcpServer.Serve(ctx) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-errCh:
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := api.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("HTTP shutdown incomplete", slog.String("error", serr.Error()))
	}
	coordinator.Stop()

	logger.Info("server stopped")
	return err
}
