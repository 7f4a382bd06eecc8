// Package cmd provides the CLI commands for Skillscout.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/skillscout/skillscout/internal/logging"
	"github.com/skillscout/skillscout/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the skillscout CLI.
func NewRootCmd() *cobra.Command {
	var configPath string
	var transport string

	cmd := &cobra.Command{
		Use:   "skillscout",
		Short: "MCP server that retrieves skills for AI agents",
		Long: `Skillscout indexes skill bundles from git repositories and local
directories and serves them to AI clients over the Model Context
Protocol: semantic skill search, document retrieval, and uploads.

Running 'skillscout' with no subcommand starts the server.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runServe(cmd.Context(), configPath, transport)
		},
	}

	cmd.SetVersionTemplate("skillscout version {{.Version}}\n")

	cmd.Flags().StringVarP(&configPath, "config", "c", "skillscout.json", "Path to the configuration file")
	cmd.Flags().StringVar(&transport, "transport", "http", "MCP transport: http or stdio")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.skillscout/logs/")
	cmd.PersistentPreRunE = setupDebugLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupDebugLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}

	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("Debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}
