package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AbdelilahOu/dbroute/internal/config"
	"github.com/AbdelilahOu/dbroute/internal/database"
	"github.com/AbdelilahOu/dbroute/internal/events"
	"github.com/AbdelilahOu/dbroute/internal/logger"
	"github.com/AbdelilahOu/dbroute/internal/server"
)

const version = "v0.1.0"

// app is what PersistentPreRunE builds for every subcommand.
type app struct {
	config  *config.Config
	logger  *logger.Logger
	manager *database.Manager
}

var current app

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "dbroute",
	Short:         "Managed SQL connections with read replicas, mode-aware routing and migrations",
	Long:          `dbroute manages named database connections (primary plus read replicas), reports their health, runs migrations and exposes them to MCP clients.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags (persistent across subcmds)
	rootCmd.PersistentFlags().StringP("config", "f", "", "Connections file (JSON or YAML); defaults to $"+config.EnvConfigPath+" or the standard search path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("read-only", "r", false, "Enable read-only mode (SELECT only)")

	// Subcommand: stdio (local transport, like IDE integration)
	stdioCmd := &cobra.Command{
		Use:   "stdio",
		Short: "Run the MCP server over stdio transport (for local MCP clients)",
		RunE:  runStdioServer,
	}
	stdioCmd.Flags().StringP("connection", "c", "", "Connection to open at startup (defaults to default_connection)")
	rootCmd.AddCommand(stdioCmd)

	rootCmd.AddCommand(newHealthCmd(), newTablesCmd(), newQueryCmd(), newMigrateCmd())
}

func setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	levelOverride, _ := cmd.Flags().GetString("log-level")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logger.ConfigFromLoggingConfig(cfg.Logging)
	logCfg.Console = true
	if levelOverride != "" {
		logCfg.Level = logger.ParseLogLevel(levelOverride)
	}
	if err := logger.Initialize(logCfg); err != nil {
		return err
	}
	log := logger.GetGlobalLogger()

	current = app{
		config:  cfg,
		logger:  log,
		manager: database.NewManagerFromConfig(cfg, log, events.NewBus()),
	}
	return nil
}

func teardown() error {
	if current.manager != nil {
		if err := current.manager.Shutdown(); err != nil {
			current.logger.Error("failed to close connections", err)
		}
	}
	return logger.Shutdown()
}

func runStdioServer(cmd *cobra.Command, args []string) error {
	readOnly, _ := cmd.Flags().GetBool("read-only")
	connection, _ := cmd.Flags().GetString("connection")

	return server.RunStdioServer(server.MCPServerConfig{
		Version:           version,
		ReadOnly:          readOnly,
		InitialConnection: connection,
	}, current.config, current.manager, current.logger)
}
