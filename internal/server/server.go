package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/AbdelilahOu/dbroute/internal/config"
	"github.com/AbdelilahOu/dbroute/internal/database"
	"github.com/AbdelilahOu/dbroute/internal/logger"
	"github.com/AbdelilahOu/dbroute/internal/state"
	"github.com/AbdelilahOu/dbroute/internal/tools"
)

type MCPServerConfig struct {
	Version           string
	ReadOnly          bool
	InitialConnection string // Optional: name of connection to open at startup
}

// NewMCPServer registers every tool against manager. Sessions start on
// InitialConnection, or the configured default connection.
func NewMCPServer(cfg MCPServerConfig, appCfg *config.Config, manager *database.Manager, log *logger.Logger) (*mcp.Server, error) {
	impl := &mcp.Implementation{Name: "dbroute", Version: cfg.Version}
	server := mcp.NewServer(impl, nil)

	initial := cfg.InitialConnection
	if initial == "" && appCfg != nil {
		initial = appCfg.DefaultConnection
	}
	if initial != "" {
		if _, err := manager.Connect(initial); err != nil {
			return nil, fmt.Errorf("failed to initialize connection '%s': %w", initial, err)
		}
		log.Info("initial connection opened", map[string]interface{}{"connection": initial})
	}

	mode := database.ModeDual
	if cfg.ReadOnly {
		mode = database.ModeRead
	}

	tools.RegisterTools(server, &tools.Env{
		Manager:  manager,
		Sessions: state.NewStore(initial, mode),
		Config:   appCfg,
		Logger:   log,
		ReadOnly: cfg.ReadOnly,
	})

	return server, nil
}

// RunStdioServer serves MCP over stdin/stdout until interrupted, then
// closes every connection.
func RunStdioServer(cfg MCPServerConfig, appCfg *config.Config, manager *database.Manager, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := NewMCPServer(cfg, appCfg, manager, log)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer func() {
		if err := manager.Shutdown(); err != nil {
			log.Error("failed to close connections", err)
		}
	}()

	// stdout carries the protocol; status goes to the log
	log.Info("MCP server running", map[string]interface{}{
		"read_only":   cfg.ReadOnly,
		"connections": manager.Names(),
	})

	return server.Run(ctx, &mcp.StdioTransport{})
}
