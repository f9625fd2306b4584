package tools

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/AbdelilahOu/dbroute/internal/config"
	"github.com/AbdelilahOu/dbroute/internal/database"
	"github.com/AbdelilahOu/dbroute/internal/logger"
	"github.com/AbdelilahOu/dbroute/internal/state"
)

// Env is what every tool handler works against.
type Env struct {
	Manager  *database.Manager
	Sessions *state.Store
	Config   *config.Config
	Logger   *logger.Logger
	ReadOnly bool
}

func RegisterTools(s *mcp.Server, env *Env) {
	// Connection tools
	GetListConnectionsTool(env).Register(s)
	GetSwitchConnectionTool(env).Register(s)
	GetTestConnectionTool(env).Register(s)
	GetHealthReportTool(env).Register(s)
	// Schema tools
	GetListTablesTool(env).Register(s)
	GetDescribeTableTool(env).Register(s)
	GetAnalyzeTableTool(env).Register(s)
	GetDbInfoTool(env).Register(s)
	// Query tools
	GetSelectQueryTool(env).Register(s)
	GetExplainQueryTool(env).Register(s)
	// Execute Query Tool (only if not read-only)
	if !env.ReadOnly {
		GetExecuteQueryTool(env).Register(s)
	}
}

// session returns the caller's session. Stdio carries a single client.
func (e *Env) session() state.Session {
	return e.Sessions.GetOrCreate(state.DefaultSessionID)
}

// client connects the session's connection in the session's mode.
func (e *Env) client() (*database.QueryClient, state.Session, error) {
	sess := e.session()
	if sess.Connection == "" {
		return nil, sess, fmt.Errorf("no active connection, call switch_connection first")
	}
	c, err := e.Manager.Client(sess.Connection, sess.Mode)
	if err != nil {
		return nil, sess, fmt.Errorf("connection '%s' unavailable: %w", sess.Connection, err)
	}
	return c, sess, nil
}

func (e *Env) logToolCall(tool string, err error) {
	if e.Logger == nil {
		logger.LogToolCall(tool, err)
		return
	}
	fields := map[string]interface{}{"tool": tool}
	if err != nil {
		e.Logger.Error("tool call failed", err, fields)
		return
	}
	e.Logger.Debug("tool call completed", fields)
}
