package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/AbdelilahOu/dbroute/internal/state"
)

type ListConnectionsInput struct{}

type ConnectionInfo struct {
	Name        string `json:"name" jsonschema_description:"Connection name"`
	Client      string `json:"client" jsonschema_description:"Database client (pg, mysql, sqlite, ...)"`
	Description string `json:"description,omitempty" jsonschema_description:"Connection description"`
	Replicas    int    `json:"replicas" jsonschema_description:"Number of read replicas"`
	Connected   bool   `json:"connected" jsonschema_description:"Whether the connection is open"`
}

type ListConnectionsOutput struct {
	Connections       []ConnectionInfo `json:"connections" jsonschema_description:"Available connections"`
	DefaultConnection string           `json:"default_connection" jsonschema_description:"Default connection name"`
	ActiveConnection  string           `json:"active_connection" jsonschema_description:"Connection used by this session"`
}

type SwitchConnectionInput struct {
	Connection string `json:"connection" jsonschema:"required" jsonschema_description:"Name of the connection to switch to"`
}

type SwitchConnectionOutput struct {
	Message    string `json:"message" jsonschema_description:"Success message"`
	Connection string `json:"connection" jsonschema_description:"Active connection name"`
}

type TestConnectionInput struct {
	Connection string `json:"connection,omitempty" jsonschema_description:"Optional connection name to test (uses current if not specified)"`
}

type TestConnectionOutput struct {
	Success    bool   `json:"success" jsonschema_description:"Whether the connection test succeeded"`
	Message    string `json:"message" jsonschema_description:"Test result message"`
	Connection string `json:"connection" jsonschema_description:"Connection that was tested"`
}

type HealthReportInput struct{}

type ConnectionHealth struct {
	Connection string `json:"connection" jsonschema_description:"Connection name"`
	Message    string `json:"message" jsonschema_description:"Probe result"`
	Error      string `json:"error,omitempty" jsonschema_description:"Probe error"`
}

type HealthReportOutput struct {
	Healthy     bool               `json:"healthy" jsonschema_description:"Whether every checked connection is healthy"`
	Message     string             `json:"message" jsonschema_description:"Summary message"`
	Connections []ConnectionHealth `json:"connections" jsonschema_description:"Per-connection results"`
}

func GetListConnectionsTool(env *Env) *ToolDefinition[ListConnectionsInput, ListConnectionsOutput] {
	return NewToolDefinition[ListConnectionsInput, ListConnectionsOutput](
		"list_connections",
		"List all available named connections from config.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ListConnectionsInput) (*mcp.CallToolResult, ListConnectionsOutput, error) {
			return listConnectionsHandler(ctx, req, input, env)
		},
	)
}

func listConnectionsHandler(_ context.Context, _ *mcp.CallToolRequest, _ ListConnectionsInput, env *Env) (*mcp.CallToolResult, ListConnectionsOutput, error) {
	names := env.Manager.Names()
	connections := make([]ConnectionInfo, 0, len(names))
	for _, name := range names {
		node, ok := env.Manager.Get(name)
		if !ok {
			continue
		}
		info := ConnectionInfo{
			Name:        name,
			Client:      node.Config.Client,
			Description: node.Config.Description,
			Connected:   env.Manager.IsConnected(name),
		}
		if node.Config.Replicas != nil {
			info.Replicas = len(node.Config.Replicas.Read)
		}
		connections = append(connections, info)
	}

	output := ListConnectionsOutput{
		Connections:      connections,
		ActiveConnection: env.session().Connection,
	}
	if env.Config != nil {
		output.DefaultConnection = env.Config.DefaultConnection
	}

	env.logToolCall("list_connections", nil)
	return jsonResult(output)
}

func GetSwitchConnectionTool(env *Env) *ToolDefinition[SwitchConnectionInput, SwitchConnectionOutput] {
	return NewToolDefinition[SwitchConnectionInput, SwitchConnectionOutput](
		"switch_connection",
		"Switch to a different database connection during the session.",
		func(ctx context.Context, req *mcp.CallToolRequest, input SwitchConnectionInput) (*mcp.CallToolResult, SwitchConnectionOutput, error) {
			return switchConnectionHandler(ctx, req, input, env)
		},
	)
}

func switchConnectionHandler(_ context.Context, _ *mcp.CallToolRequest, input SwitchConnectionInput, env *Env) (*mcp.CallToolResult, SwitchConnectionOutput, error) {
	if !env.Manager.Has(input.Connection) {
		return nil, SwitchConnectionOutput{}, fmt.Errorf("connection '%s' not found", input.Connection)
	}

	if _, err := env.Manager.Connect(input.Connection); err != nil {
		env.logToolCall("switch_connection", err)
		return nil, SwitchConnectionOutput{}, fmt.Errorf("failed to connect to '%s': %v", input.Connection, err)
	}

	env.Sessions.Switch(state.DefaultSessionID, input.Connection)
	env.logToolCall("switch_connection", nil)

	return jsonResult(SwitchConnectionOutput{
		Message:    fmt.Sprintf("Successfully switched to connection '%s'", input.Connection),
		Connection: input.Connection,
	})
}

func GetTestConnectionTool(env *Env) *ToolDefinition[TestConnectionInput, TestConnectionOutput] {
	return NewToolDefinition[TestConnectionInput, TestConnectionOutput](
		"test_connection",
		"Test connectivity to a database before executing queries.",
		func(ctx context.Context, req *mcp.CallToolRequest, input TestConnectionInput) (*mcp.CallToolResult, TestConnectionOutput, error) {
			return testConnectionHandler(ctx, req, input, env)
		},
	)
}

func testConnectionHandler(ctx context.Context, _ *mcp.CallToolRequest, input TestConnectionInput, env *Env) (*mcp.CallToolResult, TestConnectionOutput, error) {
	name := input.Connection
	if name == "" {
		name = env.session().Connection
	}
	if name == "" {
		return jsonResult(TestConnectionOutput{
			Success:    false,
			Message:    "No active connection to test",
			Connection: "current",
		})
	}

	conn, err := env.Manager.Connect(name)
	if err != nil {
		env.logToolCall("test_connection", err)
		return jsonResult(TestConnectionOutput{
			Success:    false,
			Message:    fmt.Sprintf("Connection test failed: %v", err),
			Connection: name,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	report := conn.Report(ctx)
	env.logToolCall("test_connection", report.Error)

	output := TestConnectionOutput{
		Success:    report.Healthy(),
		Message:    report.Message,
		Connection: name,
	}
	if report.Error != nil {
		output.Message = fmt.Sprintf("%s: %v", report.Message, report.Error)
	}
	return jsonResult(output)
}

func GetHealthReportTool(env *Env) *ToolDefinition[HealthReportInput, HealthReportOutput] {
	return NewToolDefinition[HealthReportInput, HealthReportOutput](
		"health_report",
		"Probe every connection with health checks enabled and report the aggregate health.",
		func(ctx context.Context, req *mcp.CallToolRequest, input HealthReportInput) (*mcp.CallToolResult, HealthReportOutput, error) {
			return healthReportHandler(ctx, req, input, env)
		},
	)
}

func healthReportHandler(ctx context.Context, _ *mcp.CallToolRequest, _ HealthReportInput, env *Env) (*mcp.CallToolResult, HealthReportOutput, error) {
	report := env.Manager.Report(ctx)

	output := HealthReportOutput{
		Healthy:     report.Health.Healthy,
		Message:     report.Health.Message,
		Connections: make([]ConnectionHealth, 0, len(report.Meta)),
	}
	for _, r := range report.Meta {
		entry := ConnectionHealth{Connection: r.Connection, Message: r.Message}
		if r.Error != nil {
			entry.Error = r.Error.Error()
		}
		output.Connections = append(output.Connections, entry)
	}

	env.logToolCall("health_report", nil)
	return jsonResult(output)
}
