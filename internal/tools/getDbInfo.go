package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	dbclient "github.com/AbdelilahOu/dbroute/internal/client"
)

type GetDBInfoInput struct{}

type GetDBInfoOutput struct {
	Connection string               `json:"connection" jsonschema_description:"Active connection name"`
	Driver     string               `json:"driver" jsonschema_description:"database/sql driver in use"`
	Dialect    string               `json:"dialect" jsonschema_description:"SQL dialect family"`
	Mode       string               `json:"mode" jsonschema_description:"Query routing mode (read, write, dual)"`
	Replicas   int                  `json:"replicas" jsonschema_description:"Number of read replicas"`
	TableCount int                  `json:"table_count" jsonschema_description:"Total number of tables"`
	Pool       dbclient.PoolMetrics `json:"pool" jsonschema_description:"Write pool statistics"`
}

func GetDbInfoTool(env *Env) *ToolDefinition[GetDBInfoInput, GetDBInfoOutput] {
	return NewToolDefinition[GetDBInfoInput, GetDBInfoOutput](
		"get_db_info",
		"Get general information about the active connection: driver, routing and pool statistics.",
		func(ctx context.Context, req *mcp.CallToolRequest, input GetDBInfoInput) (*mcp.CallToolResult, GetDBInfoOutput, error) {
			return getDBInfoHandler(ctx, req, input, env)
		},
	)
}

func getDBInfoHandler(ctx context.Context, _ *mcp.CallToolRequest, _ GetDBInfoInput, env *Env) (*mcp.CallToolResult, GetDBInfoOutput, error) {
	qc, sess, err := env.client()
	if err != nil {
		return nil, GetDBInfoOutput{}, err
	}
	node, ok := env.Manager.Get(sess.Connection)
	if !ok || node.Connection == nil {
		return nil, GetDBInfoOutput{}, fmt.Errorf("connection '%s' is not open", sess.Connection)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tables, err := qc.GetAllTables(ctx)
	env.logToolCall("get_db_info", err)
	if err != nil {
		return nil, GetDBInfoOutput{}, fmt.Errorf("failed to get table count: %v", err)
	}

	output := GetDBInfoOutput{
		Connection: sess.Connection,
		Driver:     node.Connection.DriverName(),
		Dialect:    qc.Dialect().Name(),
		Mode:       qc.Mode().String(),
		TableCount: len(tables),
		Pool:       node.Connection.PoolMetrics(),
	}
	if node.Config.Replicas != nil {
		output.Replicas = len(node.Config.Replicas.Read)
	}
	return jsonResult(output)
}
