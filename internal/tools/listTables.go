package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ListTablesInput struct {
	Schema string `json:"schema,omitempty" jsonschema_description:"Optional schema name to filter tables (defaults to 'public' for PostgreSQL and the current database for MySQL)"`
}

type TableInfo struct {
	Name   string `json:"name" jsonschema_description:"Table name"`
	Schema string `json:"schema,omitempty" jsonschema_description:"Schema name"`
}

type ListTablesOutput struct {
	Connection string      `json:"connection" jsonschema_description:"Connection that was listed"`
	Tables     []TableInfo `json:"tables" jsonschema_description:"Array of table information"`
}

func GetListTablesTool(env *Env) *ToolDefinition[ListTablesInput, ListTablesOutput] {
	return NewToolDefinition[ListTablesInput, ListTablesOutput](
		"list_tables",
		"List all tables in the database.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ListTablesInput) (*mcp.CallToolResult, ListTablesOutput, error) {
			return listTablesHandler(ctx, req, input, env)
		},
	)
}

func listTablesHandler(ctx context.Context, _ *mcp.CallToolRequest, input ListTablesInput, env *Env) (*mcp.CallToolResult, ListTablesOutput, error) {
	client, sess, err := env.client()
	if err != nil {
		return nil, ListTablesOutput{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var schemas []string
	if input.Schema != "" {
		schemas = append(schemas, input.Schema)
	}
	names, err := client.GetAllTables(ctx, schemas...)
	env.logToolCall("list_tables", err)
	if err != nil {
		return nil, ListTablesOutput{}, fmt.Errorf("query error: %v", err)
	}

	tables := make([]TableInfo, 0, len(names))
	for _, name := range names {
		tables = append(tables, TableInfo{Name: name, Schema: input.Schema})
	}

	return jsonResult(ListTablesOutput{Connection: sess.Connection, Tables: tables})
}
