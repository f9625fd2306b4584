package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ExecuteQueryInput struct {
	Query string `json:"query" jsonschema:"required" jsonschema_description:"SQL query to execute (INSERT, UPDATE, DELETE, etc.)"`
}

type ExecuteQueryOutput struct {
	RowsAffected int64  `json:"rows_affected" jsonschema_description:"Number of rows affected by the query"`
	Message      string `json:"message" jsonschema_description:"Success message"`
}

func GetExecuteQueryTool(env *Env) *ToolDefinition[ExecuteQueryInput, ExecuteQueryOutput] {
	return NewToolDefinition[ExecuteQueryInput, ExecuteQueryOutput](
		"execute_query",
		"Execute any SQL query (INSERT, UPDATE, DELETE, etc.) on the primary.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ExecuteQueryInput) (*mcp.CallToolResult, ExecuteQueryOutput, error) {
			return executeQueryHandler(ctx, req, input, env)
		},
	)
}

func executeQueryHandler(ctx context.Context, _ *mcp.CallToolRequest, input ExecuteQueryInput, env *Env) (*mcp.CallToolResult, ExecuteQueryOutput, error) {
	queryLower := strings.ToLower(strings.TrimSpace(input.Query))
	if strings.HasPrefix(queryLower, "select") {
		return nil, ExecuteQueryOutput{}, fmt.Errorf("use select_query tool for SELECT queries")
	}

	if env.ReadOnly {
		return nil, ExecuteQueryOutput{}, fmt.Errorf("read-only mode: write operations are not allowed")
	}

	dangerousOperations := []string{"drop database", "drop schema", "truncate"}
	for _, dangerous := range dangerousOperations {
		if strings.Contains(queryLower, dangerous) {
			return nil, ExecuteQueryOutput{}, fmt.Errorf("dangerous operation detected: %s", dangerous)
		}
	}

	client, _, err := env.client()
	if err != nil {
		return nil, ExecuteQueryOutput{}, err
	}
	// a read-mode session must not reach the driver with a write
	if _, err := client.WriteClient(); err != nil {
		return nil, ExecuteQueryOutput{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := client.RawQuery(input.Query).Exec(ctx)
	env.logToolCall("execute_query", err)
	if err != nil {
		return nil, ExecuteQueryOutput{}, fmt.Errorf("query execution error: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		rowsAffected = 0
	}

	var operation string
	switch {
	case strings.HasPrefix(queryLower, "insert"):
		operation = "INSERT"
	case strings.HasPrefix(queryLower, "update"):
		operation = "UPDATE"
	case strings.HasPrefix(queryLower, "delete"):
		operation = "DELETE"
	case strings.HasPrefix(queryLower, "create"):
		operation = "CREATE"
	case strings.HasPrefix(queryLower, "alter"):
		operation = "ALTER"
	case strings.HasPrefix(queryLower, "drop"):
		operation = "DROP"
	default:
		operation = "QUERY"
	}

	message := fmt.Sprintf("%s operation completed successfully", operation)
	if rowsAffected > 0 {
		message = fmt.Sprintf("%s operation completed successfully (%d rows affected)", operation, rowsAffected)
	}

	return jsonResult(ExecuteQueryOutput{
		RowsAffected: rowsAffected,
		Message:      message,
	})
}
