package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type SelectQueryInput struct {
	Query string `json:"query" jsonschema:"required" jsonschema_description:"SELECT SQL query to execute"`
}

type SelectQueryOutput struct {
	Data    []map[string]interface{} `json:"data" jsonschema_description:"Query results"`
	Message string                   `json:"message" jsonschema_description:"Success message"`
}

func GetSelectQueryTool(env *Env) *ToolDefinition[SelectQueryInput, SelectQueryOutput] {
	return NewToolDefinition[SelectQueryInput, SelectQueryOutput](
		"select_query",
		"Execute SELECT SQL queries and return result data. Reads are served by read replicas when configured.",
		func(ctx context.Context, req *mcp.CallToolRequest, input SelectQueryInput) (*mcp.CallToolResult, SelectQueryOutput, error) {
			return selectQueryHandler(ctx, req, input, env)
		},
	)
}

func selectQueryHandler(ctx context.Context, _ *mcp.CallToolRequest, input SelectQueryInput, env *Env) (*mcp.CallToolResult, SelectQueryOutput, error) {
	queryLower := strings.ToLower(strings.TrimSpace(input.Query))
	if !strings.HasPrefix(queryLower, "select") && !strings.HasPrefix(queryLower, "with") {
		return nil, SelectQueryOutput{}, fmt.Errorf("only SELECT queries are allowed")
	}

	client, _, err := env.client()
	if err != nil {
		return nil, SelectQueryOutput{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	results, err := client.RawSelect(input.Query).All(ctx)
	env.logToolCall("select_query", err)
	if err != nil {
		return nil, SelectQueryOutput{}, fmt.Errorf("query execution error: %v", err)
	}

	return jsonResult(SelectQueryOutput{
		Data:    results,
		Message: fmt.Sprintf("SELECT query completed successfully (%d rows returned)", len(results)),
	})
}
