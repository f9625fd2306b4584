package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/AbdelilahOu/dbroute/internal/client"
)

type ExplainQueryInput struct {
	Query string `json:"query" jsonschema:"required" jsonschema_description:"SQL query to explain"`
}

type ExplainQueryOutput struct {
	Plan []map[string]interface{} `json:"plan" jsonschema_description:"Query execution plan rows"`
}

func GetExplainQueryTool(env *Env) *ToolDefinition[ExplainQueryInput, ExplainQueryOutput] {
	return NewToolDefinition[ExplainQueryInput, ExplainQueryOutput](
		"explain_query",
		"Get query execution plan for performance analysis.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ExplainQueryInput) (*mcp.CallToolResult, ExplainQueryOutput, error) {
			return explainQueryHandler(ctx, req, input, env)
		},
	)
}

func explainQueryHandler(ctx context.Context, _ *mcp.CallToolRequest, input ExplainQueryInput, env *Env) (*mcp.CallToolResult, ExplainQueryOutput, error) {
	query := strings.TrimSpace(input.Query)
	if strings.HasPrefix(strings.ToLower(query), "explain") {
		parts := strings.SplitN(query, " ", 2)
		if len(parts) > 1 {
			query = strings.TrimSpace(parts[1])
		}
	}
	if query == "" {
		return nil, ExplainQueryOutput{}, fmt.Errorf("query is required")
	}

	qc, _, err := env.client()
	if err != nil {
		return nil, ExplainQueryOutput{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	plan, err := qc.RawSelect(explainPrefix(qc.Dialect().Name()) + query).All(ctx)
	env.logToolCall("explain_query", err)
	if err != nil {
		return nil, ExplainQueryOutput{}, fmt.Errorf("explain error: %v", err)
	}

	return jsonResult(ExplainQueryOutput{Plan: plan})
}

// explainPrefix never uses ANALYZE, which would run the statement.
func explainPrefix(family string) string {
	switch family {
	case client.FamilyPostgres:
		return "EXPLAIN (FORMAT JSON) "
	case client.FamilyMySQL:
		return "EXPLAIN FORMAT=JSON "
	default:
		return "EXPLAIN QUERY PLAN "
	}
}
