package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type AnalyzeTableInput struct {
	TableName string `json:"table_name" jsonschema:"required" jsonschema_description:"Name of the table to analyze"`
	Schema    string `json:"schema,omitempty" jsonschema_description:"Optional schema name"`
}

type TableStats struct {
	Table       string   `json:"table" jsonschema_description:"Analyzed table"`
	RowCount    int64    `json:"row_count" jsonschema_description:"Number of rows"`
	ColumnCount int      `json:"column_count" jsonschema_description:"Number of columns"`
	PrimaryKey  []string `json:"primary_key" jsonschema_description:"Primary key columns"`
	Nullable    []string `json:"nullable_columns" jsonschema_description:"Columns that accept NULL"`
}

type AnalyzeTableOutput struct {
	Stats TableStats `json:"stats" jsonschema_description:"Table statistics"`
}

func GetAnalyzeTableTool(env *Env) *ToolDefinition[AnalyzeTableInput, AnalyzeTableOutput] {
	return NewToolDefinition[AnalyzeTableInput, AnalyzeTableOutput](
		"analyze_table",
		"Get row count and column statistics for a table.",
		func(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeTableInput) (*mcp.CallToolResult, AnalyzeTableOutput, error) {
			return analyzeTableHandler(ctx, req, input, env)
		},
	)
}

func analyzeTableHandler(ctx context.Context, _ *mcp.CallToolRequest, input AnalyzeTableInput, env *Env) (*mcp.CallToolResult, AnalyzeTableOutput, error) {
	qc, _, err := env.client()
	if err != nil {
		return nil, AnalyzeTableOutput{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	table := qualifiedTable(input.Schema, input.TableName)
	columns, err := qc.Columns(ctx, table)
	if err != nil {
		env.logToolCall("analyze_table", err)
		return nil, AnalyzeTableOutput{}, fmt.Errorf("failed to analyze table: %v", err)
	}
	if len(columns) == 0 {
		return nil, AnalyzeTableOutput{}, fmt.Errorf("table '%s' not found", table)
	}

	row, err := qc.RawSelect("SELECT COUNT(*) AS row_count FROM " + qc.Dialect().Quote(table)).First(ctx)
	env.logToolCall("analyze_table", err)
	if err != nil {
		return nil, AnalyzeTableOutput{}, fmt.Errorf("failed to count rows: %v", err)
	}

	stats := TableStats{
		Table:       table,
		ColumnCount: len(columns),
		PrimaryKey:  []string{},
		Nullable:    []string{},
	}
	if n, ok := row["row_count"].(int64); ok {
		stats.RowCount = n
	} else {
		_, _ = fmt.Sscan(fmt.Sprint(row["row_count"]), &stats.RowCount)
	}
	for _, col := range columns {
		if col.PrimaryKey {
			stats.PrimaryKey = append(stats.PrimaryKey, col.Name)
		}
		if col.Nullable {
			stats.Nullable = append(stats.Nullable, col.Name)
		}
	}

	return jsonResult(AnalyzeTableOutput{Stats: stats})
}
