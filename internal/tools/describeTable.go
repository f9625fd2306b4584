package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type DescribeTableInput struct {
	TableName string `json:"table_name" jsonschema:"required" jsonschema_description:"Name of the table to describe"`
	Schema    string `json:"schema,omitempty" jsonschema_description:"Optional schema name (defaults to the connection's current schema)"`
}

type ColumnInfo struct {
	Name          string `json:"name" jsonschema_description:"Column name"`
	DataType      string `json:"data_type" jsonschema_description:"Data type of the column"`
	IsNullable    bool   `json:"is_nullable" jsonschema_description:"Whether the column can contain NULL values"`
	IsPrimaryKey  bool   `json:"is_primary_key" jsonschema_description:"Whether the column is part of the primary key"`
	DefaultValue  string `json:"default_value,omitempty" jsonschema_description:"Default value for the column"`
	CharMaxLength *int64 `json:"char_max_length,omitempty" jsonschema_description:"Maximum length for character types"`
}

type DescribeTableOutput struct {
	Table   string       `json:"table" jsonschema_description:"Described table"`
	Columns []ColumnInfo `json:"columns" jsonschema_description:"Array of column information"`
}

func GetDescribeTableTool(env *Env) *ToolDefinition[DescribeTableInput, DescribeTableOutput] {
	return NewToolDefinition[DescribeTableInput, DescribeTableOutput](
		"describe_table",
		"Get detailed information about table structure and columns.",
		func(ctx context.Context, req *mcp.CallToolRequest, input DescribeTableInput) (*mcp.CallToolResult, DescribeTableOutput, error) {
			return describeTableHandler(ctx, req, input, env)
		},
	)
}

func describeTableHandler(ctx context.Context, _ *mcp.CallToolRequest, input DescribeTableInput, env *Env) (*mcp.CallToolResult, DescribeTableOutput, error) {
	client, _, err := env.client()
	if err != nil {
		return nil, DescribeTableOutput{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	table := qualifiedTable(input.Schema, input.TableName)
	columns, err := client.Columns(ctx, table)
	env.logToolCall("describe_table", err)
	if err != nil {
		return nil, DescribeTableOutput{}, fmt.Errorf("get columns error: %v", err)
	}
	if len(columns) == 0 {
		return nil, DescribeTableOutput{}, fmt.Errorf("table '%s' not found", table)
	}

	output := DescribeTableOutput{Table: table, Columns: make([]ColumnInfo, 0, len(columns))}
	for _, col := range columns {
		info := ColumnInfo{
			Name:          col.Name,
			DataType:      col.Type,
			IsNullable:    col.Nullable,
			IsPrimaryKey:  col.PrimaryKey,
			CharMaxLength: col.MaxLength,
		}
		if col.DefaultValue != nil {
			info.DefaultValue = *col.DefaultValue
		}
		output.Columns = append(output.Columns, info)
	}

	return jsonResult(output)
}

func qualifiedTable(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}
