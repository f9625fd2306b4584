package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDefinition represents a complete tool with its metadata and handler
type ToolDefinition[TInput, TOutput any] struct {
	Tool    *mcp.Tool
	Handler func(ctx context.Context, req *mcp.CallToolRequest, input TInput) (*mcp.CallToolResult, TOutput, error)
}

// NewToolDefinition creates a new tool definition with the given name, description and handler
func NewToolDefinition[TInput, TOutput any](
	name, description string,
	handler func(ctx context.Context, req *mcp.CallToolRequest, input TInput) (*mcp.CallToolResult, TOutput, error),
) *ToolDefinition[TInput, TOutput] {
	return &ToolDefinition[TInput, TOutput]{
		Tool: &mcp.Tool{
			Name:        name,
			Description: description,
		},
		Handler: handler,
	}
}

// Register adds this tool to the MCP server
func (td *ToolDefinition[TInput, TOutput]) Register(s *mcp.Server) {
	mcp.AddTool(s, td.Tool, td.Handler)
}

// jsonResult renders output as the text content of a tool result.
func jsonResult[TOutput any](output TOutput) (*mcp.CallToolResult, TOutput, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero TOutput
		return nil, zero, fmt.Errorf("JSON marshal error: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
