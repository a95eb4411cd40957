// Package demoserver builds the sample MCP server used by the calculator
// command and by integration tests.
package demoserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-client-manager-go/internal/calculator"
)

// ToolName is the name of the only tool the server exposes.
const ToolName = "calculator_tool"

type calculatorInput struct {
	Expression string `json:"expression" jsonschema:"arithmetic expression to evaluate, for example 2+2"`
}

// New returns a server exposing calculator_tool. Evaluation failures are
// reported as "Error: ..." text rather than tool errors.
func New(impl *mcp.Implementation) *mcp.Server {
	if impl == nil {
		impl = &mcp.Implementation{Name: "calculator", Version: "1.0.0"}
	}
	server := mcp.NewServer(impl, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Evaluate an arithmetic expression and return the result as text.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in calculatorInput) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: calculator.Evaluate(ctx, in.Expression)}},
		}, nil, nil
	})
	return server
}
