// Package echo provides a small MCP server used to exercise the client
// connection core end to end: a tool that succeeds, a tool that computes,
// and a tool that reports a tool-level error.
package echo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates the echo MCP server.
func NewServer() *server.MCPServer {
	s := server.NewMCPServer(
		"echo",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	echoTool := mcp.NewTool("echo",
		mcp.WithDescription("Returns the given message unchanged"),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("Message to echo back"),
		),
	)
	s.AddTool(echoTool, echoHandler)

	addTool := mcp.NewTool("add",
		mcp.WithDescription("Adds two numbers"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First addend")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second addend")),
	)
	s.AddTool(addTool, addHandler)

	failTool := mcp.NewTool("fail",
		mcp.WithDescription("Always returns a tool error, for testing error paths"),
		mcp.WithString("reason", mcp.Description("Error text to return")),
	)
	s.AddTool(failTool, failHandler)

	return s
}

func echoHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	message, ok := args["message"].(string)
	if !ok {
		return mcp.NewToolResultError("message argument is required"), nil
	}
	return mcp.NewToolResultText(message), nil
}

func addHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	a, err := toFloat64(args["a"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid a: %v", err)), nil
	}
	b, err := toFloat64(args["b"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid b: %v", err)), nil
	}
	return mcp.NewToolResultText(formatFloat(a + b)), nil
}

func failHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reason, _ := request.GetArguments()["reason"].(string)
	if reason == "" {
		reason = "requested failure"
	}
	return mcp.NewToolResultError(reason), nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// formatFloat formats a float64 as a string, removing trailing zeros.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
