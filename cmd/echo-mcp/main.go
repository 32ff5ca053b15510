// Command echo-mcp runs the echo MCP server over stdio. It exists to
// exercise the client connection core against a real server process.
package main

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/mcpcore/pkg/mcpserver/echo"
)

func main() {
	s := echo.NewServer()
	if err := server.ServeStdio(s); err != nil {
		log.Fatal(err)
	}
}
