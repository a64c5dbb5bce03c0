// Vault MCP server - exposes the escrow lifecycle as MCP tools for LLM agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/agentvault"
	"github.com/mbd888/agentvault/internal/mcpserver"
)

func main() {
	vault, err := agentvault.New(nil) // loads chain, keys and indexer from env
	if err != nil {
		fmt.Fprintf(os.Stderr, "vault client: %v\n", err)
		os.Exit(1)
	}
	defer vault.Close()

	s := mcpserver.NewMCPServer(vault)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
