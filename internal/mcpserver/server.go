package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all vault tools registered.
func NewMCPServer(vault vaultAPI) *server.MCPServer {
	s := server.NewMCPServer("agentvault", "1.0.0")
	h := NewHandlers(vault)

	s.AddTool(ToolCreateEscrow, h.HandleCreateEscrow)
	s.AddTool(ToolGetEscrow, h.HandleGetEscrow)
	s.AddTool(ToolListEscrows, h.HandleListEscrows)
	s.AddTool(ToolSubmitProof, h.HandleSubmitProof)
	s.AddTool(ToolConfirmCompletion, h.HandleConfirmCompletion)
	s.AddTool(ToolDisputeEscrow, h.HandleDisputeEscrow)
	s.AddTool(ToolGetAgentStats, h.HandleGetAgentStats)

	return s
}
