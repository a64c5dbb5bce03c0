package mcpserver

import (
	"context"

	"github.com/mbd888/agentvault"
	"github.com/mbd888/agentvault/protocol"
)

// vaultAPI is the slice of the vault client the MCP tools use. Tests
// substitute a mock.
type vaultAPI interface {
	CreateEscrow(ctx context.Context, params protocol.CreateEscrowParams) (*protocol.TransactionResult, error)
	GetEscrow(ctx context.Context, escrowAddress string) (*protocol.EscrowInfo, error)
	ListEscrows(ctx context.Context, filter protocol.ListFilter) ([]*protocol.EscrowInfo, error)
	SubmitProof(ctx context.Context, escrowAddress string, proof protocol.SubmitProofParams) (string, error)
	ConfirmCompletion(ctx context.Context, escrowAddress string) (string, error)
	RaiseDispute(ctx context.Context, escrowAddress, reason string) (string, error)
	GetAgentStats(ctx context.Context, address string) (*protocol.AgentStats, error)
	Identity() string
	Chain() string
}

var _ vaultAPI = (*agentvault.Client)(nil)
