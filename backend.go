package agentvault

import (
	"context"

	"github.com/mbd888/agentvault/evm"
	"github.com/mbd888/agentvault/indexer"
	"github.com/mbd888/agentvault/protocol"
	"github.com/mbd888/agentvault/solana"
)

// Backend is the chain-specific half of the client: everything that talks
// to a ledger. Both backends implement the same escrow lifecycle; the only
// visible difference is the shape of the escrow address (a derived account
// address on Solana, a decimal identifier on Base).
type Backend interface {
	CreateEscrow(ctx context.Context, params protocol.CreateEscrowParams) (*protocol.TransactionResult, error)
	AcceptEscrow(ctx context.Context, escrowAddress string) (string, error)
	SubmitProof(ctx context.Context, escrowAddress string, proof protocol.SubmitProofParams) (string, error)
	ConfirmCompletion(ctx context.Context, escrowAddress string) (string, error)
	ProviderRelease(ctx context.Context, escrowAddress string) (string, error)
	CancelEscrow(ctx context.Context, escrowAddress string) (string, error)
	ExpireEscrow(ctx context.Context, escrowAddress string) (string, error)
	RaiseDispute(ctx context.Context, escrowAddress string) (string, error)
	ExpireDispute(ctx context.Context, escrowAddress string) (string, error)
	ResolveDispute(ctx context.Context, escrowAddress string, ruling protocol.DisputeRuling) (string, error)
	GetEscrow(ctx context.Context, escrowAddress string) (*protocol.EscrowInfo, error)
	ListEscrows(ctx context.Context, filter protocol.ListFilter) ([]*protocol.EscrowInfo, error)
	Close() error
}

var (
	_ Backend = (*solana.Client)(nil)
	_ Backend = (*evm.Client)(nil)
)

// indexerAPI is the slice of the indexer client the facade uses. Tests
// substitute a mock.
type indexerAPI interface {
	GetEscrow(ctx context.Context, address string) (*protocol.EscrowInfo, error)
	ListEscrows(ctx context.Context, filter protocol.ListFilter, chain string) ([]*protocol.EscrowInfo, error)
	GetAgentStats(ctx context.Context, address string) (*protocol.AgentStats, error)
	SubmitDispute(ctx context.Context, escrowAddress, raisedBy, reason string) error
	StoreTask(ctx context.Context, taskHashHex string, task protocol.Task) error
	Close() error
}

var _ indexerAPI = (*indexer.Client)(nil)
