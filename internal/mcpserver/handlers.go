package mcpserver

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/agentvault/internal/usdc"
	"github.com/mbd888/agentvault/protocol"
)

// amountStr renders a smallest-unit amount as a 6-decimal token amount.
func amountStr(amount uint64) string {
	return usdc.Format(new(big.Int).SetUint64(amount))
}

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	vault vaultAPI
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(vault vaultAPI) *Handlers {
	return &Handlers{vault: vault}
}

// HandleCreateEscrow creates and funds an escrow.
func (h *Handlers) HandleCreateEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	provider := req.GetString("provider", "")
	if provider == "" {
		return mcp.NewToolResultError("provider is required"), nil
	}
	amount := req.GetFloat("amount", 0)
	if amount <= 0 {
		return mcp.NewToolResultError("amount must be a positive number of base units"), nil
	}
	tokenMint := req.GetString("token_mint", "")
	if tokenMint == "" {
		return mcp.NewToolResultError("token_mint is required"), nil
	}
	description := req.GetString("description", "")
	if description == "" {
		return mcp.NewToolResultError("description is required"), nil
	}

	params := protocol.CreateEscrowParams{
		Provider:        provider,
		Arbitrator:      req.GetString("arbitrator", ""),
		TokenMint:       tokenMint,
		Amount:          uint64(amount),
		DeadlineSeconds: int64(req.GetFloat("deadline_seconds", 3600)),
		Verification:    protocol.VerificationType(req.GetString("verification", "")),
		Task:            protocol.Task{Description: description},
	}

	res, err := h.vault.CreateEscrow(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Escrow creation failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Escrow created on %s.\n"+
			"Escrow address: %s\n"+
			"Transaction: %s\n"+
			"Amount held: %s tokens\n\n"+
			"Funds are locked until the provider delivers and you confirm_completion, "+
			"or the deadline passes and the escrow expires back to you.",
		h.vault.Chain(), res.EscrowAddress, res.Signature, amountStr(params.Amount))), nil
}

// HandleGetEscrow reads one escrow.
func (h *Handlers) HandleGetEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("escrow_address", "")
	if address == "" {
		return mcp.NewToolResultError("escrow_address is required"), nil
	}

	info, err := h.vault.GetEscrow(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get escrow: %v", err)), nil
	}

	return mcp.NewToolResultText(formatEscrow(info)), nil
}

// HandleListEscrows lists escrows with optional filters.
func (h *Handlers) HandleListEscrows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := protocol.ListFilter{
		Status:   protocol.EscrowStatus(req.GetString("status", "")),
		Client:   req.GetString("client", ""),
		Provider: req.GetString("provider", ""),
		Limit:    req.GetInt("limit", 0),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", filter.Status)), nil
	}

	infos, err := h.vault.ListEscrows(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list escrows: %v", err)), nil
	}
	if len(infos) == 0 {
		return mcp.NewToolResultText("No escrows found matching your criteria."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d escrow(s):\n\n", len(infos))
	for i, info := range infos {
		fmt.Fprintf(&sb, "%d. %s [%s]\n", i+1, info.Address, info.Status)
		fmt.Fprintf(&sb, "   Client: %s | Provider: %s\n", info.Client, info.Provider)
		fmt.Fprintf(&sb, "   Amount: %s tokens\n", amountStr(info.Amount))
		if i < len(infos)-1 {
			sb.WriteString("\n")
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleSubmitProof attaches a completion proof as the provider.
func (h *Handlers) HandleSubmitProof(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("escrow_address", "")
	if address == "" {
		return mcp.NewToolResultError("escrow_address is required"), nil
	}
	proofType := req.GetString("proof_type", "")
	if proofType == "" {
		return mcp.NewToolResultError("proof_type is required"), nil
	}

	sig, err := h.vault.SubmitProof(ctx, address, protocol.SubmitProofParams{
		Type: protocol.ProofType(proofType),
		Data: []byte(req.GetString("proof_data", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Proof submission failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Proof submitted for escrow %s.\n"+
			"Transaction: %s\n"+
			"The client can now confirm_completion to release your payment.",
		address, sig)), nil
}

// HandleConfirmCompletion releases funds to the provider as the client.
func (h *Handlers) HandleConfirmCompletion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("escrow_address", "")
	if address == "" {
		return mcp.NewToolResultError("escrow_address is required"), nil
	}

	sig, err := h.vault.ConfirmCompletion(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Confirmation failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Escrow %s confirmed.\n"+
			"Transaction: %s\n"+
			"Funds released to the provider, minus protocol fees.",
		address, sig)), nil
}

// HandleDisputeEscrow raises a dispute with an off-chain reason.
func (h *Handlers) HandleDisputeEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("escrow_address", "")
	if address == "" {
		return mcp.NewToolResultError("escrow_address is required"), nil
	}
	reason := req.GetString("reason", "")
	if reason == "" {
		return mcp.NewToolResultError("reason is required"), nil
	}

	sig, err := h.vault.RaiseDispute(ctx, address, reason)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Dispute failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Dispute raised on escrow %s.\n"+
			"Transaction: %s\n"+
			"Reason: %s\n"+
			"Funds are frozen until the arbitrator rules or the dispute window expires.",
		address, sig, reason)), nil
}

// HandleGetAgentStats returns reputation stats for an agent.
func (h *Handlers) HandleGetAgentStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("agent_address", "")
	if address == "" {
		return mcp.NewToolResultError("agent_address is required"), nil
	}

	stats, err := h.vault.GetAgentStats(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get agent stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("Agent Stats:\n")
	fmt.Fprintf(&sb, "  Address: %s\n", stats.Address)
	fmt.Fprintf(&sb, "  Escrows: %d total, %d completed, %d disputed, %d expired\n",
		stats.TotalEscrows, stats.CompletedEscrows, stats.DisputedEscrows, stats.ExpiredEscrows)
	fmt.Fprintf(&sb, "  Volume: %s tokens\n", amountStr(stats.TotalVolume))
	fmt.Fprintf(&sb, "  Success Rate: %.0f%%\n", stats.SuccessRate*100)
	if stats.AvgCompletionTime > 0 {
		fmt.Fprintf(&sb, "  Avg Completion: %s\n", time.Duration(stats.AvgCompletionTime)*time.Second)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatting helpers ---

func formatEscrow(info *protocol.EscrowInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Escrow %s\n", info.Address)
	fmt.Fprintf(&sb, "  Status: %s\n", info.Status)
	fmt.Fprintf(&sb, "  Client: %s\n", info.Client)
	fmt.Fprintf(&sb, "  Provider: %s\n", info.Provider)
	if info.Arbitrator != "" {
		fmt.Fprintf(&sb, "  Arbitrator: %s\n", info.Arbitrator)
	}
	fmt.Fprintf(&sb, "  Amount: %s tokens (%s)\n", amountStr(info.Amount), info.TokenMint)
	fmt.Fprintf(&sb, "  Verification: %s\n", info.Verification)
	fmt.Fprintf(&sb, "  Task hash: %s\n", info.TaskHash)
	if !info.Deadline.IsZero() {
		fmt.Fprintf(&sb, "  Deadline: %s (grace %ds)\n", info.Deadline.Format(time.RFC3339), info.GracePeriod)
	}
	if info.ProofType != "" {
		fmt.Fprintf(&sb, "  Proof: %s at %s\n", info.ProofType, info.ProofSubmittedAt.Format(time.RFC3339))
	}
	if info.DisputedBy != "" {
		fmt.Fprintf(&sb, "  Disputed by: %s\n", info.DisputedBy)
	}
	return sb.String()
}
