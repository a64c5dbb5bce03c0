package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the vault MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolCreateEscrow = mcp.NewTool("create_escrow",
	mcp.WithDescription(
		"Create a token escrow for a task and fund it. "+
			"Your tokens are locked until the provider delivers and you confirm, "+
			"or until the deadline passes and you get refunded. "+
			"Returns the escrow address to use with the other tools."),
	mcp.WithString("provider",
		mcp.Required(),
		mcp.Description("The provider agent's address on the active chain")),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Amount in the token's smallest unit (e.g. 1000000 = 1 USDC)")),
	mcp.WithString("token_mint",
		mcp.Required(),
		mcp.Description("Token mint or contract address (e.g. the chain's USDC address)")),
	mcp.WithString("description",
		mcp.Required(),
		mcp.Description("What the provider must deliver. Bound into the on-chain task hash.")),
	mcp.WithNumber("deadline_seconds",
		mcp.Description("Seconds until the deadline (default 3600)")),
	mcp.WithString("arbitrator",
		mcp.Description("Optional arbitrator address for dispute resolution")),
	mcp.WithString("verification",
		mcp.Description("How completion is verified (default MultiSigConfirm)"),
		mcp.Enum("OnChain", "OracleCallback", "MultiSigConfirm", "AutoRelease")),
)

var ToolGetEscrow = mcp.NewTool("get_escrow",
	mcp.WithDescription(
		"Look up the current state of an escrow: status, parties, amount, "+
			"deadline, and proof details if one was submitted."),
	mcp.WithString("escrow_address",
		mcp.Required(),
		mcp.Description("The escrow address from create_escrow")),
)

var ToolListEscrows = mcp.NewTool("list_escrows",
	mcp.WithDescription(
		"List escrows, optionally filtered by status or party. "+
			"Use this to find escrows awaiting your action."),
	mcp.WithString("status",
		mcp.Description("Filter by status"),
		mcp.Enum("AwaitingProvider", "Active", "ProofSubmitted", "Completed",
			"Disputed", "Resolved", "Expired", "Cancelled")),
	mcp.WithString("client",
		mcp.Description("Filter by client address")),
	mcp.WithString("provider",
		mcp.Description("Filter by provider address")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of escrows to return (default 50)")),
)

var ToolSubmitProof = mcp.NewTool("submit_proof",
	mcp.WithDescription(
		"Submit a completion proof for an escrow you accepted as provider. "+
			"Moves the escrow to ProofSubmitted so the client can confirm and release payment."),
	mcp.WithString("escrow_address",
		mcp.Required(),
		mcp.Description("The escrow address")),
	mcp.WithString("proof_type",
		mcp.Required(),
		mcp.Description("Kind of proof being attached"),
		mcp.Enum("TransactionSignature", "OracleAttestation", "SignedConfirmation")),
	mcp.WithString("proof_data",
		mcp.Description("Proof payload (e.g. a transaction signature or attestation reference)")),
)

var ToolConfirmCompletion = mcp.NewTool("confirm_completion",
	mcp.WithDescription(
		"Confirm a completed task as the client, releasing the escrowed funds "+
			"to the provider minus protocol fees. Only valid after the provider "+
			"submitted a proof."),
	mcp.WithString("escrow_address",
		mcp.Required(),
		mcp.Description("The escrow address")),
)

var ToolDisputeEscrow = mcp.NewTool("dispute_escrow",
	mcp.WithDescription(
		"Raise a dispute on an escrow when the work was not delivered or the "+
			"result is unsatisfactory. Freezes the funds until the arbitrator "+
			"rules or the dispute window expires with a refund."),
	mcp.WithString("escrow_address",
		mcp.Required(),
		mcp.Description("The escrow address")),
	mcp.WithString("reason",
		mcp.Required(),
		mcp.Description("Explanation of what went wrong. Stored off-chain with the dispute.")),
)

var ToolGetAgentStats = mcp.NewTool("get_agent_stats",
	mcp.WithDescription(
		"Get reputation statistics for any agent: completed and disputed escrow "+
			"counts, total volume, and success rate. Requires an indexer."),
	mcp.WithString("agent_address",
		mcp.Required(),
		mcp.Description("The agent's address on the active chain")),
)
