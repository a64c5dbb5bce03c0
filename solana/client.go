// Package solana is the account-model ledger backend. It builds, signs and
// submits program instructions directly against a Solana RPC node, deriving
// every account address (escrow, vault, vault authority, associated token
// accounts) from seeds so callers only ever handle the escrow address.
package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/mbd888/agentvault/internal/logging"
	"github.com/mbd888/agentvault/protocol"
)

// rpcAPI is the slice of the Solana RPC surface the backend uses. *rpc.Client
// satisfies it; tests substitute a mock.
type rpcAPI interface {
	GetAccountInfoWithOpts(ctx context.Context, account sol.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, publicKey sol.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *sol.Transaction, opts rpc.TransactionOpts) (sol.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...sol.Signature) (*rpc.GetSignatureStatusesResult, error)
	Close() error
}

var _ rpcAPI = (*rpc.Client)(nil)

// Client talks to the escrow program on Solana. All mutating calls block
// until the transaction is confirmed or ctx expires.
type Client struct {
	rpc        rpcAPI
	signer     sol.PrivateKey
	programID  sol.PublicKey
	commitment rpc.CommitmentType
	confirmTO  time.Duration
	log        *slog.Logger

	cacheFee    bool
	feeOverride *sol.PublicKey

	mu        sync.Mutex
	feeCached *sol.PublicKey
}

// Option configures a Client.
type Option func(*Client)

// WithProgramID overrides the deployed program address.
func WithProgramID(id sol.PublicKey) Option { return func(c *Client) { c.programID = id } }

// WithFeeAccount pins the protocol fee account instead of fetching it from
// the on-chain config.
func WithFeeAccount(acc sol.PublicKey) Option { return func(c *Client) { c.feeOverride = &acc } }

// WithFeeAccountCaching keeps the fee wallet read from the on-chain config
// for the life of the client. Without it every operation that pays fees
// re-reads the config, so admin fee-wallet rotations are picked up at once.
func WithFeeAccountCaching() Option { return func(c *Client) { c.cacheFee = true } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// WithCommitment sets the read and confirmation commitment level.
func WithCommitment(ct rpc.CommitmentType) Option { return func(c *Client) { c.commitment = ct } }

// WithConfirmTimeout bounds how long a mutating call waits for confirmation.
func WithConfirmTimeout(d time.Duration) Option { return func(c *Client) { c.confirmTO = d } }

// withRPC substitutes the RPC transport. Test hook.
func withRPC(api rpcAPI) Option { return func(c *Client) { c.rpc = api } }

// New connects to a Solana RPC endpoint with the given signing key.
func New(rpcURL string, signer sol.PrivateKey, opts ...Option) *Client {
	c := &Client{
		signer:     signer,
		programID:  DefaultProgramID,
		commitment: rpc.CommitmentConfirmed,
		confirmTO:  60 * time.Second,
		log:        logging.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.rpc == nil {
		c.rpc = rpc.New(rpcURL)
	}
	return c
}

// Pubkey returns the signer's address.
func (c *Client) Pubkey() string { return c.signer.PublicKey().String() }

// Close releases the RPC connection.
func (c *Client) Close() error { return c.rpc.Close() }

// ---- lifecycle ----

// CreateEscrow creates and funds a new escrow. The returned address is the
// escrow PDA derived from (client, provider, task hash); the deadline is
// fixed to now + DeadlineSeconds at submission time.
func (c *Client) CreateEscrow(ctx context.Context, params protocol.CreateEscrowParams) (*protocol.TransactionResult, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	provider, err := parsePubkey("provider", params.Provider)
	if err != nil {
		return nil, err
	}
	tokenMint, err := parsePubkey("token mint", params.TokenMint)
	if err != nil {
		return nil, err
	}
	arbitrator := sol.PublicKey{} // zero = no arbitrator
	if params.Arbitrator != "" {
		if arbitrator, err = parsePubkey("arbitrator", params.Arbitrator); err != nil {
			return nil, err
		}
	}

	client := c.signer.PublicKey()
	taskHash := protocol.HashTask(params.Task)

	escrow, _, err := EscrowPDA(c.programID, client, provider, taskHash)
	if err != nil {
		return nil, fmt.Errorf("derive escrow pda: %w", err)
	}
	vault, _, err := VaultPDA(c.programID, escrow)
	if err != nil {
		return nil, fmt.Errorf("derive vault pda: %w", err)
	}
	vaultAuth, _, err := VaultAuthorityPDA(c.programID, escrow)
	if err != nil {
		return nil, fmt.Errorf("derive vault authority pda: %w", err)
	}
	config, _, err := ConfigPDA(c.programID)
	if err != nil {
		return nil, fmt.Errorf("derive config pda: %w", err)
	}
	clientToken, err := AssociatedTokenAddress(client, tokenMint)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Unix() + params.DeadlineSeconds
	data, err := createEscrowData(params.Amount, deadline, params.GracePeriod, taskHash,
		params.Verification, uint8(len(params.Task.Criteria)))
	if err != nil {
		return nil, err
	}

	accounts := sol.AccountMetaSlice{
		sol.Meta(client).WRITE().SIGNER(),
		sol.Meta(provider),
		sol.Meta(arbitrator),
		sol.Meta(config),
		sol.Meta(escrow).WRITE(),
		sol.Meta(tokenMint),
		sol.Meta(clientToken).WRITE(),
		sol.Meta(vault).WRITE(),
		sol.Meta(vaultAuth),
		sol.Meta(sol.TokenProgramID),
		sol.Meta(sol.SystemProgramID),
		sol.Meta(sol.SysVarRentPubkey),
	}

	sig, err := c.sendInstruction(ctx, "create_escrow", accounts, data)
	if err != nil {
		return nil, err
	}
	c.log.Info("escrow created",
		"escrow", escrow.String(),
		"provider", params.Provider,
		"amount", params.Amount,
		"signature", sig)
	return &protocol.TransactionResult{Signature: sig, EscrowAddress: escrow.String()}, nil
}

// AcceptEscrow accepts an escrow as its provider.
func (c *Client) AcceptEscrow(ctx context.Context, escrowAddress string) (string, error) {
	escrow, err := parsePubkey("escrow", escrowAddress)
	if err != nil {
		return "", err
	}
	config, _, err := ConfigPDA(c.programID)
	if err != nil {
		return "", fmt.Errorf("derive config pda: %w", err)
	}
	accounts := sol.AccountMetaSlice{
		sol.Meta(c.signer.PublicKey()).SIGNER(),
		sol.Meta(config),
		sol.Meta(escrow).WRITE(),
	}
	return c.sendInstruction(ctx, "accept_escrow", accounts, noArgData(ixAcceptEscrow))
}

// SubmitProof submits a completion proof as the provider. Proof payloads are
// truncated to the on-chain 64-byte buffer.
func (c *Client) SubmitProof(ctx context.Context, escrowAddress string, proof protocol.SubmitProofParams) (string, error) {
	if err := proof.Validate(); err != nil {
		return "", err
	}
	escrow, state, err := c.escrowState(ctx, escrowAddress)
	if err != nil {
		return "", err
	}
	vault, vaultAuth, config, err := c.vaultAccounts(escrow)
	if err != nil {
		return "", err
	}
	tokenMint, err := parsePubkey("token mint", state.TokenMint)
	if err != nil {
		return "", err
	}
	providerToken, err := AssociatedTokenAddress(c.signer.PublicKey(), tokenMint)
	if err != nil {
		return "", err
	}
	feeAccount, err := c.resolveFeeAccount(ctx)
	if err != nil {
		return "", err
	}
	data, err := submitProofData(proof.Type, proof.Data)
	if err != nil {
		return "", err
	}
	accounts := sol.AccountMetaSlice{
		sol.Meta(c.signer.PublicKey()).SIGNER(),
		sol.Meta(config),
		sol.Meta(escrow).WRITE(),
		sol.Meta(vault).WRITE(),
		sol.Meta(vaultAuth),
		sol.Meta(providerToken).WRITE(),
		sol.Meta(feeAccount).WRITE(),
		sol.Meta(sol.TokenProgramID),
	}
	return c.sendInstruction(ctx, "submit_proof", accounts, data)
}

// ConfirmCompletion confirms as the client, releasing funds to the provider.
func (c *Client) ConfirmCompletion(ctx context.Context, escrowAddress string) (string, error) {
	escrow, state, err := c.escrowState(ctx, escrowAddress)
	if err != nil {
		return "", err
	}
	vault, vaultAuth, config, err := c.vaultAccounts(escrow)
	if err != nil {
		return "", err
	}
	provider, err := parsePubkey("provider", state.Provider)
	if err != nil {
		return "", err
	}
	tokenMint, err := parsePubkey("token mint", state.TokenMint)
	if err != nil {
		return "", err
	}
	providerToken, err := AssociatedTokenAddress(provider, tokenMint)
	if err != nil {
		return "", err
	}
	feeAccount, err := c.resolveFeeAccount(ctx)
	if err != nil {
		return "", err
	}
	accounts := sol.AccountMetaSlice{
		sol.Meta(c.signer.PublicKey()).SIGNER(),
		sol.Meta(config),
		sol.Meta(escrow).WRITE(),
		sol.Meta(vault).WRITE(),
		sol.Meta(vaultAuth),
		sol.Meta(providerToken).WRITE(),
		sol.Meta(feeAccount).WRITE(),
		sol.Meta(sol.TokenProgramID),
	}
	return c.sendInstruction(ctx, "confirm_completion", accounts, noArgData(ixConfirmCompletion))
}

// ProviderRelease self-releases funds to the provider after the client
// confirmation window has lapsed without a dispute.
func (c *Client) ProviderRelease(ctx context.Context, escrowAddress string) (string, error) {
	escrow, state, err := c.escrowState(ctx, escrowAddress)
	if err != nil {
		return "", err
	}
	vault, vaultAuth, config, err := c.vaultAccounts(escrow)
	if err != nil {
		return "", err
	}
	client, err := parsePubkey("client", state.Client)
	if err != nil {
		return "", err
	}
	tokenMint, err := parsePubkey("token mint", state.TokenMint)
	if err != nil {
		return "", err
	}
	providerToken, err := AssociatedTokenAddress(c.signer.PublicKey(), tokenMint)
	if err != nil {
		return "", err
	}
	clientToken, err := AssociatedTokenAddress(client, tokenMint)
	if err != nil {
		return "", err
	}
	feeAccount, err := c.resolveFeeAccount(ctx)
	if err != nil {
		return "", err
	}
	accounts := sol.AccountMetaSlice{
		sol.Meta(c.signer.PublicKey()).SIGNER(),
		sol.Meta(config),
		sol.Meta(escrow).WRITE(),
		sol.Meta(vault).WRITE(),
		sol.Meta(vaultAuth),
		sol.Meta(providerToken).WRITE(),
		sol.Meta(feeAccount).WRITE(),
		sol.Meta(clientToken).WRITE(),
		sol.Meta(client),
		sol.Meta(sol.TokenProgramID),
	}
	return c.sendInstruction(ctx, "provider_release", accounts, noArgData(ixProviderRelease))
}

// CancelEscrow cancels before acceptance, refunding the client in full.
func (c *Client) CancelEscrow(ctx context.Context, escrowAddress string) (string, error) {
	return c.refundToClient(ctx, "cancel_escrow", escrowAddress, noArgData(ixCancelEscrow))
}

// ExpireEscrow reclaims funds for the client once deadline + grace period
// have passed. Callable by anyone.
func (c *Client) ExpireEscrow(ctx context.Context, escrowAddress string) (string, error) {
	return c.refundToClient(ctx, "expire_escrow", escrowAddress, noArgData(ixExpireEscrow))
}

// ExpireDispute settles a dispute the arbitrator never ruled on, refunding
// the client after the dispute timeout.
func (c *Client) ExpireDispute(ctx context.Context, escrowAddress string) (string, error) {
	return c.refundToClient(ctx, "expire_dispute", escrowAddress, noArgData(ixExpireDispute))
}

// refundToClient covers the three instructions that move the vault balance
// back to the client's token account: cancel, expiry, dispute timeout. They
// share one account shape.
func (c *Client) refundToClient(ctx context.Context, op, escrowAddress string, data []byte) (string, error) {
	escrow, state, err := c.escrowState(ctx, escrowAddress)
	if err != nil {
		return "", err
	}
	vault, vaultAuth, config, err := c.vaultAccounts(escrow)
	if err != nil {
		return "", err
	}
	client, err := parsePubkey("client", state.Client)
	if err != nil {
		return "", err
	}
	tokenMint, err := parsePubkey("token mint", state.TokenMint)
	if err != nil {
		return "", err
	}
	clientToken, err := AssociatedTokenAddress(client, tokenMint)
	if err != nil {
		return "", err
	}
	accounts := sol.AccountMetaSlice{
		sol.Meta(c.signer.PublicKey()).WRITE().SIGNER(),
		sol.Meta(config),
		sol.Meta(escrow).WRITE(),
		sol.Meta(vault).WRITE(),
		sol.Meta(vaultAuth),
		sol.Meta(clientToken).WRITE(),
		sol.Meta(sol.TokenProgramID),
	}
	return c.sendInstruction(ctx, op, accounts, data)
}

// RaiseDispute freezes the escrow as Disputed. The raiser must be the client
// or the provider; the dispute reason lives off-chain.
func (c *Client) RaiseDispute(ctx context.Context, escrowAddress string) (string, error) {
	escrow, err := parsePubkey("escrow", escrowAddress)
	if err != nil {
		return "", err
	}
	config, _, err := ConfigPDA(c.programID)
	if err != nil {
		return "", fmt.Errorf("derive config pda: %w", err)
	}
	accounts := sol.AccountMetaSlice{
		sol.Meta(c.signer.PublicKey()).WRITE().SIGNER(),
		sol.Meta(config),
		sol.Meta(escrow).WRITE(),
	}
	return c.sendInstruction(ctx, "raise_dispute", accounts, noArgData(ixRaiseDispute))
}

// ResolveDispute rules on a dispute as the arbitrator.
func (c *Client) ResolveDispute(ctx context.Context, escrowAddress string, ruling protocol.DisputeRuling) (string, error) {
	escrow, state, err := c.escrowState(ctx, escrowAddress)
	if err != nil {
		return "", err
	}
	vault, vaultAuth, config, err := c.vaultAccounts(escrow)
	if err != nil {
		return "", err
	}
	client, err := parsePubkey("client", state.Client)
	if err != nil {
		return "", err
	}
	provider, err := parsePubkey("provider", state.Provider)
	if err != nil {
		return "", err
	}
	tokenMint, err := parsePubkey("token mint", state.TokenMint)
	if err != nil {
		return "", err
	}
	clientToken, err := AssociatedTokenAddress(client, tokenMint)
	if err != nil {
		return "", err
	}
	providerToken, err := AssociatedTokenAddress(provider, tokenMint)
	if err != nil {
		return "", err
	}
	arbitratorToken, err := AssociatedTokenAddress(c.signer.PublicKey(), tokenMint)
	if err != nil {
		return "", err
	}
	feeAccount, err := c.resolveFeeAccount(ctx)
	if err != nil {
		return "", err
	}
	data, err := resolveDisputeData(ruling)
	if err != nil {
		return "", err
	}
	accounts := sol.AccountMetaSlice{
		sol.Meta(c.signer.PublicKey()).WRITE().SIGNER(),
		sol.Meta(config),
		sol.Meta(escrow).WRITE(),
		sol.Meta(vault).WRITE(),
		sol.Meta(vaultAuth),
		sol.Meta(clientToken).WRITE(),
		sol.Meta(providerToken).WRITE(),
		sol.Meta(arbitratorToken).WRITE(),
		sol.Meta(feeAccount).WRITE(),
		sol.Meta(sol.TokenProgramID),
	}
	return c.sendInstruction(ctx, "resolve_dispute", accounts, data)
}

// ---- queries ----

// GetEscrow fetches and decodes one escrow account.
func (c *Client) GetEscrow(ctx context.Context, escrowAddress string) (*protocol.EscrowInfo, error) {
	escrow, err := parsePubkey("escrow", escrowAddress)
	if err != nil {
		return nil, err
	}
	data, err := c.fetchAccount(ctx, "get_escrow", escrow)
	if err != nil {
		return nil, err
	}
	return decodeEscrow(escrowAddress, data)
}

// ListEscrows scans every escrow account owned by the program and filters
// client-side. Expensive on busy programs; the facade prefers the indexer
// and only falls back here.
func (c *Client) ListEscrows(ctx context.Context, filter protocol.ListFilter) ([]*protocol.EscrowInfo, error) {
	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, c.programID, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   sol.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: sol.Base58(accEscrow[:])}},
		},
	})
	if err != nil {
		return nil, c.classify("list_escrows", err)
	}

	var matched []*protocol.EscrowInfo
	for _, acc := range out {
		if acc == nil || acc.Account == nil {
			continue
		}
		info, err := decodeEscrow(acc.Pubkey.String(), acc.Account.Data.GetBinary())
		if err != nil {
			c.log.Warn("skipping undecodable escrow account", "account", acc.Pubkey.String(), "err", err)
			continue
		}
		if filter.Match(info) {
			matched = append(matched, info)
		}
	}

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if limit := filter.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// GetProtocolConfig fetches and decodes the protocol config singleton.
func (c *Client) GetProtocolConfig(ctx context.Context) (*ProtocolConfig, error) {
	config, _, err := ConfigPDA(c.programID)
	if err != nil {
		return nil, fmt.Errorf("derive config pda: %w", err)
	}
	data, err := c.fetchAccount(ctx, "get_protocol_config", config)
	if err != nil {
		return nil, err
	}
	return decodeProtocolConfig(data)
}

// ---- protocol admin ----

// InitializeProtocol creates the protocol config singleton. Admin only; the
// program rejects a second initialization.
func (c *Client) InitializeProtocol(ctx context.Context, params protocol.InitializeProtocolParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	feeWallet, err := parsePubkey("fee wallet", params.FeeWallet)
	if err != nil {
		return "", err
	}
	config, _, err := ConfigPDA(c.programID)
	if err != nil {
		return "", fmt.Errorf("derive config pda: %w", err)
	}
	data, err := initializeProtocolData(feeWallet, params)
	if err != nil {
		return "", err
	}
	accounts := sol.AccountMetaSlice{
		sol.Meta(c.signer.PublicKey()).WRITE().SIGNER(),
		sol.Meta(config).WRITE(),
		sol.Meta(sol.SystemProgramID),
	}
	return c.sendInstruction(ctx, "initialize_protocol", accounts, data)
}

// UpdateProtocolConfig applies a partial config update as the admin. The
// cached fee account is invalidated so the next operation re-reads it.
func (c *Client) UpdateProtocolConfig(ctx context.Context, update protocol.ConfigUpdate) (string, error) {
	if update.ProtocolFeeBps != nil && update.ArbitratorFeeBps != nil {
		if err := protocol.ValidateFees(*update.ProtocolFeeBps, *update.ArbitratorFeeBps); err != nil {
			return "", err
		}
	}
	config, _, err := ConfigPDA(c.programID)
	if err != nil {
		return "", fmt.Errorf("derive config pda: %w", err)
	}
	data, err := updateConfigData(update)
	if err != nil {
		return "", err
	}
	accounts := sol.AccountMetaSlice{
		sol.Meta(c.signer.PublicKey()).SIGNER(),
		sol.Meta(config).WRITE(),
	}
	sig, err := c.sendInstruction(ctx, "update_protocol_config", accounts, data)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.feeCached = nil
	c.mu.Unlock()
	return sig, nil
}

// ---- internals ----

// escrowState fetches the current on-chain escrow; several instructions need
// its mint and party addresses to derive token accounts.
func (c *Client) escrowState(ctx context.Context, escrowAddress string) (sol.PublicKey, *protocol.EscrowInfo, error) {
	escrow, err := parsePubkey("escrow", escrowAddress)
	if err != nil {
		return sol.PublicKey{}, nil, err
	}
	data, err := c.fetchAccount(ctx, "fetch_escrow", escrow)
	if err != nil {
		return sol.PublicKey{}, nil, err
	}
	info, err := decodeEscrow(escrowAddress, data)
	if err != nil {
		return sol.PublicKey{}, nil, err
	}
	return escrow, info, nil
}

func (c *Client) vaultAccounts(escrow sol.PublicKey) (vault, vaultAuth, config sol.PublicKey, err error) {
	if vault, _, err = VaultPDA(c.programID, escrow); err != nil {
		return vault, vaultAuth, config, fmt.Errorf("derive vault pda: %w", err)
	}
	if vaultAuth, _, err = VaultAuthorityPDA(c.programID, escrow); err != nil {
		return vault, vaultAuth, config, fmt.Errorf("derive vault authority pda: %w", err)
	}
	if config, _, err = ConfigPDA(c.programID); err != nil {
		return vault, vaultAuth, config, fmt.Errorf("derive config pda: %w", err)
	}
	return vault, vaultAuth, config, nil
}

// resolveFeeAccount returns the protocol fee account: the configured
// override, or the fee wallet read from the on-chain config. The fetched
// value is retained only when WithFeeAccountCaching is set.
func (c *Client) resolveFeeAccount(ctx context.Context) (sol.PublicKey, error) {
	if c.feeOverride != nil {
		return *c.feeOverride, nil
	}
	if c.cacheFee {
		c.mu.Lock()
		cached := c.feeCached
		c.mu.Unlock()
		if cached != nil {
			return *cached, nil
		}
	}

	cfg, err := c.GetProtocolConfig(ctx)
	if err != nil {
		return sol.PublicKey{}, fmt.Errorf("resolve fee account: %w", err)
	}
	if c.cacheFee {
		c.mu.Lock()
		c.feeCached = &cfg.FeeWallet
		c.mu.Unlock()
	}
	return cfg.FeeWallet, nil
}

func (c *Client) fetchAccount(ctx context.Context, op string, account sol.PublicKey) ([]byte, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   sol.EncodingBase64,
	})
	if err != nil {
		return nil, c.classify(op, err)
	}
	if res == nil || res.Value == nil {
		return nil, &protocol.LedgerError{Op: op, Detail: fmt.Sprintf("account %s not found", account)}
	}
	return res.Value.Data.GetBinary(), nil
}

// sendInstruction runs the full submission path: fresh blockhash, single
// instruction transaction, sign, send, block until confirmed.
func (c *Client) sendInstruction(ctx context.Context, op string, accounts sol.AccountMetaSlice, data []byte) (string, error) {
	bh, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return "", c.classify(op, err)
	}

	ix := sol.NewInstruction(c.programID, accounts, data)
	tx, err := sol.NewTransaction(
		[]sol.Instruction{ix},
		bh.Value.Blockhash,
		sol.TransactionPayer(c.signer.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("%s: build transaction: %w", op, err)
	}
	if _, err := tx.Sign(func(key sol.PublicKey) *sol.PrivateKey {
		if key.Equals(c.signer.PublicKey()) {
			return &c.signer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("%s: sign transaction: %w", op, err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", c.classify(op, err)
	}
	c.log.Debug("transaction sent", "op", op, "signature", sig.String())

	if err := c.awaitConfirmation(ctx, op, sig); err != nil {
		return "", err
	}
	return sig.String(), nil
}

// awaitConfirmation polls signature status until the transaction reaches the
// client's commitment level, fails on-chain, or the timeout elapses.
func (c *Client) awaitConfirmation(ctx context.Context, op string, sig sol.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTO)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &protocol.TransportError{Op: op, Err: fmt.Errorf("confirmation timed out for %s: %w", sig, ctx.Err())}
		case <-ticker.C:
			out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				c.log.Debug("signature status poll failed", "op", op, "err", err)
				continue
			}
			if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
				continue
			}
			status := out.Value[0]
			if status.Err != nil {
				return &protocol.LedgerError{Op: op, Detail: fmt.Sprintf("transaction %s failed: %v", sig, status.Err)}
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
	}
}

// classify maps an RPC failure onto the error taxonomy: a structured RPC
// error is the node rejecting the request (ledger), anything else is
// transport.
func (c *Client) classify(op string, err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return &protocol.LedgerError{Op: op, Detail: rpcErr.Message, Err: err}
	}
	return &protocol.TransportError{Op: op, Err: err}
}
