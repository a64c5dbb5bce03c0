// Package evm is the contract-call ledger backend for Base. Escrows live in
// a single Solidity contract and are addressed by an integer id (rendered as
// a decimal string in the shared model). Deposits are ERC-20 pulls, so
// escrow creation runs an allowance pre-flight and submits a blocking
// approve when the standing allowance is short.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/agentvault/internal/logging"
	"github.com/mbd888/agentvault/protocol"
)

const (
	// DefaultGasLimit is used when estimation fails.
	DefaultGasLimit = uint64(100000)

	// DefaultConfirmTimeout bounds receipt polling per transaction.
	DefaultConfirmTimeout = 60 * time.Second

	// receiptPollInterval between receipt checks.
	receiptPollInterval = 2 * time.Second
)

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

var _ EthClient = (*ethclient.Client)(nil)

// Config for creating a Client.
type Config struct {
	RPCURL          string
	PrivateKey      string // hex, with or without 0x prefix
	ContractAddress string
	ChainID         int64
}

// Option configures the Client.
type Option func(*Client)

// WithClient sets a custom Ethereum client (useful for testing).
func WithClient(ec EthClient) Option { return func(c *Client) { c.client = ec } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// WithConfirmTimeout bounds how long a mutating call waits for its receipt.
func WithConfirmTimeout(d time.Duration) Option { return func(c *Client) { c.confirmTO = d } }

// Client talks to the escrow contract on an EVM chain. All mutating calls
// block until the transaction receipt lands or ctx expires.
type Client struct {
	client     EthClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	contract   common.Address
	escrowABI  abi.ABI
	tokenABI   abi.ABI
	confirmTO  time.Duration
	log        *slog.Logger
}

// New creates a Client from config.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %v", protocol.ErrConfig, err)
	}
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", protocol.ErrConfig)
	}

	parsedEscrow, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse escrow ABI: %w", err)
	}
	parsedToken, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 ABI: %w", err)
	}

	c := &Client{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
		chainID:    big.NewInt(cfg.ChainID),
		contract:   common.HexToAddress(cfg.ContractAddress),
		escrowABI:  parsedEscrow,
		tokenABI:   parsedToken,
		confirmTO:  DefaultConfirmTimeout,
		log:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		ec, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, &protocol.TransportError{Op: "dial", Err: err}
		}
		c.client = ec
	}
	return c, nil
}

func validateConfig(cfg Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL required", protocol.ErrConfig)
	}
	key := strings.TrimPrefix(cfg.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("%w: private key must be 64 hex characters", protocol.ErrConfig)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return fmt.Errorf("%w: contract address %q invalid", protocol.ErrConfig, cfg.ContractAddress)
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("%w: chain ID required", protocol.ErrConfig)
	}
	return nil
}

// Address returns the signer's address.
func (c *Client) Address() string { return c.address.Hex() }

// Close releases the client connection.
func (c *Client) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// ---- lifecycle ----

// CreateEscrow approves the deposit if needed and creates the escrow. The
// deadline is passed to the contract as a relative offset; the contract
// anchors it to its own block timestamp.
//
// The returned escrow id is recovered as nextEscrowId()-1 after the receipt
// lands. Two creations racing from different senders can misattribute ids;
// callers needing certainty should verify via GetEscrow that the client
// field matches.
func (c *Client) CreateEscrow(ctx context.Context, params protocol.CreateEscrowParams) (*protocol.TransactionResult, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	provider, err := parseAddress("provider", params.Provider)
	if err != nil {
		return nil, err
	}
	token, err := parseAddress("token", params.TokenMint)
	if err != nil {
		return nil, err
	}
	arbitrator := zeroAddress
	if params.Arbitrator != "" {
		if arbitrator, err = parseAddress("arbitrator", params.Arbitrator); err != nil {
			return nil, err
		}
	}
	vcode, ok := verificationCode(params.Verification)
	if !ok {
		return nil, fmt.Errorf("%w: verification type %q has no wire code", protocol.ErrValidation, params.Verification)
	}

	amount := new(big.Int).SetUint64(params.Amount)
	if err := c.ensureAllowance(ctx, token, amount); err != nil {
		return nil, err
	}

	taskHash := protocol.HashTask(params.Task)
	txHash, err := c.transact(ctx, "create_escrow", c.contract, c.escrowABI, "createEscrow",
		provider, arbitrator, token, amount,
		uint64(params.DeadlineSeconds), uint64(params.GracePeriod),
		taskHash, vcode, uint8(len(params.Task.Criteria)))
	if err != nil {
		return nil, err
	}

	nextID, err := c.nextEscrowID(ctx)
	if err != nil {
		return nil, err
	}
	escrowID := new(big.Int).Sub(nextID, big.NewInt(1))

	c.log.Info("escrow created",
		"escrow", escrowID.String(),
		"provider", params.Provider,
		"amount", params.Amount,
		"tx", txHash)
	return &protocol.TransactionResult{Signature: txHash, EscrowAddress: escrowID.String()}, nil
}

// AcceptEscrow accepts an escrow as its provider.
func (c *Client) AcceptEscrow(ctx context.Context, escrowID string) (string, error) {
	return c.idCall(ctx, "accept_escrow", "acceptEscrow", escrowID)
}

// SubmitProof submits a completion proof as the provider. Unlike the
// account-model chain the contract takes variable-length proof data; it
// truncates to its own fixed buffer internally.
func (c *Client) SubmitProof(ctx context.Context, escrowID string, proof protocol.SubmitProofParams) (string, error) {
	if err := proof.Validate(); err != nil {
		return "", err
	}
	id, err := parseEscrowID(escrowID)
	if err != nil {
		return "", err
	}
	pcode, ok := proofCode(proof.Type)
	if !ok {
		return "", fmt.Errorf("%w: proof type %q has no wire code", protocol.ErrValidation, proof.Type)
	}
	data := proof.Data
	if data == nil {
		data = []byte{}
	}
	return c.transact(ctx, "submit_proof", c.contract, c.escrowABI, "submitProof", id, pcode, data)
}

// ConfirmCompletion confirms as the client, releasing funds to the provider.
func (c *Client) ConfirmCompletion(ctx context.Context, escrowID string) (string, error) {
	return c.idCall(ctx, "confirm_completion", "confirmCompletion", escrowID)
}

// ProviderRelease self-releases funds after the confirmation timeout.
func (c *Client) ProviderRelease(ctx context.Context, escrowID string) (string, error) {
	return c.idCall(ctx, "provider_release", "providerRelease", escrowID)
}

// CancelEscrow cancels before acceptance, refunding the client in full.
func (c *Client) CancelEscrow(ctx context.Context, escrowID string) (string, error) {
	return c.idCall(ctx, "cancel_escrow", "cancelEscrow", escrowID)
}

// ExpireEscrow reclaims funds for the client after deadline + grace period.
func (c *Client) ExpireEscrow(ctx context.Context, escrowID string) (string, error) {
	return c.idCall(ctx, "expire_escrow", "expireEscrow", escrowID)
}

// RaiseDispute freezes the escrow as Disputed.
func (c *Client) RaiseDispute(ctx context.Context, escrowID string) (string, error) {
	return c.idCall(ctx, "raise_dispute", "raiseDispute", escrowID)
}

// ExpireDispute settles an unruled dispute after the dispute timeout.
func (c *Client) ExpireDispute(ctx context.Context, escrowID string) (string, error) {
	return c.idCall(ctx, "expire_dispute", "expireDispute", escrowID)
}

// ResolveDispute rules on a dispute as the arbitrator.
func (c *Client) ResolveDispute(ctx context.Context, escrowID string, ruling protocol.DisputeRuling) (string, error) {
	if err := ruling.Validate(); err != nil {
		return "", err
	}
	id, err := parseEscrowID(escrowID)
	if err != nil {
		return "", err
	}
	arg := rulingTuple{
		RulingType:  rulingCode[ruling.Type],
		ClientBps:   ruling.ClientBps,
		ProviderBps: ruling.ProviderBps,
	}
	return c.transact(ctx, "resolve_dispute", c.contract, c.escrowABI, "resolveDispute", id, arg)
}

// ---- queries ----

// GetEscrow reads one escrow from the contract.
func (c *Client) GetEscrow(ctx context.Context, escrowID string) (*protocol.EscrowInfo, error) {
	id, err := parseEscrowID(escrowID)
	if err != nil {
		return nil, err
	}
	tuple, err := c.readEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	return tupleToInfo(escrowID, *tuple)
}

// ListEscrows walks escrow ids from newest to oldest, reading each escrow
// individually. Ids whose read fails are skipped, so a reclaimed or
// malformed entry never aborts the listing. The facade prefers the indexer
// and only falls back here.
func (c *Client) ListEscrows(ctx context.Context, filter protocol.ListFilter) ([]*protocol.EscrowInfo, error) {
	nextID, err := c.nextEscrowID(ctx)
	if err != nil {
		return nil, err
	}

	limit := filter.EffectiveLimit()
	var result []*protocol.EscrowInfo
	skipped := 0
	for i := new(big.Int).Sub(nextID, big.NewInt(1)); i.Sign() > 0; i.Sub(i, big.NewInt(1)) {
		if len(result) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, &protocol.TransportError{Op: "list_escrows", Err: err}
		}
		tuple, err := c.readEscrow(ctx, new(big.Int).Set(i))
		if err != nil {
			c.log.Debug("skipping unreadable escrow", "id", i.String(), "err", err)
			continue
		}
		info, err := tupleToInfo(i.String(), *tuple)
		if err != nil {
			c.log.Warn("skipping undecodable escrow", "id", i.String(), "err", err)
			continue
		}
		if !filter.Match(info) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		result = append(result, info)
	}
	return result, nil
}

// ---- internals ----

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not a valid hex address", protocol.ErrValidation, field, s)
	}
	return common.HexToAddress(s), nil
}

func parseEscrowID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: escrow id %q is not a decimal integer", protocol.ErrValidation, s)
	}
	return id, nil
}

// idCall covers the mutating methods whose only argument is the escrow id.
func (c *Client) idCall(ctx context.Context, op, method, escrowID string) (string, error) {
	id, err := parseEscrowID(escrowID)
	if err != nil {
		return "", err
	}
	return c.transact(ctx, op, c.contract, c.escrowABI, method, id)
}

// ensureAllowance checks the standing ERC-20 allowance toward the escrow
// contract and submits a blocking approve when it is short. Re-running with
// a sufficient allowance sends nothing.
func (c *Client) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) error {
	data, err := c.tokenABI.Pack("allowance", c.address, c.contract)
	if err != nil {
		return fmt.Errorf("pack allowance: %w", err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return c.classify("allowance", err)
	}
	out, err := c.tokenABI.Unpack("allowance", raw)
	if err != nil {
		return fmt.Errorf("%w: unpack allowance: %v", protocol.ErrDecode, err)
	}
	allowance := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)

	if allowance.Cmp(amount) >= 0 {
		return nil
	}
	c.log.Debug("allowance short, approving", "token", token.Hex(), "amount", amount.String())
	_, err = c.transact(ctx, "approve", token, c.tokenABI, "approve", c.contract, amount)
	return err
}

func (c *Client) nextEscrowID(ctx context.Context) (*big.Int, error) {
	data, err := c.escrowABI.Pack("nextEscrowId")
	if err != nil {
		return nil, fmt.Errorf("pack nextEscrowId: %w", err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, c.classify("next_escrow_id", err)
	}
	out, err := c.escrowABI.Unpack("nextEscrowId", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack nextEscrowId: %v", protocol.ErrDecode, err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Client) readEscrow(ctx context.Context, id *big.Int) (*escrowTuple, error) {
	data, err := c.escrowABI.Pack("getEscrow", id)
	if err != nil {
		return nil, fmt.Errorf("pack getEscrow: %w", err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, c.classify("get_escrow", err)
	}
	out, err := c.escrowABI.Unpack("getEscrow", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack getEscrow for id %s: %v", protocol.ErrDecode, id, err)
	}
	tuple := abi.ConvertType(out[0], new(escrowTuple)).(*escrowTuple)
	return tuple, nil
}

// transact runs the full submission path: pack, nonce, gas, sign with
// EIP-155, send, block until the receipt reports success.
func (c *Client) transact(ctx context.Context, op string, to common.Address, contractABI abi.ABI, method string, args ...any) (string, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("%s: pack %s: %w", op, method, err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", c.classify(op, err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", c.classify(op, err)
	}
	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.address,
		To:    &to,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		// Estimation failing is often a pending revert; let the send surface
		// the real error with the default limit.
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("%s: sign: %w", op, err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", c.classify(op, err)
	}
	txHash := signedTx.Hash().Hex()
	c.log.Debug("transaction sent", "op", op, "tx", txHash)

	if err := c.awaitReceipt(ctx, op, signedTx.Hash()); err != nil {
		return "", err
	}
	return txHash, nil
}

// awaitReceipt polls until the transaction is mined, reverted, or the
// timeout elapses.
func (c *Client) awaitReceipt(ctx context.Context, op string, txHash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTO)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &protocol.TransportError{Op: op, Err: fmt.Errorf("receipt timed out for %s: %w", txHash.Hex(), ctx.Err())}
		case <-ticker.C:
			receipt, err := c.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				// Not yet mined.
				continue
			}
			if receipt.Status == types.ReceiptStatusFailed {
				return &protocol.LedgerError{Op: op, Detail: fmt.Sprintf("transaction %s reverted", txHash.Hex())}
			}
			return nil
		}
	}
}

// classify maps a node failure onto the error taxonomy: revert-shaped
// errors are the contract rejecting, anything else is transport.
func (c *Client) classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "revert") || strings.Contains(msg, "execution reverted") {
		return &protocol.LedgerError{Op: op, Detail: err.Error(), Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &protocol.TransportError{Op: op, Err: err}
	}
	return &protocol.TransportError{Op: op, Err: err}
}
