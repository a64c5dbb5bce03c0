// Package agentvault is the entry point of the escrow SDK. A Client wraps
// one chain backend (Solana or Base) behind a single lifecycle API, prefers
// the indexer for reads when one is configured, and falls back to direct
// ledger reads when the indexer is unreachable. Task definitions and dispute
// reasons are written through to the indexer on a best-effort basis; escrow
// state itself never depends on the indexer being up.
package agentvault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sol "github.com/gagliardetto/solana-go"

	"github.com/mbd888/agentvault/config"
	"github.com/mbd888/agentvault/evm"
	"github.com/mbd888/agentvault/indexer"
	"github.com/mbd888/agentvault/internal/circuitbreaker"
	"github.com/mbd888/agentvault/internal/logging"
	"github.com/mbd888/agentvault/internal/metrics"
	"github.com/mbd888/agentvault/internal/retry"
	"github.com/mbd888/agentvault/internal/traces"
	"github.com/mbd888/agentvault/protocol"
	"github.com/mbd888/agentvault/solana"
)

// Ledger read retry policy for the indexer-fallback path.
const (
	readAttempts = 3
	readBackoff  = 200 * time.Millisecond
)

// Indexer circuit: after this many consecutive failures, reads skip the
// indexer entirely for breakerOpenFor before probing it again.
const (
	breakerThreshold = 5
	breakerOpenFor   = 30 * time.Second
	breakerKey       = "indexer"
)

// Client is the chain-agnostic escrow client.
type Client struct {
	chain    string
	backend  Backend
	indexer  indexerAPI
	breaker  *circuitbreaker.Breaker
	identity string
	log      *slog.Logger

	shutdownTraces func(context.Context) error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// withBackend substitutes the ledger backend. Test hook.
func withBackend(b Backend) Option { return func(c *Client) { c.backend = b } }

// withIndexer substitutes the indexer client. Test hook.
func withIndexer(i indexerAPI) Option { return func(c *Client) { c.indexer = i } }

// withIdentity pins the signer address. Test hook.
func withIdentity(addr string) Option { return func(c *Client) { c.identity = addr } }

// New builds a Client from configuration. A nil cfg loads from the
// environment. The chain selector picks the backend once, at construction.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		chain:   cfg.Chain,
		breaker: circuitbreaker.New(breakerThreshold, breakerOpenFor),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logging.New(cfg.LogLevel, cfg.LogFormat)
	}

	shutdown, err := traces.Init(context.Background(), cfg.OTLPEndpoint, c.log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	c.shutdownTraces = shutdown

	if c.backend == nil {
		if err := c.buildBackend(cfg); err != nil {
			return nil, err
		}
	}
	if c.indexer == nil && cfg.IndexerURL != "" {
		c.indexer = indexer.New(cfg.IndexerURL, indexer.WithLogger(c.log))
	}

	c.log.Info("vault client ready",
		"chain", c.chain,
		"identity", c.identity,
		"indexer", cfg.IndexerURL != "")
	return c, nil
}

func (c *Client) buildBackend(cfg *config.Config) error {
	confirmTO := time.Duration(cfg.ConfirmTimeout) * time.Second

	switch cfg.Chain {
	case config.ChainSolana:
		signer, err := sol.PrivateKeyFromBase58(cfg.SolanaPrivateKey)
		if err != nil {
			return fmt.Errorf("%w: bad solana private key: %v", protocol.ErrConfig, err)
		}
		solOpts := []solana.Option{
			solana.WithLogger(c.log),
			solana.WithConfirmTimeout(confirmTO),
		}
		if cfg.SolanaProgramID != "" {
			program, err := sol.PublicKeyFromBase58(cfg.SolanaProgramID)
			if err != nil {
				return fmt.Errorf("%w: bad program id %q: %v", protocol.ErrConfig, cfg.SolanaProgramID, err)
			}
			solOpts = append(solOpts, solana.WithProgramID(program))
		}
		if cfg.FeeAccount != "" {
			fee, err := sol.PublicKeyFromBase58(cfg.FeeAccount)
			if err != nil {
				return fmt.Errorf("%w: bad fee account %q: %v", protocol.ErrConfig, cfg.FeeAccount, err)
			}
			solOpts = append(solOpts, solana.WithFeeAccount(fee))
		}
		if cfg.CacheFeeAccount {
			solOpts = append(solOpts, solana.WithFeeAccountCaching())
		}
		backend := solana.New(cfg.SolanaRPCURL, signer, solOpts...)
		c.backend = backend
		c.identity = backend.Pubkey()

	case config.ChainBase:
		backend, err := evm.New(evm.Config{
			RPCURL:          cfg.EVMRPCURL,
			PrivateKey:      cfg.EVMPrivateKey,
			ContractAddress: cfg.ContractAddress,
			ChainID:         cfg.EVMChainID,
		}, evm.WithLogger(c.log), evm.WithConfirmTimeout(confirmTO))
		if err != nil {
			return err
		}
		c.backend = backend
		c.identity = backend.Address()

	default:
		return fmt.Errorf("%w: unknown chain %q", protocol.ErrConfig, cfg.Chain)
	}
	return nil
}

// Chain returns the active chain selector.
func (c *Client) Chain() string { return c.chain }

// Identity returns the signer's address on the active chain.
func (c *Client) Identity() string { return c.identity }

// Close releases the backend and indexer connections and flushes traces.
func (c *Client) Close() error {
	errs := []error{c.backend.Close()}
	if c.indexer != nil {
		errs = append(errs, c.indexer.Close())
	}
	if c.shutdownTraces != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, c.shutdownTraces(ctx))
	}
	return errors.Join(errs...)
}

// ---- lifecycle ----

// CreateEscrow creates and funds an escrow, then writes the full task
// definition through to the indexer so the on-chain hash stays resolvable.
// The write-through is best-effort: escrow creation succeeds even when the
// indexer is down.
func (c *Client) CreateEscrow(ctx context.Context, params protocol.CreateEscrowParams) (*protocol.TransactionResult, error) {
	start := time.Now()
	hash := protocol.HashTask(params.Task)
	hashHex := hex.EncodeToString(hash[:])

	ctx, span := traces.StartSpan(ctx, "vault.create_escrow",
		traces.Chain(c.chain), traces.TaskHash(hashHex), traces.Amount(params.Amount))
	defer span.End()

	res, err := c.backend.CreateEscrow(ctx, params)
	metrics.ObserveOp(c.chain, "create_escrow", start, err)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.EscrowID(res.EscrowAddress))

	if c.indexer != nil {
		if werr := c.indexer.StoreTask(ctx, hashHex, params.Task); werr != nil {
			metrics.IndexerWriteFailuresTotal.WithLabelValues("tasks").Inc()
			c.log.Warn("task write-through failed",
				"escrow", res.EscrowAddress, "task_hash", hashHex, "error", werr)
		}
	}
	return res, nil
}

// AcceptEscrow commits the signer as provider.
func (c *Client) AcceptEscrow(ctx context.Context, escrowAddress string) (string, error) {
	return c.mutate(ctx, "accept_escrow", escrowAddress, c.backend.AcceptEscrow)
}

// SubmitProof attaches a completion proof to an active escrow.
func (c *Client) SubmitProof(ctx context.Context, escrowAddress string, proof protocol.SubmitProofParams) (string, error) {
	return c.mutate(ctx, "submit_proof", escrowAddress, func(ctx context.Context, addr string) (string, error) {
		return c.backend.SubmitProof(ctx, addr, proof)
	})
}

// ConfirmCompletion releases funds to the provider as the client.
func (c *Client) ConfirmCompletion(ctx context.Context, escrowAddress string) (string, error) {
	return c.mutate(ctx, "confirm_completion", escrowAddress, c.backend.ConfirmCompletion)
}

// ProviderRelease releases funds after deadline plus grace period when the
// client never confirmed.
func (c *Client) ProviderRelease(ctx context.Context, escrowAddress string) (string, error) {
	return c.mutate(ctx, "provider_release", escrowAddress, c.backend.ProviderRelease)
}

// CancelEscrow refunds the client before a provider accepts.
func (c *Client) CancelEscrow(ctx context.Context, escrowAddress string) (string, error) {
	return c.mutate(ctx, "cancel_escrow", escrowAddress, c.backend.CancelEscrow)
}

// ExpireEscrow refunds the client after the deadline passed with no proof.
func (c *Client) ExpireEscrow(ctx context.Context, escrowAddress string) (string, error) {
	return c.mutate(ctx, "expire_escrow", escrowAddress, c.backend.ExpireEscrow)
}

// RaiseDispute freezes the escrow pending arbitration. The reason text only
// exists off-chain: it is posted to the indexer first, best-effort, so the
// dispute record survives even if the posting fails.
func (c *Client) RaiseDispute(ctx context.Context, escrowAddress, reason string) (string, error) {
	if c.indexer != nil {
		if werr := c.indexer.SubmitDispute(ctx, escrowAddress, c.identity, reason); werr != nil {
			metrics.IndexerWriteFailuresTotal.WithLabelValues("disputes").Inc()
			c.log.Warn("dispute reason write failed", "escrow", escrowAddress, "error", werr)
		}
	}
	return c.mutate(ctx, "raise_dispute", escrowAddress, c.backend.RaiseDispute)
}

// ExpireDispute refunds the client when a dispute sat unresolved past the
// arbitration window.
func (c *Client) ExpireDispute(ctx context.Context, escrowAddress string) (string, error) {
	return c.mutate(ctx, "expire_dispute", escrowAddress, c.backend.ExpireDispute)
}

// ResolveDispute settles a dispute as the arbitrator.
func (c *Client) ResolveDispute(ctx context.Context, escrowAddress string, ruling protocol.DisputeRuling) (string, error) {
	return c.mutate(ctx, "resolve_dispute", escrowAddress, func(ctx context.Context, addr string) (string, error) {
		return c.backend.ResolveDispute(ctx, addr, ruling)
	})
}

func (c *Client) mutate(ctx context.Context, op, escrowAddress string, fn func(context.Context, string) (string, error)) (string, error) {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "vault."+op,
		traces.Chain(c.chain), traces.EscrowID(escrowAddress))
	defer span.End()

	sig, err := fn(ctx, escrowAddress)
	metrics.ObserveOp(c.chain, op, start, err)
	return sig, err
}

// ---- reads ----

// GetEscrow reads one escrow, preferring the indexer and falling back to
// the ledger when the indexer errors.
func (c *Client) GetEscrow(ctx context.Context, escrowAddress string) (*protocol.EscrowInfo, error) {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "vault.get_escrow",
		traces.Chain(c.chain), traces.EscrowID(escrowAddress))
	defer span.End()

	if c.indexer != nil && c.breaker.Allow(breakerKey) {
		info, err := c.indexer.GetEscrow(ctx, escrowAddress)
		if err == nil {
			c.breaker.RecordSuccess(breakerKey)
			span.SetAttributes(traces.Source("indexer"))
			metrics.ObserveOp(c.chain, "get_escrow", start, nil)
			c.noteWarnings(escrowAddress, info)
			return info, nil
		}
		c.breaker.RecordFailure(breakerKey)
		metrics.IndexerFallbacksTotal.WithLabelValues("get_escrow").Inc()
		c.log.Warn("indexer read failed, falling back to ledger",
			"escrow", escrowAddress, "error", err)
	}

	span.SetAttributes(traces.Source("ledger"))
	var info *protocol.EscrowInfo
	err := c.retryRead(ctx, func() error {
		var rerr error
		info, rerr = c.backend.GetEscrow(ctx, escrowAddress)
		return rerr
	})
	metrics.ObserveOp(c.chain, "get_escrow", start, err)
	if err != nil {
		return nil, err
	}
	c.noteWarnings(escrowAddress, info)
	return info, nil
}

// ListEscrows queries escrows, preferring the indexer and falling back to
// a direct ledger scan when the indexer errors.
func (c *Client) ListEscrows(ctx context.Context, filter protocol.ListFilter) ([]*protocol.EscrowInfo, error) {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "vault.list_escrows", traces.Chain(c.chain))
	defer span.End()

	if c.indexer != nil && c.breaker.Allow(breakerKey) {
		infos, err := c.indexer.ListEscrows(ctx, filter, c.chain)
		if err == nil {
			c.breaker.RecordSuccess(breakerKey)
			span.SetAttributes(traces.Source("indexer"))
			metrics.ObserveOp(c.chain, "list_escrows", start, nil)
			return infos, nil
		}
		c.breaker.RecordFailure(breakerKey)
		metrics.IndexerFallbacksTotal.WithLabelValues("list_escrows").Inc()
		c.log.Warn("indexer list failed, falling back to ledger scan", "error", err)
	}

	span.SetAttributes(traces.Source("ledger"))
	var infos []*protocol.EscrowInfo
	err := c.retryRead(ctx, func() error {
		var rerr error
		infos, rerr = c.backend.ListEscrows(ctx, filter)
		return rerr
	})
	metrics.ObserveOp(c.chain, "list_escrows", start, err)
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// GetAgentStats returns aggregated reputation stats for an agent. Stats are
// computed by the indexer; there is no ledger fallback.
func (c *Client) GetAgentStats(ctx context.Context, address string) (*protocol.AgentStats, error) {
	if c.indexer == nil {
		return nil, fmt.Errorf("%w: agent stats require an indexer (set INDEXER_URL)", protocol.ErrConfig)
	}
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "vault.get_agent_stats",
		traces.Chain(c.chain), traces.AgentAddr(address))
	defer span.End()

	stats, err := c.indexer.GetAgentStats(ctx, address)
	metrics.ObserveOp(c.chain, "get_agent_stats", start, err)
	return stats, err
}

// retryRead retries transient transport failures on direct ledger reads.
func (c *Client) retryRead(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, readAttempts, readBackoff, func() error {
		err := fn()
		if err != nil && !protocol.IsRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

func (c *Client) noteWarnings(escrowAddress string, info *protocol.EscrowInfo) {
	if len(info.DecodeWarnings) == 0 {
		return
	}
	metrics.DecodeWarningsTotal.Inc()
	c.log.Warn("escrow decoded with fallbacks",
		"escrow", escrowAddress, "warnings", info.DecodeWarnings)
}
