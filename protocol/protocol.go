// Package protocol defines the chain-agnostic escrow model shared by both
// ledger backends: enums, parameter and result types, validation, the task
// commitment hash, and the escrow state machine.
//
// Everything in this package is pure data and pure functions. No I/O, no
// chain-specific encoding — those live in the solana and evm packages, which
// map between this model and their respective wire formats.
package protocol

import (
	"fmt"
	"strings"
	"time"
)

// MaxBps is the basis-point ceiling: 10000 bps = 100%. Any single fee and
// the combined protocol + arbitrator fee must stay at or below it.
const MaxBps = 10000

// DefaultGracePeriod is the grace period (seconds past deadline before
// expiry becomes callable) applied when the caller does not set one.
const DefaultGracePeriod = 300

// ProofDataSize is the fixed size of the on-ledger proof buffer. Submitted
// proof payloads are truncated or zero-padded to exactly this many bytes;
// anything beyond is silently dropped by the encoding, so callers holding
// longer proofs should store the full material off-chain and submit a
// digest or signature that fits.
const ProofDataSize = 64

// -----------------------------------------------------------------------------
// Enums
// -----------------------------------------------------------------------------

// EscrowStatus is the lifecycle state of an escrow.
type EscrowStatus string

const (
	StatusAwaitingProvider EscrowStatus = "AwaitingProvider" // created, provider not yet accepted
	StatusActive           EscrowStatus = "Active"           // provider accepted, work in progress
	StatusProofSubmitted   EscrowStatus = "ProofSubmitted"   // provider claims completion
	StatusCompleted        EscrowStatus = "Completed"        // funds released to provider
	StatusDisputed         EscrowStatus = "Disputed"         // a party challenged the outcome
	StatusResolved         EscrowStatus = "Resolved"         // arbitrator (or timeout) settled the dispute
	StatusExpired          EscrowStatus = "Expired"          // deadline + grace passed, client refunded
	StatusCancelled        EscrowStatus = "Cancelled"        // cancelled before acceptance
)

// DefaultStatus is what unknown wire status values decode to. Decoders that
// fall back to it must record a decode warning so the condition is visible.
const DefaultStatus = StatusAwaitingProvider

// Valid reports whether s is one of the known status values.
func (s EscrowStatus) Valid() bool {
	switch s {
	case StatusAwaitingProvider, StatusActive, StatusProofSubmitted,
		StatusCompleted, StatusDisputed, StatusResolved, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s is a final state. A terminal escrow never
// mutates again; the ledger may additionally reclaim its account.
func (s EscrowStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusResolved, StatusExpired:
		return true
	}
	return false
}

// VerificationType is how task completion is verified.
type VerificationType string

const (
	VerifyOnChain        VerificationType = "OnChain"        // proof is a ledger transaction signature
	VerifyOracleCallback VerificationType = "OracleCallback" // external oracle confirms
	VerifyMultiSig       VerificationType = "MultiSigConfirm" // client confirms explicitly
	VerifyAutoRelease    VerificationType = "AutoRelease"    // timer-based release absent a dispute
)

// DefaultVerification is what unknown wire verification values decode to,
// and what creation defaults to when the caller leaves it unset.
const DefaultVerification = VerifyMultiSig

// Valid reports whether v is one of the known verification types.
func (v VerificationType) Valid() bool {
	switch v {
	case VerifyOnChain, VerifyOracleCallback, VerifyMultiSig, VerifyAutoRelease:
		return true
	}
	return false
}

// ProofType is the format of a submitted completion proof.
type ProofType string

const (
	ProofTxSignature  ProofType = "TransactionSignature"
	ProofAttestation  ProofType = "OracleAttestation"
	ProofConfirmation ProofType = "SignedConfirmation"
)

// Valid reports whether p is one of the known proof types.
func (p ProofType) Valid() bool {
	switch p {
	case ProofTxSignature, ProofAttestation, ProofConfirmation:
		return true
	}
	return false
}

// CriterionType classifies a task success criterion.
type CriterionType string

const (
	CriterionTxExecuted     CriterionType = "TransactionExecuted"
	CriterionTokenTransfer  CriterionType = "TokenTransferred"
	CriterionPriceThreshold CriterionType = "PriceThreshold"
	CriterionTimeBound      CriterionType = "TimeBound"
	CriterionCustom         CriterionType = "Custom"
)

// RulingType is how an arbitrator resolves a dispute.
type RulingType string

const (
	RulingPayClient   RulingType = "PayClient"   // full refund to client
	RulingPayProvider RulingType = "PayProvider" // full payment to provider
	RulingSplit       RulingType = "Split"       // split by basis points
)

// DisputeRuling is an arbitrator's resolution. ClientBps and ProviderBps
// are only meaningful for RulingSplit and must total MaxBps.
type DisputeRuling struct {
	Type        RulingType
	ClientBps   uint16
	ProviderBps uint16
}

// Validate checks the ruling before it is encoded for submission.
func (r DisputeRuling) Validate() error {
	switch r.Type {
	case RulingPayClient, RulingPayProvider:
		return nil
	case RulingSplit:
		if int(r.ClientBps)+int(r.ProviderBps) != MaxBps {
			return fmt.Errorf("%w: split ruling bps must total %d, got %d+%d",
				ErrValidation, MaxBps, r.ClientBps, r.ProviderBps)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown ruling type %q", ErrValidation, r.Type)
	}
}

// -----------------------------------------------------------------------------
// Task definition
// -----------------------------------------------------------------------------

// TaskCriterion is a single success criterion. TargetValue is optional and
// omitted from the commitment hash when nil.
type TaskCriterion struct {
	Type        CriterionType `json:"type"`
	Description string        `json:"description"`
	TargetValue *int64        `json:"target_value,omitempty"`
}

// Task is the off-chain task definition. Only Description and Criteria are
// bound into the on-ledger commitment hash; Metadata is indexer-only.
type Task struct {
	Description string          `json:"description"`
	Criteria    []TaskCriterion `json:"criteria"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// -----------------------------------------------------------------------------
// Operation parameters and results
// -----------------------------------------------------------------------------

// CreateEscrowParams are the caller-supplied inputs to escrow creation.
// Amount is in the token's smallest unit. DeadlineSeconds is relative to
// creation time; the backend turns it into an absolute deadline exactly
// once, at creation.
type CreateEscrowParams struct {
	Provider        string
	Arbitrator      string // empty = no arbitrator
	TokenMint       string
	Amount          uint64
	DeadlineSeconds int64
	GracePeriod     int64 // seconds; 0 means DefaultGracePeriod
	Verification    VerificationType
	Task            Task
}

// Normalize fills defaults. Called by backends before validation.
func (p *CreateEscrowParams) Normalize() {
	if p.Verification == "" {
		p.Verification = DefaultVerification
	}
	if p.GracePeriod == 0 {
		p.GracePeriod = DefaultGracePeriod
	}
}

// Validate rejects parameters that would produce an invalid transaction.
// Runs entirely before any network call.
func (p *CreateEscrowParams) Validate() error {
	if p.Provider == "" {
		return fmt.Errorf("%w: provider address required", ErrValidation)
	}
	if p.TokenMint == "" {
		return fmt.Errorf("%w: token mint required", ErrValidation)
	}
	if p.Amount == 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	if p.DeadlineSeconds <= 0 {
		return fmt.Errorf("%w: deadline seconds must be positive", ErrValidation)
	}
	if p.GracePeriod < 0 {
		return fmt.Errorf("%w: grace period cannot be negative", ErrValidation)
	}
	if !p.Verification.Valid() {
		return fmt.Errorf("%w: unknown verification type %q", ErrValidation, p.Verification)
	}
	if len(p.Task.Criteria) > 255 {
		return fmt.Errorf("%w: at most 255 criteria, got %d", ErrValidation, len(p.Task.Criteria))
	}
	return nil
}

// SubmitProofParams carries a completion proof. Data longer than
// ProofDataSize is truncated on encoding.
type SubmitProofParams struct {
	Type ProofType
	Data []byte
}

// Validate checks the proof before encoding.
func (p *SubmitProofParams) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown proof type %q", ErrValidation, p.Type)
	}
	return nil
}

// TransactionResult is returned by mutating operations. EscrowAddress is
// only set by creation: the derived PDA on the account-model backend, the
// minted integer identifier on the contract-call backend.
type TransactionResult struct {
	Signature     string
	EscrowAddress string
}

// EscrowInfo is the chain-agnostic read model of one escrow.
//
// Arbitrator and DisputedBy are empty when the ledger holds the zero-identity
// sentinel. ArbitratorFeeBps is only populated by the account-model backend;
// the contract tracks it but omits it from its public read tuple.
//
// DecodeWarnings records non-fatal decode fallbacks (for example an unknown
// status tag mapped to DefaultStatus) so callers can observe them.
type EscrowInfo struct {
	Address          string
	Client           string
	Provider         string
	Arbitrator       string
	TokenMint        string
	Amount           uint64
	ProtocolFeeBps   uint16
	ArbitratorFeeBps uint16
	Status           EscrowStatus
	Verification     VerificationType
	TaskHash         string // hex of the 32-byte commitment
	CriteriaCount    uint8
	CreatedAt        time.Time
	Deadline         time.Time
	GracePeriod      int64 // seconds
	ProofType        ProofType // empty until a proof is submitted
	ProofSubmittedAt time.Time // zero until a proof is submitted
	DisputedBy       string
	DecodeWarnings   []string
}

// AgentStats is the indexer's aggregated view of one agent. There is no
// ledger fallback for these numbers.
type AgentStats struct {
	Address           string
	TotalEscrows      int
	CompletedEscrows  int
	DisputedEscrows   int
	ExpiredEscrows    int
	TotalVolume       uint64
	SuccessRate       float64
	AvgCompletionTime int64
	LastActive        time.Time
}

// ListFilter narrows escrow listings. A zero Limit means 50.
type ListFilter struct {
	Status   EscrowStatus
	Client   string
	Provider string
	Limit    int
	Offset   int
}

// EffectiveLimit returns the limit with the default applied.
func (f ListFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

// Match reports whether e passes the status/client/provider filters. Both
// backends use it for their direct-ledger scan fallback so that a scan and
// an indexer query agree on the logical result set.
func (f ListFilter) Match(e *EscrowInfo) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Client != "" && !equalAddress(f.Client, e.Client) {
		return false
	}
	if f.Provider != "" && !equalAddress(f.Provider, e.Provider) {
		return false
	}
	return true
}

// -----------------------------------------------------------------------------
// Protocol admin
// -----------------------------------------------------------------------------

// InitializeProtocolParams configures the protocol singleton. Admin only,
// account-model backend only.
type InitializeProtocolParams struct {
	FeeWallet        string
	ProtocolFeeBps   uint16
	ArbitratorFeeBps uint16
	MinEscrowAmount  uint64
	MaxEscrowAmount  uint64 // 0 = no ceiling
}

// Validate checks the config before submission.
func (p *InitializeProtocolParams) Validate() error {
	if p.FeeWallet == "" {
		return fmt.Errorf("%w: fee wallet required", ErrValidation)
	}
	return ValidateFees(p.ProtocolFeeBps, p.ArbitratorFeeBps)
}

// ConfigUpdate carries optional protocol config changes; nil fields keep
// their current value. Admin only, account-model backend only.
type ConfigUpdate struct {
	FeeWallet        *string
	ProtocolFeeBps   *uint16
	ArbitratorFeeBps *uint16
	MinEscrowAmount  *uint64
	MaxEscrowAmount  *uint64
	Paused           *bool
	NewAdmin         *string
}

// ValidateFees enforces the combined fee bound: each fee and their sum must
// be at most MaxBps. Enforced before submission; the ledger enforces it
// again authoritatively.
func ValidateFees(protocolBps, arbitratorBps uint16) error {
	if int(protocolBps)+int(arbitratorBps) > MaxBps {
		return fmt.Errorf("%w: combined fees %d+%d bps exceed %d",
			ErrValidation, protocolBps, arbitratorBps, MaxBps)
	}
	return nil
}

// equalAddress compares two addresses. Hex (0x-prefixed) addresses compare
// case-insensitively because checksum casing varies; base58 addresses are
// case-sensitive and compare exactly.
func equalAddress(a, b string) bool {
	if a == b {
		return true
	}
	if !strings.HasPrefix(a, "0x") || !strings.HasPrefix(b, "0x") {
		return false
	}
	return strings.EqualFold(a, b)
}
