package protocol

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Error taxonomy - every error the SDK surfaces wraps exactly one of these
// sentinels, so callers can classify with errors.Is.
// -----------------------------------------------------------------------------

var (
	// ErrConfig marks configuration errors: missing identifiers, an invalid
	// chain selector, or an operation that needs the indexer when none is
	// configured. Raised before any network call.
	ErrConfig = errors.New("configuration error")

	// ErrTransport marks network failures: timeouts, connection errors,
	// HTTP-level failures. Safe for the caller to retry.
	ErrTransport = errors.New("transport error")

	// ErrValidation marks inputs that would produce an invalid transaction:
	// zero amounts, fee bps out of range, fixed-width overflow, malformed
	// addresses. Raised before submission, never after.
	ErrValidation = errors.New("validation error")

	// ErrLedger marks a rejection by the program or contract itself. The
	// ledger's own detail is preserved verbatim in the wrapping message.
	ErrLedger = errors.New("ledger rejected")

	// ErrDecode marks ledger state the SDK could not interpret: a malformed
	// tuple, a bad discriminator, a truncated account. Distinct from
	// ErrLedger; usually indicates a model/ledger version mismatch.
	ErrDecode = errors.New("decode error")
)

// IsRetryable reports whether err is a transport-kind error the caller may
// safely retry. The SDK never auto-retries submissions itself.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}

// LedgerError preserves a ledger rejection verbatim. Op names the SDK
// operation, Detail is whatever the ledger reported, unmodified.
type LedgerError struct {
	Op     string
	Detail string
	Err    error
}

func (e *LedgerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, ErrLedger, e.Detail)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrLedger, e.Err)
}

func (e *LedgerError) Unwrap() error { return ErrLedger }

// TransportError wraps a network failure with the operation that hit it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrTransport, e.Err)
}

func (e *TransportError) Unwrap() error { return ErrTransport }
