package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned by Next when an action is not legal in
// the current status. The status is never changed on rejection.
var ErrInvalidTransition = errors.New("invalid state transition")

// Action is a lifecycle operation name as used by the state machine.
type Action string

const (
	ActionAccept          Action = "accept"
	ActionSubmitProof     Action = "submitProof"
	ActionConfirm         Action = "confirmCompletion"
	ActionProviderRelease Action = "providerRelease"
	ActionCancel          Action = "cancel"
	ActionRaiseDispute    Action = "raiseDispute"
	ActionResolveDispute  Action = "resolveDispute"
	ActionExpireDispute   Action = "expireDispute"
	ActionExpire          Action = "expire"
)

// transitions is the complete escrow state machine. AwaitingProvider is the
// sole initial state; Completed, Cancelled, Resolved and Expired are
// terminal. Time preconditions (deadline + grace for expiry, the provider
// self-release timeout, the dispute timeout) are enforced by the ledger and
// deliberately not modeled here.
var transitions = map[EscrowStatus]map[Action]EscrowStatus{
	StatusAwaitingProvider: {
		ActionAccept:       StatusActive,
		ActionCancel:       StatusCancelled,
		ActionRaiseDispute: StatusDisputed,
		ActionExpire:       StatusExpired,
	},
	StatusActive: {
		ActionSubmitProof:  StatusProofSubmitted,
		ActionRaiseDispute: StatusDisputed,
		ActionExpire:       StatusExpired,
	},
	StatusProofSubmitted: {
		ActionConfirm:         StatusCompleted,
		ActionProviderRelease: StatusCompleted,
		ActionRaiseDispute:    StatusDisputed,
		ActionExpire:          StatusExpired,
	},
	StatusDisputed: {
		ActionResolveDispute: StatusResolved,
		ActionExpireDispute:  StatusResolved,
	},
}

// Next returns the status resulting from applying action in status. It
// returns ErrInvalidTransition (and the unchanged status) for any pair the
// diagram does not allow, including every action on a terminal status.
func Next(status EscrowStatus, action Action) (EscrowStatus, error) {
	if next, ok := transitions[status][action]; ok {
		return next, nil
	}
	return status, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, action, status)
}

// CanTransition reports whether action is legal in status.
func CanTransition(status EscrowStatus, action Action) bool {
	_, ok := transitions[status][action]
	return ok
}
