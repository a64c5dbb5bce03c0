package evm

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/agentvault/protocol"
)

// zeroAddress is the contract's "nobody" sentinel for the optional
// arbitrator and the dispute raiser.
var zeroAddress = common.Address{}

// tupleToInfo maps the getEscrow return tuple onto the shared read model.
// The contract omits arbitratorFeeBps from nothing here; it is carried as-is.
// Unknown enum codes map to the documented defaults with a warning; amounts
// that overflow uint64 are a decode failure, not a silent wrap.
func tupleToInfo(escrowID string, t escrowTuple) (*protocol.EscrowInfo, error) {
	if t.Amount == nil || !t.Amount.IsUint64() {
		return nil, fmt.Errorf("%w: escrow %s amount %v does not fit uint64", protocol.ErrDecode, escrowID, t.Amount)
	}

	info := &protocol.EscrowInfo{
		Address:          escrowID,
		Client:           t.Client.Hex(),
		Provider:         t.Provider.Hex(),
		TokenMint:        t.TokenAddress.Hex(),
		Amount:           t.Amount.Uint64(),
		ProtocolFeeBps:   t.ProtocolFeeBps,
		ArbitratorFeeBps: t.ArbitratorFeeBps,
		TaskHash:         hex.EncodeToString(t.TaskHash[:]),
		CriteriaCount:    t.CriteriaCount,
		CreatedAt:        time.Unix(int64(t.CreatedAt), 0).UTC(),
		Deadline:         time.Unix(int64(t.Deadline), 0).UTC(),
		GracePeriod:      int64(t.GracePeriod),
	}
	var warnings []string

	if t.Arbitrator != zeroAddress {
		info.Arbitrator = t.Arbitrator.Hex()
	}
	if t.DisputeRaisedBy != zeroAddress {
		info.DisputedBy = t.DisputeRaisedBy.Hex()
	}

	if int(t.Status) < len(statusByCode) {
		info.Status = statusByCode[t.Status]
	} else {
		info.Status = protocol.DefaultStatus
		warnings = append(warnings, fmt.Sprintf("unknown status code %d, using %s", t.Status, protocol.DefaultStatus))
	}
	if int(t.VerificationType) < len(verificationByCode) {
		info.Verification = verificationByCode[t.VerificationType]
	} else {
		info.Verification = protocol.DefaultVerification
		warnings = append(warnings, fmt.Sprintf("unknown verification code %d, using %s", t.VerificationType, protocol.DefaultVerification))
	}

	// proofType is only meaningful once a proof landed; before that the slot
	// holds whatever zero value the contract initialized.
	if t.ProofSubmitted {
		if int(t.ProofType) < len(proofByCode) {
			info.ProofType = proofByCode[t.ProofType]
		} else {
			warnings = append(warnings, fmt.Sprintf("unknown proof type code %d", t.ProofType))
		}
		if t.ProofSubmittedAt > 0 {
			info.ProofSubmittedAt = time.Unix(int64(t.ProofSubmittedAt), 0).UTC()
		}
	}

	info.DecodeWarnings = warnings
	return info, nil
}
