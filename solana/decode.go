package solana

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"

	"github.com/mbd888/agentvault/protocol"
)

// ProtocolConfig is the decoded protocol config singleton.
type ProtocolConfig struct {
	Admin            sol.PublicKey
	FeeWallet        sol.PublicKey
	ProtocolFeeBps   uint16
	ArbitratorFeeBps uint16
	MinEscrowAmount  uint64
	MaxEscrowAmount  uint64
	Paused           bool
	Bump             uint8
}

func readPubkey(dec *bin.Decoder) (sol.PublicKey, error) {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return sol.PublicKey{}, err
	}
	return sol.PublicKeyFromBytes(b), nil
}

// decodeEscrow parses a raw escrow account. Unknown enum tags never fail the
// decode: they map to the documented defaults and are recorded in
// DecodeWarnings so callers and metrics can see the fallback happened.
// Structural problems (bad discriminator, truncation) do fail.
func decodeEscrow(address string, data []byte) (*protocol.EscrowInfo, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], accEscrow[:]) {
		return nil, fmt.Errorf("%w: account %s is not an escrow (bad discriminator)", protocol.ErrDecode, address)
	}
	dec := bin.NewBorshDecoder(data[8:])

	info := &protocol.EscrowInfo{Address: address}
	var warnings []string

	client, err := readPubkey(dec)
	if err != nil {
		return nil, decodeErr(address, err)
	}
	provider, err := readPubkey(dec)
	if err != nil {
		return nil, decodeErr(address, err)
	}
	arbitrator, err := readPubkey(dec)
	if err != nil {
		return nil, decodeErr(address, err)
	}
	tokenMint, err := readPubkey(dec)
	if err != nil {
		return nil, decodeErr(address, err)
	}
	if _, err := readPubkey(dec); err != nil { // escrow_vault, rederivable
		return nil, decodeErr(address, err)
	}

	info.Client = client.String()
	info.Provider = provider.String()
	if !arbitrator.IsZero() {
		info.Arbitrator = arbitrator.String()
	}
	info.TokenMint = tokenMint.String()

	if info.Amount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, decodeErr(address, err)
	}
	if info.ProtocolFeeBps, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, decodeErr(address, err)
	}
	if info.ArbitratorFeeBps, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, decodeErr(address, err)
	}

	taskHash, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, decodeErr(address, err)
	}
	info.TaskHash = hex.EncodeToString(taskHash)

	vcode, err := dec.ReadByte()
	if err != nil {
		return nil, decodeErr(address, err)
	}
	if int(vcode) < len(verificationByCode) {
		info.Verification = verificationByCode[vcode]
	} else {
		info.Verification = protocol.DefaultVerification
		warnings = append(warnings, fmt.Sprintf("unknown verification code %d, using %s", vcode, protocol.DefaultVerification))
	}

	if info.CriteriaCount, err = dec.ReadByte(); err != nil {
		return nil, decodeErr(address, err)
	}

	createdAt, err := dec.ReadInt64(binary.LittleEndian)
	if err != nil {
		return nil, decodeErr(address, err)
	}
	deadline, err := dec.ReadInt64(binary.LittleEndian)
	if err != nil {
		return nil, decodeErr(address, err)
	}
	if info.GracePeriod, err = dec.ReadInt64(binary.LittleEndian); err != nil {
		return nil, decodeErr(address, err)
	}
	info.CreatedAt = time.Unix(createdAt, 0).UTC()
	info.Deadline = time.Unix(deadline, 0).UTC()

	scode, err := dec.ReadByte()
	if err != nil {
		return nil, decodeErr(address, err)
	}
	if int(scode) < len(statusByCode) {
		info.Status = statusByCode[scode]
	} else {
		info.Status = protocol.DefaultStatus
		warnings = append(warnings, fmt.Sprintf("unknown status code %d, using %s", scode, protocol.DefaultStatus))
	}

	// proof_type is a Borsh option
	proofTag, err := dec.ReadByte()
	if err != nil {
		return nil, decodeErr(address, err)
	}
	if proofTag == 1 {
		pcode, err := dec.ReadByte()
		if err != nil {
			return nil, decodeErr(address, err)
		}
		if int(pcode) < len(proofByCode) {
			info.ProofType = proofByCode[pcode]
		} else {
			warnings = append(warnings, fmt.Sprintf("unknown proof type code %d", pcode))
		}
	}

	if _, err := dec.ReadNBytes(protocol.ProofDataSize); err != nil {
		return nil, decodeErr(address, err)
	}
	proofAt, err := dec.ReadInt64(binary.LittleEndian)
	if err != nil {
		return nil, decodeErr(address, err)
	}
	if proofAt != 0 {
		info.ProofSubmittedAt = time.Unix(proofAt, 0).UTC()
	}

	disputedBy, err := readPubkey(dec)
	if err != nil {
		return nil, decodeErr(address, err)
	}
	if !disputedBy.IsZero() {
		info.DisputedBy = disputedBy.String()
	}

	// Trailing per-party escrow counters, bumps and padding carry no client
	// meaning; ignore whatever remains.

	info.DecodeWarnings = warnings
	return info, nil
}

// decodeProtocolConfig parses the protocol config singleton.
func decodeProtocolConfig(data []byte) (*ProtocolConfig, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], accProtocolConfig[:]) {
		return nil, fmt.Errorf("%w: account is not a protocol config (bad discriminator)", protocol.ErrDecode)
	}
	dec := bin.NewBorshDecoder(data[8:])

	var cfg ProtocolConfig
	var err error
	if cfg.Admin, err = readPubkey(dec); err != nil {
		return nil, decodeErr("protocol config", err)
	}
	if cfg.FeeWallet, err = readPubkey(dec); err != nil {
		return nil, decodeErr("protocol config", err)
	}
	if cfg.ProtocolFeeBps, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, decodeErr("protocol config", err)
	}
	if cfg.ArbitratorFeeBps, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, decodeErr("protocol config", err)
	}
	if cfg.MinEscrowAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, decodeErr("protocol config", err)
	}
	if cfg.MaxEscrowAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, decodeErr("protocol config", err)
	}
	if cfg.Paused, err = dec.ReadBool(); err != nil {
		return nil, decodeErr("protocol config", err)
	}
	if cfg.Bump, err = dec.ReadByte(); err != nil {
		return nil, decodeErr("protocol config", err)
	}
	return &cfg, nil
}

func decodeErr(what string, err error) error {
	return fmt.Errorf("%w: %s: truncated account data: %v", protocol.ErrDecode, what, err)
}
