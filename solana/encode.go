package solana

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"

	"github.com/mbd888/agentvault/protocol"
)

// Anchor 8-byte discriminators: sha256("global:<name>")[:8] for instructions,
// sha256("account:<Name>")[:8] for accounts. Precomputed so the SDK never
// needs the IDL at runtime.
var (
	ixInitializeProtocol = [8]byte{188, 233, 252, 106, 134, 146, 202, 91}
	ixUpdateConfig       = [8]byte{197, 97, 123, 54, 221, 168, 11, 135}
	ixCreateEscrow       = [8]byte{253, 215, 165, 116, 36, 108, 68, 80}
	ixAcceptEscrow       = [8]byte{193, 2, 224, 245, 36, 116, 65, 154}
	ixSubmitProof        = [8]byte{54, 241, 46, 84, 4, 212, 46, 94}
	ixConfirmCompletion  = [8]byte{187, 31, 6, 48, 117, 161, 2, 243}
	ixCancelEscrow       = [8]byte{156, 203, 54, 179, 38, 72, 33, 21}
	ixExpireEscrow       = [8]byte{49, 150, 54, 201, 45, 106, 39, 175}
	ixProviderRelease    = [8]byte{43, 208, 50, 80, 130, 238, 234, 147}
	ixRaiseDispute       = [8]byte{41, 243, 1, 51, 150, 95, 246, 73}
	ixResolveDispute     = [8]byte{231, 6, 202, 6, 96, 103, 12, 230}
	ixExpireDispute      = [8]byte{241, 116, 178, 182, 234, 173, 61, 120}

	accEscrow         = [8]byte{31, 213, 123, 187, 186, 22, 218, 155}
	accProtocolConfig = [8]byte{207, 91, 250, 28, 152, 179, 215, 209}
)

// Borsh enum variant indexes follow the program's declaration order.
var (
	statusByCode = []protocol.EscrowStatus{
		protocol.StatusAwaitingProvider,
		protocol.StatusActive,
		protocol.StatusProofSubmitted,
		protocol.StatusCompleted,
		protocol.StatusDisputed,
		protocol.StatusResolved,
		protocol.StatusExpired,
		protocol.StatusCancelled,
	}
	verificationByCode = []protocol.VerificationType{
		protocol.VerifyOnChain,
		protocol.VerifyOracleCallback,
		protocol.VerifyMultiSig,
		protocol.VerifyAutoRelease,
	}
	proofByCode = []protocol.ProofType{
		protocol.ProofTxSignature,
		protocol.ProofAttestation,
		protocol.ProofConfirmation,
	}
)

func verificationCode(v protocol.VerificationType) (byte, error) {
	for i, x := range verificationByCode {
		if x == v {
			return byte(i), nil
		}
	}
	return 0, fmt.Errorf("%w: verification type %q has no wire code", protocol.ErrValidation, v)
}

func proofCode(p protocol.ProofType) (byte, error) {
	for i, x := range proofByCode {
		if x == p {
			return byte(i), nil
		}
	}
	return 0, fmt.Errorf("%w: proof type %q has no wire code", protocol.ErrValidation, p)
}

// createEscrowData encodes the create_escrow argument block. Argument order
// is fixed by the program: amount, deadline (absolute unix), grace period,
// task hash, verification variant, criteria count.
func createEscrowData(amount uint64, deadline, gracePeriod int64, taskHash [32]byte, verification protocol.VerificationType, criteriaCount uint8) ([]byte, error) {
	vcode, err := verificationCode(verification)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	buf.Write(ixCreateEscrow[:])
	if err := enc.WriteUint64(amount, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteInt64(deadline, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteInt64(gracePeriod, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(taskHash[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteByte(vcode); err != nil {
		return nil, err
	}
	if err := enc.WriteByte(criteriaCount); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// submitProofData encodes the submit_proof argument block. The payload is
// truncated or zero-padded to the fixed 64-byte on-chain buffer.
func submitProofData(proofType protocol.ProofType, data []byte) ([]byte, error) {
	pcode, err := proofCode(proofType)
	if err != nil {
		return nil, err
	}
	var fixed [protocol.ProofDataSize]byte
	copy(fixed[:], data)

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	buf.Write(ixSubmitProof[:])
	if err := enc.WriteByte(pcode); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(fixed[:], false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// resolveDisputeData encodes the resolve_dispute argument block. Split is
// the only variant carrying a payload.
func resolveDisputeData(ruling protocol.DisputeRuling) ([]byte, error) {
	if err := ruling.Validate(); err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	buf.Write(ixResolveDispute[:])
	switch ruling.Type {
	case protocol.RulingPayClient:
		if err := enc.WriteByte(0); err != nil {
			return nil, err
		}
	case protocol.RulingPayProvider:
		if err := enc.WriteByte(1); err != nil {
			return nil, err
		}
	case protocol.RulingSplit:
		if err := enc.WriteByte(2); err != nil {
			return nil, err
		}
		if err := enc.WriteUint16(ruling.ClientBps, binary.LittleEndian); err != nil {
			return nil, err
		}
		if err := enc.WriteUint16(ruling.ProviderBps, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// initializeProtocolData encodes the initialize_protocol argument block.
func initializeProtocolData(feeWallet sol.PublicKey, p protocol.InitializeProtocolParams) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	buf.Write(ixInitializeProtocol[:])
	if err := enc.WriteBytes(feeWallet.Bytes(), false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint16(p.ProtocolFeeBps, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint16(p.ArbitratorFeeBps, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(p.MinEscrowAmount, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(p.MaxEscrowAmount, binary.LittleEndian); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// updateConfigData encodes the update_protocol_config argument block: a
// struct of Borsh options, one per updatable field, nil meaning unchanged.
func updateConfigData(u protocol.ConfigUpdate) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	buf.Write(ixUpdateConfig[:])

	writeOptPubkey := func(s *string, field string) error {
		if s == nil {
			return enc.WriteByte(0)
		}
		pk, err := parsePubkey(field, *s)
		if err != nil {
			return err
		}
		if err := enc.WriteByte(1); err != nil {
			return err
		}
		return enc.WriteBytes(pk.Bytes(), false)
	}
	writeOptU16 := func(v *uint16) error {
		if v == nil {
			return enc.WriteByte(0)
		}
		if err := enc.WriteByte(1); err != nil {
			return err
		}
		return enc.WriteUint16(*v, binary.LittleEndian)
	}
	writeOptU64 := func(v *uint64) error {
		if v == nil {
			return enc.WriteByte(0)
		}
		if err := enc.WriteByte(1); err != nil {
			return err
		}
		return enc.WriteUint64(*v, binary.LittleEndian)
	}

	if err := writeOptPubkey(u.FeeWallet, "fee wallet"); err != nil {
		return nil, err
	}
	if err := writeOptU16(u.ProtocolFeeBps); err != nil {
		return nil, err
	}
	if err := writeOptU16(u.ArbitratorFeeBps); err != nil {
		return nil, err
	}
	if err := writeOptU64(u.MinEscrowAmount); err != nil {
		return nil, err
	}
	if err := writeOptU64(u.MaxEscrowAmount); err != nil {
		return nil, err
	}
	if u.Paused == nil {
		if err := enc.WriteByte(0); err != nil {
			return nil, err
		}
	} else {
		if err := enc.WriteByte(1); err != nil {
			return nil, err
		}
		if err := enc.WriteBool(*u.Paused); err != nil {
			return nil, err
		}
	}
	if err := writeOptPubkey(u.NewAdmin, "new admin"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// noArgData returns the data block for an instruction with no arguments.
func noArgData(disc [8]byte) []byte {
	out := make([]byte, 8)
	copy(out, disc[:])
	return out
}
