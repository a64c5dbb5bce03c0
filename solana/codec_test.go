package solana

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/agentvault/protocol"
)

// escrowFixture mirrors the on-chain account layout so decode tests can
// exercise arbitrary states, including ones no healthy program would write.
type escrowFixture struct {
	client, provider, arbitrator sol.PublicKey
	tokenMint, vault             sol.PublicKey
	amount                       uint64
	protocolFeeBps               uint16
	arbitratorFeeBps             uint16
	taskHash                     [32]byte
	verificationCode             byte
	criteriaCount                byte
	createdAt, deadline          int64
	gracePeriod                  int64
	statusCode                   byte
	proofSet                     bool
	proofCode                    byte
	proofData                    [64]byte
	proofSubmittedAt             int64
	disputeRaisedBy              sol.PublicKey
}

func (f escrowFixture) bytes(t *testing.T) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.Write(accEscrow[:])
	enc := bin.NewBorshEncoder(buf)

	for _, pk := range []sol.PublicKey{f.client, f.provider, f.arbitrator, f.tokenMint, f.vault} {
		require.NoError(t, enc.WriteBytes(pk.Bytes(), false))
	}
	require.NoError(t, enc.WriteUint64(f.amount, binary.LittleEndian))
	require.NoError(t, enc.WriteUint16(f.protocolFeeBps, binary.LittleEndian))
	require.NoError(t, enc.WriteUint16(f.arbitratorFeeBps, binary.LittleEndian))
	require.NoError(t, enc.WriteBytes(f.taskHash[:], false))
	require.NoError(t, enc.WriteByte(f.verificationCode))
	require.NoError(t, enc.WriteByte(f.criteriaCount))
	require.NoError(t, enc.WriteInt64(f.createdAt, binary.LittleEndian))
	require.NoError(t, enc.WriteInt64(f.deadline, binary.LittleEndian))
	require.NoError(t, enc.WriteInt64(f.gracePeriod, binary.LittleEndian))
	require.NoError(t, enc.WriteByte(f.statusCode))
	if f.proofSet {
		require.NoError(t, enc.WriteByte(1))
		require.NoError(t, enc.WriteByte(f.proofCode))
	} else {
		require.NoError(t, enc.WriteByte(0))
	}
	require.NoError(t, enc.WriteBytes(f.proofData[:], false))
	require.NoError(t, enc.WriteInt64(f.proofSubmittedAt, binary.LittleEndian))
	require.NoError(t, enc.WriteBytes(f.disputeRaisedBy.Bytes(), false))
	// trailing counters, bumps, padding
	require.NoError(t, enc.WriteUint32(3, binary.LittleEndian))
	require.NoError(t, enc.WriteUint32(5, binary.LittleEndian))
	require.NoError(t, enc.WriteByte(254))
	require.NoError(t, enc.WriteByte(253))
	buf.Write(make([]byte, 64))
	return buf.Bytes()
}

func testFixture() escrowFixture {
	task := protocol.Task{
		Description: "Swap 10 USDC to SOL on Jupiter",
		Criteria: []protocol.TaskCriterion{
			{Type: protocol.CriterionTxExecuted, Description: "Swap tx confirmed"},
		},
	}
	return escrowFixture{
		client:           sol.NewWallet().PublicKey(),
		provider:         sol.NewWallet().PublicKey(),
		arbitrator:       sol.NewWallet().PublicKey(),
		tokenMint:        USDCDevnet,
		vault:            sol.NewWallet().PublicKey(),
		amount:           50_000_000,
		protocolFeeBps:   50,
		arbitratorFeeBps: 100,
		taskHash:         protocol.HashTask(task),
		verificationCode: 2, // MultiSigConfirm
		criteriaCount:    1,
		createdAt:        1_756_000_000,
		deadline:         1_756_000_600,
		gracePeriod:      300,
		statusCode:       1, // Active
	}
}

func TestDecodeEscrow(t *testing.T) {
	f := testFixture()
	info, err := decodeEscrow("EscAddr", f.bytes(t))
	require.NoError(t, err)

	assert.Equal(t, "EscAddr", info.Address)
	assert.Equal(t, f.client.String(), info.Client)
	assert.Equal(t, f.provider.String(), info.Provider)
	assert.Equal(t, f.arbitrator.String(), info.Arbitrator)
	assert.Equal(t, USDCDevnet.String(), info.TokenMint)
	assert.Equal(t, uint64(50_000_000), info.Amount)
	assert.Equal(t, uint16(50), info.ProtocolFeeBps)
	assert.Equal(t, uint16(100), info.ArbitratorFeeBps)
	assert.Equal(t, hex.EncodeToString(f.taskHash[:]), info.TaskHash)
	assert.Equal(t, protocol.VerifyMultiSig, info.Verification)
	assert.Equal(t, uint8(1), info.CriteriaCount)
	assert.Equal(t, time.Unix(1_756_000_000, 0).UTC(), info.CreatedAt)
	assert.Equal(t, time.Unix(1_756_000_600, 0).UTC(), info.Deadline)
	assert.Equal(t, int64(300), info.GracePeriod)
	assert.Equal(t, protocol.StatusActive, info.Status)
	assert.Empty(t, info.ProofType)
	assert.True(t, info.ProofSubmittedAt.IsZero())
	assert.Empty(t, info.DisputedBy)
	assert.Empty(t, info.DecodeWarnings)
}

func TestDecodeEscrow_ZeroIdentitySentinels(t *testing.T) {
	f := testFixture()
	f.arbitrator = sol.PublicKey{}
	f.disputeRaisedBy = sol.PublicKey{}
	info, err := decodeEscrow("EscAddr", f.bytes(t))
	require.NoError(t, err)
	assert.Empty(t, info.Arbitrator)
	assert.Empty(t, info.DisputedBy)
}

func TestDecodeEscrow_ProofFields(t *testing.T) {
	f := testFixture()
	f.statusCode = 2 // ProofSubmitted
	f.proofSet = true
	f.proofCode = 1 // OracleAttestation
	f.proofSubmittedAt = 1_756_000_300
	f.disputeRaisedBy = f.client

	info, err := decodeEscrow("EscAddr", f.bytes(t))
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusProofSubmitted, info.Status)
	assert.Equal(t, protocol.ProofAttestation, info.ProofType)
	assert.Equal(t, time.Unix(1_756_000_300, 0).UTC(), info.ProofSubmittedAt)
	assert.Equal(t, f.client.String(), info.DisputedBy)
}

// Unknown enum tags decode to defaults and get flagged, never dropped
// silently and never treated as errors.
func TestDecodeEscrow_UnknownEnumCodes(t *testing.T) {
	f := testFixture()
	f.statusCode = 99
	f.verificationCode = 77

	info, err := decodeEscrow("EscAddr", f.bytes(t))
	require.NoError(t, err)
	assert.Equal(t, protocol.DefaultStatus, info.Status)
	assert.Equal(t, protocol.DefaultVerification, info.Verification)
	assert.Len(t, info.DecodeWarnings, 2)
}

func TestDecodeEscrow_BadDiscriminator(t *testing.T) {
	raw := testFixture().bytes(t)
	raw[0] ^= 0xff
	_, err := decodeEscrow("EscAddr", raw)
	assert.ErrorIs(t, err, protocol.ErrDecode)
}

func TestDecodeEscrow_Truncated(t *testing.T) {
	raw := testFixture().bytes(t)
	_, err := decodeEscrow("EscAddr", raw[:60])
	assert.ErrorIs(t, err, protocol.ErrDecode)
}

func protocolConfigBytes(t *testing.T, cfg ProtocolConfig) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.Write(accProtocolConfig[:])
	enc := bin.NewBorshEncoder(buf)
	require.NoError(t, enc.WriteBytes(cfg.Admin.Bytes(), false))
	require.NoError(t, enc.WriteBytes(cfg.FeeWallet.Bytes(), false))
	require.NoError(t, enc.WriteUint16(cfg.ProtocolFeeBps, binary.LittleEndian))
	require.NoError(t, enc.WriteUint16(cfg.ArbitratorFeeBps, binary.LittleEndian))
	require.NoError(t, enc.WriteUint64(cfg.MinEscrowAmount, binary.LittleEndian))
	require.NoError(t, enc.WriteUint64(cfg.MaxEscrowAmount, binary.LittleEndian))
	require.NoError(t, enc.WriteBool(cfg.Paused))
	require.NoError(t, enc.WriteByte(cfg.Bump))
	buf.Write(make([]byte, 64))
	return buf.Bytes()
}

func TestDecodeProtocolConfig(t *testing.T) {
	want := ProtocolConfig{
		Admin:            sol.NewWallet().PublicKey(),
		FeeWallet:        sol.NewWallet().PublicKey(),
		ProtocolFeeBps:   50,
		ArbitratorFeeBps: 100,
		MinEscrowAmount:  1_000_000,
		MaxEscrowAmount:  0,
		Paused:           true,
		Bump:             255,
	}
	got, err := decodeProtocolConfig(protocolConfigBytes(t, want))
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestCreateEscrowData(t *testing.T) {
	var taskHash [32]byte
	for i := range taskHash {
		taskHash[i] = byte(i)
	}
	data, err := createEscrowData(50_000_000, 1_756_000_600, 300, taskHash, protocol.VerifyMultiSig, 2)
	require.NoError(t, err)

	assert.Equal(t, ixCreateEscrow[:], data[:8])
	assert.Equal(t, uint64(50_000_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(1_756_000_600), binary.LittleEndian.Uint64(data[16:24]))
	assert.Equal(t, uint64(300), binary.LittleEndian.Uint64(data[24:32]))
	assert.Equal(t, taskHash[:], data[32:64])
	assert.Equal(t, byte(2), data[64]) // MultiSigConfirm variant
	assert.Equal(t, byte(2), data[65]) // criteria count
	assert.Len(t, data, 66)

	_, err = createEscrowData(1, 1, 1, taskHash, "Telepathy", 0)
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestSubmitProofData_FixedBuffer(t *testing.T) {
	long := bytes.Repeat([]byte{0xAB}, 100)
	data, err := submitProofData(protocol.ProofTxSignature, long)
	require.NoError(t, err)
	assert.Equal(t, ixSubmitProof[:], data[:8])
	assert.Equal(t, byte(0), data[8]) // TransactionSignature variant
	assert.Equal(t, long[:64], data[9:73])
	assert.Len(t, data, 73)

	short, err := submitProofData(protocol.ProofConfirmation, []byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, byte(2), short[8])
	assert.Equal(t, byte('o'), short[9])
	assert.Equal(t, byte('k'), short[10])
	assert.Equal(t, make([]byte, 62), short[11:73])
}

func TestResolveDisputeData(t *testing.T) {
	data, err := resolveDisputeData(protocol.DisputeRuling{Type: protocol.RulingPayProvider})
	require.NoError(t, err)
	assert.Equal(t, ixResolveDispute[:], data[:8])
	assert.Equal(t, []byte{1}, data[8:])

	data, err = resolveDisputeData(protocol.DisputeRuling{
		Type: protocol.RulingSplit, ClientBps: 4000, ProviderBps: 6000,
	})
	require.NoError(t, err)
	assert.Equal(t, byte(2), data[8])
	assert.Equal(t, uint16(4000), binary.LittleEndian.Uint16(data[9:11]))
	assert.Equal(t, uint16(6000), binary.LittleEndian.Uint16(data[11:13]))

	_, err = resolveDisputeData(protocol.DisputeRuling{
		Type: protocol.RulingSplit, ClientBps: 1, ProviderBps: 1,
	})
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestUpdateConfigData_OptionTags(t *testing.T) {
	// All nil: seven zero option tags.
	data, err := updateConfigData(protocol.ConfigUpdate{})
	require.NoError(t, err)
	assert.Equal(t, ixUpdateConfig[:], data[:8])
	assert.Equal(t, make([]byte, 7), data[8:])

	paused := true
	fee := uint16(75)
	data, err = updateConfigData(protocol.ConfigUpdate{ProtocolFeeBps: &fee, Paused: &paused})
	require.NoError(t, err)
	body := data[8:]
	assert.Equal(t, byte(0), body[0]) // fee wallet unset
	assert.Equal(t, byte(1), body[1]) // protocol fee set
	assert.Equal(t, uint16(75), binary.LittleEndian.Uint16(body[2:4]))
	assert.Equal(t, byte(0), body[4]) // arbitrator fee unset
	assert.Equal(t, byte(0), body[5]) // min unset
	assert.Equal(t, byte(0), body[6]) // max unset
	assert.Equal(t, []byte{1, 1}, body[7:9]) // paused = true
	assert.Equal(t, byte(0), body[9]) // new admin unset
}
