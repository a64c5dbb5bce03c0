package evm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/agentvault/protocol"
)

// Base L2 network constants.
const (
	BaseMainnetRPC = "https://mainnet.base.org"
	BaseSepoliaRPC = "https://sepolia.base.org"

	BaseChainID        = 8453
	BaseSepoliaChainID = 84532
)

// Well-known USDC contracts on Base.
const (
	USDCBase        = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	USDCBaseSepolia = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
)

// erc20ABI covers the approve/allowance pair used for the deposit pre-flight.
const erc20ABI = `[
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// escrowABI is the escrow contract surface the SDK calls. Kept minimal; the
// contract exposes more but nothing else is needed client-side.
const escrowABI = `[
	{"name":"createEscrow","type":"function","stateMutability":"nonpayable","inputs":[{"name":"provider","type":"address"},{"name":"arbitrator","type":"address"},{"name":"tokenAddress","type":"address"},{"name":"amount","type":"uint256"},{"name":"deadline","type":"uint64"},{"name":"gracePeriod","type":"uint64"},{"name":"taskHash","type":"bytes32"},{"name":"verificationType","type":"uint8"},{"name":"criteriaCount","type":"uint8"}],"outputs":[{"name":"escrowId","type":"uint256"}]},
	{"name":"acceptEscrow","type":"function","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
	{"name":"submitProof","type":"function","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"},{"name":"proofType","type":"uint8"},{"name":"proofData","type":"bytes"}],"outputs":[]},
	{"name":"confirmCompletion","type":"function","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
	{"name":"cancelEscrow","type":"function","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
	{"name":"raiseDispute","type":"function","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
	{"name":"resolveDispute","type":"function","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"},{"name":"ruling","type":"tuple","components":[{"name":"rulingType","type":"uint8"},{"name":"clientBps","type":"uint16"},{"name":"providerBps","type":"uint16"}]}],"outputs":[]},
	{"name":"expireEscrow","type":"function","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
	{"name":"providerRelease","type":"function","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
	{"name":"expireDispute","type":"function","stateMutability":"nonpayable","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[]},
	{"name":"getEscrow","type":"function","stateMutability":"view","inputs":[{"name":"escrowId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"client","type":"address"},{"name":"provider","type":"address"},{"name":"arbitrator","type":"address"},{"name":"tokenAddress","type":"address"},{"name":"amount","type":"uint256"},{"name":"protocolFeeBps","type":"uint16"},{"name":"arbitratorFeeBps","type":"uint16"},{"name":"taskHash","type":"bytes32"},{"name":"verificationType","type":"uint8"},{"name":"criteriaCount","type":"uint8"},{"name":"createdAt","type":"uint64"},{"name":"deadline","type":"uint64"},{"name":"gracePeriod","type":"uint64"},{"name":"status","type":"uint8"},{"name":"proofType","type":"uint8"},{"name":"proofSubmitted","type":"bool"},{"name":"proofData","type":"bytes"},{"name":"proofSubmittedAt","type":"uint64"},{"name":"disputeRaisedBy","type":"address"}]}]},
	{"name":"nextEscrowId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// escrowTuple mirrors the getEscrow return tuple field for field. Used with
// abi.ConvertType to turn the unpacked anonymous struct into something typed.
type escrowTuple struct {
	Client           common.Address
	Provider         common.Address
	Arbitrator       common.Address
	TokenAddress     common.Address
	Amount           *big.Int
	ProtocolFeeBps   uint16
	ArbitratorFeeBps uint16
	TaskHash         [32]byte
	VerificationType uint8
	CriteriaCount    uint8
	CreatedAt        uint64
	Deadline         uint64
	GracePeriod      uint64
	Status           uint8
	ProofType        uint8
	ProofSubmitted   bool
	ProofData        []byte
	ProofSubmittedAt uint64
	DisputeRaisedBy  common.Address
}

// rulingTuple is the resolveDispute argument tuple.
type rulingTuple struct {
	RulingType  uint8
	ClientBps   uint16
	ProviderBps uint16
}

// Contract enum codes, in the Solidity declaration order.
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
	rulingCode = map[protocol.RulingType]uint8{
		protocol.RulingPayClient:   0,
		protocol.RulingPayProvider: 1,
		protocol.RulingSplit:       2,
	}
)

func verificationCode(v protocol.VerificationType) (uint8, bool) {
	for i, x := range verificationByCode {
		if x == v {
			return uint8(i), true
		}
	}
	return 0, false
}

func proofCode(p protocol.ProofType) (uint8, bool) {
	for i, x := range proofByCode {
		if x == p {
			return uint8(i), true
		}
	}
	return 0, false
}
