package solana

import (
	"fmt"

	sol "github.com/gagliardetto/solana-go"

	"github.com/mbd888/agentvault/protocol"
)

// DefaultProgramID is the deployed escrow program. Override with
// WithProgramID for local validators or forks.
var DefaultProgramID = sol.MustPublicKeyFromBase58("8rXSN62qT7hb3DkcYrMmi6osPxak7nhXi2cBGDNbh7Py")

// Well-known USDC mints.
var (
	USDCMainnet = sol.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	USDCDevnet  = sol.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
)

// PDA seed prefixes. These must match the program's seeds byte for byte or
// every derived address is wrong.
const (
	seedConfig         = "protocol_config"
	seedEscrow         = "escrow"
	seedVault          = "vault"
	seedVaultAuthority = "vault_authority"
)

// ConfigPDA derives the protocol config singleton address.
func ConfigPDA(programID sol.PublicKey) (sol.PublicKey, uint8, error) {
	return sol.FindProgramAddress([][]byte{[]byte(seedConfig)}, programID)
}

// EscrowPDA derives the escrow account address. The task hash is part of the
// seeds, so one (client, provider, task) triple maps to exactly one escrow.
func EscrowPDA(programID, client, provider sol.PublicKey, taskHash [32]byte) (sol.PublicKey, uint8, error) {
	return sol.FindProgramAddress([][]byte{
		[]byte(seedEscrow),
		client.Bytes(),
		provider.Bytes(),
		taskHash[:],
	}, programID)
}

// VaultPDA derives the token vault holding the escrowed funds.
func VaultPDA(programID, escrow sol.PublicKey) (sol.PublicKey, uint8, error) {
	return sol.FindProgramAddress([][]byte{[]byte(seedVault), escrow.Bytes()}, programID)
}

// VaultAuthorityPDA derives the program authority that signs vault transfers.
func VaultAuthorityPDA(programID, escrow sol.PublicKey) (sol.PublicKey, uint8, error) {
	return sol.FindProgramAddress([][]byte{[]byte(seedVaultAuthority), escrow.Bytes()}, programID)
}

// AssociatedTokenAddress derives the SPL associated token account for a
// wallet and mint.
func AssociatedTokenAddress(wallet, mint sol.PublicKey) (sol.PublicKey, error) {
	addr, _, err := sol.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return sol.PublicKey{}, fmt.Errorf("%w: derive associated token account: %v", protocol.ErrValidation, err)
	}
	return addr, nil
}

// parsePubkey converts a caller-supplied base58 address, classifying bad
// input as a validation error.
func parsePubkey(field, s string) (sol.PublicKey, error) {
	pk, err := sol.PublicKeyFromBase58(s)
	if err != nil {
		return sol.PublicKey{}, fmt.Errorf("%w: %s %q is not a valid base58 pubkey", protocol.ErrValidation, field, s)
	}
	return pk, nil
}
