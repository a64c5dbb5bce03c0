package solana

import (
	"testing"

	sol "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDADerivationsDeterministic(t *testing.T) {
	client := sol.NewWallet().PublicKey()
	provider := sol.NewWallet().PublicKey()
	var taskHash [32]byte
	taskHash[0] = 1

	a, bumpA, err := EscrowPDA(DefaultProgramID, client, provider, taskHash)
	require.NoError(t, err)
	b, bumpB, err := EscrowPDA(DefaultProgramID, client, provider, taskHash)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, bumpA, bumpB)

	cfg1, _, err := ConfigPDA(DefaultProgramID)
	require.NoError(t, err)
	cfg2, _, err := ConfigPDA(DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, cfg1, cfg2)
}

// Any seed component change must move the derived address: same parties with
// a different task get a different escrow, and vault addresses follow the
// escrow.
func TestPDADerivationsSeedSensitivity(t *testing.T) {
	client := sol.NewWallet().PublicKey()
	provider := sol.NewWallet().PublicKey()
	var h1, h2 [32]byte
	h2[31] = 1

	e1, _, err := EscrowPDA(DefaultProgramID, client, provider, h1)
	require.NoError(t, err)
	e2, _, err := EscrowPDA(DefaultProgramID, client, provider, h2)
	require.NoError(t, err)
	assert.NotEqual(t, e1, e2, "task hash must be part of the derivation")

	e3, _, err := EscrowPDA(DefaultProgramID, provider, client, h1)
	require.NoError(t, err)
	assert.NotEqual(t, e1, e3, "swapping roles must move the address")

	other := sol.NewWallet().PublicKey()
	e4, _, err := EscrowPDA(other, client, provider, h1)
	require.NoError(t, err)
	assert.NotEqual(t, e1, e4, "program id must be part of the derivation")

	v1, _, err := VaultPDA(DefaultProgramID, e1)
	require.NoError(t, err)
	v2, _, err := VaultPDA(DefaultProgramID, e2)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	va, _, err := VaultAuthorityPDA(DefaultProgramID, e1)
	require.NoError(t, err)
	assert.NotEqual(t, v1, va, "vault and vault authority use distinct seeds")
}

func TestAssociatedTokenAddress(t *testing.T) {
	wallet := sol.NewWallet().PublicKey()

	a, err := AssociatedTokenAddress(wallet, USDCDevnet)
	require.NoError(t, err)
	b, err := AssociatedTokenAddress(wallet, USDCMainnet)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	want, _, err := sol.FindAssociatedTokenAddress(wallet, USDCDevnet)
	require.NoError(t, err)
	assert.Equal(t, want, a)
}

func TestParsePubkey(t *testing.T) {
	_, err := parsePubkey("provider", "not-base58!")
	assert.Error(t, err)

	pk, err := parsePubkey("mint", USDCDevnet.String())
	require.NoError(t, err)
	assert.Equal(t, USDCDevnet, pk)
}
