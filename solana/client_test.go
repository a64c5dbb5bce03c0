package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/agentvault/protocol"
)

// mockRPC records calls and serves canned responses.
type mockRPC struct {
	accounts        map[sol.PublicKey][]byte
	programAccounts []*rpc.KeyedAccount

	sentTx      *sol.Transaction
	sendErr     error
	sendCount   int
	accountHits int
	txStatusErr any // on-chain execution error, nil = success
}

func (m *mockRPC) GetAccountInfoWithOpts(ctx context.Context, account sol.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	m.accountHits++
	raw, ok := m.accounts[account]
	if !ok {
		return &rpc.GetAccountInfoResult{}, nil
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Data: dataBytes(raw)}}, nil
}

func (m *mockRPC) GetProgramAccountsWithOpts(ctx context.Context, publicKey sol.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	return m.programAccounts, nil
}

func (m *mockRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: sol.Hash{1, 2, 3}},
	}, nil
}

func (m *mockRPC) SendTransactionWithOpts(ctx context.Context, tx *sol.Transaction, opts rpc.TransactionOpts) (sol.Signature, error) {
	m.sendCount++
	if m.sendErr != nil {
		return sol.Signature{}, m.sendErr
	}
	m.sentTx = tx
	return sol.Signature{9, 9, 9}, nil
}

func (m *mockRPC) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...sol.Signature) (*rpc.GetSignatureStatusesResult, error) {
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: rpc.ConfirmationStatusConfirmed, Err: m.txStatusErr},
		},
	}, nil
}

func (m *mockRPC) Close() error { return nil }

func dataBytes(raw []byte) *rpc.DataBytesOrJSON {
	var d rpc.DataBytesOrJSON
	payload, _ := json.Marshal([]string{base64.StdEncoding.EncodeToString(raw), "base64"})
	if err := d.UnmarshalJSON(payload); err != nil {
		panic(err)
	}
	return &d
}

func newTestClient(t *testing.T, m *mockRPC) *Client {
	t.Helper()
	wallet := sol.NewWallet()
	return New("", wallet.PrivateKey, withRPC(m), WithConfirmTimeout(5*time.Second))
}

func TestCreateEscrow_BuildsExpectedTransaction(t *testing.T) {
	m := &mockRPC{}
	c := newTestClient(t, m)

	params := protocol.CreateEscrowParams{
		Provider:        sol.NewWallet().PublicKey().String(),
		TokenMint:       USDCDevnet.String(),
		Amount:          50_000_000,
		DeadlineSeconds: 600,
		Task: protocol.Task{
			Description: "Swap 10 USDC to SOL on Jupiter",
			Criteria: []protocol.TaskCriterion{
				{Type: protocol.CriterionTxExecuted, Description: "Swap tx confirmed"},
			},
		},
	}
	res, err := c.CreateEscrow(context.Background(), params)
	require.NoError(t, err)

	provider, err := parsePubkey("provider", params.Provider)
	require.NoError(t, err)
	wantEscrow, _, err := EscrowPDA(c.programID, c.signer.PublicKey(), provider, protocol.HashTask(params.Task))
	require.NoError(t, err)
	assert.Equal(t, wantEscrow.String(), res.EscrowAddress)
	assert.NotEmpty(t, res.Signature)

	require.NotNil(t, m.sentTx)
	require.Len(t, m.sentTx.Message.Instructions, 1)
	ix := m.sentTx.Message.Instructions[0]
	prog, err := m.sentTx.Message.Program(ix.ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, c.programID, prog)
	assert.Equal(t, ixCreateEscrow[:], []byte(ix.Data[:8]))
	assert.Len(t, m.sentTx.Signatures, 1)
}

func TestCreateEscrow_ValidationBeforeNetwork(t *testing.T) {
	m := &mockRPC{}
	c := newTestClient(t, m)

	_, err := c.CreateEscrow(context.Background(), protocol.CreateEscrowParams{
		Provider:        sol.NewWallet().PublicKey().String(),
		TokenMint:       USDCDevnet.String(),
		Amount:          0,
		DeadlineSeconds: 600,
	})
	assert.ErrorIs(t, err, protocol.ErrValidation)
	assert.Zero(t, m.sendCount, "invalid params must never reach the RPC node")
}

func TestSendInstruction_ErrorClassification(t *testing.T) {
	escrowAddr := sol.NewWallet().PublicKey()

	t.Run("rpc error is ledger", func(t *testing.T) {
		m := &mockRPC{sendErr: &jsonrpc.RPCError{Code: -32002, Message: "custom program error: 0x1772"}}
		c := newTestClient(t, m)
		_, err := c.AcceptEscrow(context.Background(), escrowAddr.String())
		assert.ErrorIs(t, err, protocol.ErrLedger)
		assert.Contains(t, err.Error(), "0x1772")
	})

	t.Run("network error is transport", func(t *testing.T) {
		m := &mockRPC{sendErr: errors.New("connection refused")}
		c := newTestClient(t, m)
		_, err := c.AcceptEscrow(context.Background(), escrowAddr.String())
		assert.ErrorIs(t, err, protocol.ErrTransport)
		assert.True(t, protocol.IsRetryable(err))
	})

	t.Run("failed on-chain execution is ledger", func(t *testing.T) {
		m := &mockRPC{txStatusErr: map[string]any{"InstructionError": []any{0, "Custom"}}}
		c := newTestClient(t, m)
		_, err := c.AcceptEscrow(context.Background(), escrowAddr.String())
		assert.ErrorIs(t, err, protocol.ErrLedger)
	})
}

func TestGetEscrow(t *testing.T) {
	f := testFixture()
	escrowAddr := sol.NewWallet().PublicKey()
	m := &mockRPC{accounts: map[sol.PublicKey][]byte{escrowAddr: f.bytes(t)}}
	c := newTestClient(t, m)

	info, err := c.GetEscrow(context.Background(), escrowAddr.String())
	require.NoError(t, err)
	assert.Equal(t, escrowAddr.String(), info.Address)
	assert.Equal(t, protocol.StatusActive, info.Status)

	_, err = c.GetEscrow(context.Background(), sol.NewWallet().PublicKey().String())
	assert.ErrorIs(t, err, protocol.ErrLedger)
}

func TestListEscrows_ScanFiltersAndPaginates(t *testing.T) {
	active := testFixture()
	completed := testFixture()
	completed.statusCode = 3
	active2 := testFixture()

	m := &mockRPC{programAccounts: []*rpc.KeyedAccount{
		{Pubkey: sol.NewWallet().PublicKey(), Account: &rpc.Account{Data: dataBytes(active.bytes(t))}},
		{Pubkey: sol.NewWallet().PublicKey(), Account: &rpc.Account{Data: dataBytes(completed.bytes(t))}},
		{Pubkey: sol.NewWallet().PublicKey(), Account: &rpc.Account{Data: dataBytes(active2.bytes(t))}},
	}}
	c := newTestClient(t, m)

	all, err := c.ListEscrows(context.Background(), protocol.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	actives, err := c.ListEscrows(context.Background(), protocol.ListFilter{Status: protocol.StatusActive})
	require.NoError(t, err)
	assert.Len(t, actives, 2)

	paged, err := c.ListEscrows(context.Background(), protocol.ListFilter{Status: protocol.StatusActive, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)

	none, err := c.ListEscrows(context.Background(), protocol.ListFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, none)

	byClient, err := c.ListEscrows(context.Background(), protocol.ListFilter{Client: active.client.String()})
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, active.client.String(), byClient[0].Client)
}

func TestResolveFeeAccount_CachesConfigReadWhenEnabled(t *testing.T) {
	feeWallet := sol.NewWallet().PublicKey()
	configAddr, _, err := ConfigPDA(DefaultProgramID)
	require.NoError(t, err)

	m := &mockRPC{accounts: map[sol.PublicKey][]byte{}}
	c := New("", sol.NewWallet().PrivateKey, withRPC(m), WithFeeAccountCaching())
	m.accounts[configAddr] = protocolConfigBytes(t, ProtocolConfig{
		Admin:     sol.NewWallet().PublicKey(),
		FeeWallet: feeWallet,
	})

	got, err := c.resolveFeeAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, feeWallet, got)
	hits := m.accountHits

	got, err = c.resolveFeeAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, feeWallet, got)
	assert.Equal(t, hits, m.accountHits, "second resolve must hit the cache")
}

func TestResolveFeeAccount_RefetchesByDefault(t *testing.T) {
	feeWallet := sol.NewWallet().PublicKey()
	configAddr, _, err := ConfigPDA(DefaultProgramID)
	require.NoError(t, err)

	m := &mockRPC{accounts: map[sol.PublicKey][]byte{}}
	c := newTestClient(t, m)
	m.accounts[configAddr] = protocolConfigBytes(t, ProtocolConfig{
		Admin:     sol.NewWallet().PublicKey(),
		FeeWallet: feeWallet,
	})

	_, err = c.resolveFeeAccount(context.Background())
	require.NoError(t, err)
	hits := m.accountHits

	_, err = c.resolveFeeAccount(context.Background())
	require.NoError(t, err)
	assert.Greater(t, m.accountHits, hits, "each resolve re-reads the config")
}

func TestWithFeeAccountOverride(t *testing.T) {
	override := sol.NewWallet().PublicKey()
	m := &mockRPC{}
	wallet := sol.NewWallet()
	c := New("", wallet.PrivateKey, withRPC(m), WithFeeAccount(override))

	got, err := c.resolveFeeAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, override, got)
	assert.Zero(t, m.accountHits)
}
