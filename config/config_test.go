package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/agentvault/protocol"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_SolanaDefaults(t *testing.T) {
	setEnv(t, "CHAIN", "")
	setEnv(t, "SOLANA_PRIVATE_KEY", "4Z7cXSyeFi8wpsqRcAqkWqSwheEvmjauEncnwTq1cLzi")
	setEnv(t, "SOLANA_RPC_URL", "")
	setEnv(t, "INDEXER_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ChainSolana, cfg.Chain)
	assert.Equal(t, DefaultSolanaRPCURL, cfg.SolanaRPCURL)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Empty(t, cfg.IndexerURL)
	assert.False(t, cfg.CacheFeeAccount)
	assert.Equal(t, DefaultConfirmSecs, cfg.ConfirmTimeout)
}

func TestLoad_BaseChain(t *testing.T) {
	setEnv(t, "CHAIN", "base")
	setEnv(t, "EVM_PRIVATE_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	setEnv(t, "ESCROW_CONTRACT", "0x1234567890123456789012345678901234567890")
	setEnv(t, "INDEXER_URL", "http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ChainBase, cfg.Chain)
	assert.Equal(t, DefaultEVMRPCURL, cfg.EVMRPCURL)
	assert.Equal(t, int64(DefaultEVMChainID), cfg.EVMChainID)
	assert.Equal(t, "http://localhost:3000", cfg.IndexerURL)
}

func TestConfig_Validate(t *testing.T) {
	solanaOK := Config{
		Chain:            ChainSolana,
		SolanaRPCURL:     DefaultSolanaRPCURL,
		SolanaPrivateKey: "4Z7cXSyeFi8wpsqRcAqkWqSwheEvmjauEncnwTq1cLzi",
	}
	baseOK := Config{
		Chain:           ChainBase,
		EVMRPCURL:       DefaultEVMRPCURL,
		EVMPrivateKey:   "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		ContractAddress: "0x1234567890123456789012345678901234567890",
		EVMChainID:      DefaultEVMChainID,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		base    Config
		wantErr string
	}{
		{"valid solana", func(c *Config) {}, solanaOK, ""},
		{"valid base", func(c *Config) {}, baseOK, ""},
		{"unknown chain", func(c *Config) { c.Chain = "dogecoin" }, solanaOK, "unknown chain"},
		{"solana missing key", func(c *Config) { c.SolanaPrivateKey = "" }, solanaOK, "SOLANA_PRIVATE_KEY"},
		{"solana missing rpc", func(c *Config) { c.SolanaRPCURL = "" }, solanaOK, "SOLANA_RPC_URL"},
		{"base missing key", func(c *Config) { c.EVMPrivateKey = "" }, baseOK, "EVM_PRIVATE_KEY"},
		{"base missing contract", func(c *Config) { c.ContractAddress = "" }, baseOK, "ESCROW_CONTRACT"},
		{"base missing chain id", func(c *Config) { c.EVMChainID = 0 }, baseOK, "EVM_CHAIN_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, protocol.ErrConfig)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvBool(t *testing.T) {
	setEnv(t, "TEST_BOOL", "true")
	setEnv(t, "TEST_BOOL_INVALID", "not_a_bool")

	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.False(t, getEnvBool("NONEXISTENT_VAR", false))
	assert.False(t, getEnvBool("TEST_BOOL_INVALID", false)) // Falls back on parse error
}
