// Package config handles SDK configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/mbd888/agentvault/protocol"
)

// Chain selectors.
const (
	ChainSolana = "solana"
	ChainBase   = "base"
)

// Defaults point at test networks; production deployments override them.
const (
	DefaultChain        = ChainSolana
	DefaultSolanaRPCURL = "https://api.devnet.solana.com"
	DefaultEVMRPCURL    = "https://sepolia.base.org"
	DefaultEVMChainID   = 84532 // Base Sepolia
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultConfirmSecs  = 60
)

// Config holds everything needed to construct a vault client.
type Config struct {
	Chain     string // "solana" or "base"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Solana backend
	SolanaRPCURL     string
	SolanaPrivateKey string // base58-encoded keypair
	SolanaProgramID  string // empty means the canonical program

	// Base (EVM) backend
	EVMRPCURL       string
	EVMPrivateKey   string // hex-encoded, with or without 0x prefix
	ContractAddress string
	EVMChainID      int64

	// Optional services
	IndexerURL      string // empty disables the indexer layer
	FeeAccount      string // overrides fee-wallet lookup from on-chain config
	CacheFeeAccount bool   // keep the looked-up fee wallet for the client lifetime
	OTLPEndpoint    string // empty disables tracing
	ConfirmTimeout  int    // seconds to wait for transaction confirmation
}

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Chain:            getEnv("CHAIN", DefaultChain),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		SolanaRPCURL:     getEnv("SOLANA_RPC_URL", DefaultSolanaRPCURL),
		SolanaPrivateKey: os.Getenv("SOLANA_PRIVATE_KEY"),
		SolanaProgramID:  os.Getenv("SOLANA_PROGRAM_ID"),
		EVMRPCURL:        getEnv("EVM_RPC_URL", DefaultEVMRPCURL),
		EVMPrivateKey:    os.Getenv("EVM_PRIVATE_KEY"),
		ContractAddress:  os.Getenv("ESCROW_CONTRACT"),
		EVMChainID:       getEnvInt64("EVM_CHAIN_ID", DefaultEVMChainID),
		IndexerURL:       os.Getenv("INDEXER_URL"),
		FeeAccount:       os.Getenv("FEE_ACCOUNT"),
		CacheFeeAccount:  getEnvBool("CACHE_FEE_ACCOUNT", false),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ConfirmTimeout:   int(getEnvInt64("CONFIRM_TIMEOUT_SECONDS", DefaultConfirmSecs)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected chain has its required settings.
func (c *Config) Validate() error {
	switch c.Chain {
	case ChainSolana:
		if c.SolanaPrivateKey == "" {
			return fmt.Errorf("%w: SOLANA_PRIVATE_KEY is required for chain %q", protocol.ErrConfig, c.Chain)
		}
		if c.SolanaRPCURL == "" {
			return fmt.Errorf("%w: SOLANA_RPC_URL is required for chain %q", protocol.ErrConfig, c.Chain)
		}
	case ChainBase:
		if c.EVMPrivateKey == "" {
			return fmt.Errorf("%w: EVM_PRIVATE_KEY is required for chain %q", protocol.ErrConfig, c.Chain)
		}
		if c.ContractAddress == "" {
			return fmt.Errorf("%w: ESCROW_CONTRACT is required for chain %q", protocol.ErrConfig, c.Chain)
		}
		if c.EVMRPCURL == "" {
			return fmt.Errorf("%w: EVM_RPC_URL is required for chain %q", protocol.ErrConfig, c.Chain)
		}
		if c.EVMChainID == 0 {
			return fmt.Errorf("%w: EVM_CHAIN_ID is required for chain %q", protocol.ErrConfig, c.Chain)
		}
	default:
		return fmt.Errorf("%w: unknown chain %q (want %q or %q)", protocol.ErrConfig, c.Chain, ChainSolana, ChainBase)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
