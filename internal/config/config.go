// Package config handles configuration loading and validation.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds submission engine configuration.
type Config struct {
	RPCURLs  []string // Endpoint pool; submissions and nonce reads rotate over these
	ChainID  int64    // 0 = discover via eth_chainId at startup
	KeysFile string   // JSON file with account private keys; empty = built-in test accounts

	ContractAddress  string // Target contract for contract_call payloads
	ContractABIPath  string // Path to the contract ABI JSON
	ContractMethod   string // Method invoked by contract_call payloads
	ContractGasLimit uint64

	GasTipCap int64 // EIP-1559 priority fee (tip) in wei
	GasFeeCap int64 // EIP-1559 max fee per gas in wei (0 = auto from chain)
	UseLegacy bool  // Type 0 transactions instead of EIP-1559

	Workers        int
	QueueCapacity  int
	MaxRetries     int           // Attempt budget per work item on nonce conflicts
	SubmitDelay    time.Duration // Spacing between submissions across all workers
	DequeueTimeout time.Duration
	ReconcileEvery int64         // Submissions between nonce reconciliation sweeps
	SettleDelay    time.Duration // Wait before reading chain nonces in a sweep

	// ConflictPatterns overrides the node error fragments treated as nonce
	// conflicts. Empty keeps the built-in set.
	ConflictPatterns []string

	ListenAddr         string
	DatabasePath       string
	CORSAllowedOrigins string // Comma-separated list of allowed origins, or "*" for all
}

// Defaults
const (
	DefaultRPCURL             = "http://localhost:8545"
	DefaultChainID            = 0 // discover from the node
	DefaultContractGasLimit   = 800000
	DefaultGasTipCap          = 1000000000 // 1 Gwei
	DefaultGasFeeCap          = 0          // auto-calculate from chain gas price
	DefaultWorkers            = 8
	DefaultQueueCapacity      = 1_000_000
	DefaultMaxRetries         = 3
	DefaultSubmitDelay        = 20 * time.Millisecond
	DefaultDequeueTimeout     = time.Second
	DefaultReconcileEvery     = 10_000
	DefaultSettleDelay        = 30 * time.Second
	DefaultListenAddr         = ":3001"
	DefaultDatabasePath       = "./data/transactioneer.db"
	DefaultCORSAllowedOrigins = "*"
)

// Load reads configuration from environment variables and command-line flags.
// Command-line flags take precedence over environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		RPCURLs:            []string{DefaultRPCURL},
		ChainID:            DefaultChainID,
		ContractGasLimit:   DefaultContractGasLimit,
		GasTipCap:          DefaultGasTipCap,
		GasFeeCap:          DefaultGasFeeCap,
		Workers:            DefaultWorkers,
		QueueCapacity:      DefaultQueueCapacity,
		MaxRetries:         DefaultMaxRetries,
		SubmitDelay:        DefaultSubmitDelay,
		DequeueTimeout:     DefaultDequeueTimeout,
		ReconcileEvery:     DefaultReconcileEvery,
		SettleDelay:        DefaultSettleDelay,
		ListenAddr:         DefaultListenAddr,
		DatabasePath:       DefaultDatabasePath,
		CORSAllowedOrigins: DefaultCORSAllowedOrigins,
	}

	// Environment variables first
	if v := os.Getenv("RPC_URLS"); v != "" {
		cfg.RPCURLs = splitList(v)
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			cfg.ChainID = id
		}
	}
	if v := os.Getenv("KEYS_FILE"); v != "" {
		cfg.KeysFile = v
	}
	if v := os.Getenv("CONTRACT_ADDRESS"); v != "" {
		cfg.ContractAddress = v
	}
	if v := os.Getenv("CONTRACT_ABI_PATH"); v != "" {
		cfg.ContractABIPath = v
	}
	if v := os.Getenv("CONTRACT_METHOD"); v != "" {
		cfg.ContractMethod = v
	}
	if v := os.Getenv("GAS_TIP_CAP"); v != "" {
		if tip, err := strconv.ParseInt(v, 10, 64); err == nil && tip > 0 {
			cfg.GasTipCap = tip
		}
	}
	if v := os.Getenv("GAS_FEE_CAP"); v != "" {
		if fee, err := strconv.ParseInt(v, 10, 64); err == nil && fee >= 0 {
			cfg.GasFeeCap = fee
		}
	}
	if v := os.Getenv("CONFLICT_PATTERNS"); v != "" {
		cfg.ConflictPatterns = splitList(v)
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = v
	}

	// Command-line flags
	var (
		rpcURLs        = flag.String("rpc", strings.Join(cfg.RPCURLs, ","), "Comma-separated RPC endpoint URLs")
		chainID        = flag.Int64("chainid", cfg.ChainID, "Chain ID (0 = discover from node)")
		keysFile       = flag.String("keys", cfg.KeysFile, "JSON file with account private keys")
		contractAddr   = flag.String("contract", cfg.ContractAddress, "Target contract address")
		abiPath        = flag.String("abi", cfg.ContractABIPath, "Path to contract ABI JSON")
		method         = flag.String("method", cfg.ContractMethod, "Contract method for call payloads")
		gasLimit       = flag.Uint64("gaslimit", cfg.ContractGasLimit, "Gas limit for contract calls")
		gasTipCap      = flag.Int64("gastipcap", cfg.GasTipCap, "EIP-1559 priority fee (tip) in wei")
		gasFeeCap      = flag.Int64("gasfeecap", cfg.GasFeeCap, "EIP-1559 max fee per gas in wei (0=auto)")
		useLegacy      = flag.Bool("legacy", cfg.UseLegacy, "Use legacy (type 0) transactions")
		workers        = flag.Int("workers", cfg.Workers, "Submission worker count")
		queueCap       = flag.Int("queue", cfg.QueueCapacity, "Work queue capacity")
		maxRetries     = flag.Int("retries", cfg.MaxRetries, "Attempt budget per item on nonce conflicts")
		submitDelay    = flag.Duration("delay", cfg.SubmitDelay, "Spacing between submissions")
		reconcileEvery = flag.Int64("reconcile-every", cfg.ReconcileEvery, "Submissions between nonce sweeps")
		settleDelay    = flag.Duration("settle", cfg.SettleDelay, "Settling wait before a nonce sweep reads the chain")
		listenAddr     = flag.String("listen", cfg.ListenAddr, "HTTP listen address")
	)

	flag.Parse()

	cfg.RPCURLs = splitList(*rpcURLs)
	cfg.ChainID = *chainID
	cfg.KeysFile = *keysFile
	cfg.ContractAddress = *contractAddr
	cfg.ContractABIPath = *abiPath
	cfg.ContractMethod = *method
	cfg.ContractGasLimit = *gasLimit
	cfg.GasTipCap = *gasTipCap
	cfg.GasFeeCap = *gasFeeCap
	cfg.UseLegacy = *useLegacy
	cfg.Workers = *workers
	cfg.QueueCapacity = *queueCap
	cfg.MaxRetries = *maxRetries
	cfg.SubmitDelay = *submitDelay
	cfg.ReconcileEvery = *reconcileEvery
	cfg.SettleDelay = *settleDelay
	cfg.ListenAddr = *listenAddr

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.RPCURLs) == 0 {
		return fmt.Errorf("at least one RPC URL is required")
	}
	for _, u := range c.RPCURLs {
		if u == "" {
			return fmt.Errorf("RPC URL cannot be empty")
		}
	}
	if c.ChainID < 0 {
		return fmt.Errorf("chain ID cannot be negative")
	}
	if c.GasTipCap <= 0 {
		return fmt.Errorf("gas tip cap must be positive")
	}
	// GasFeeCap can be 0 (auto-calculate from chain) or positive
	if c.GasFeeCap < 0 {
		return fmt.Errorf("gas fee cap cannot be negative")
	}
	if c.ContractGasLimit == 0 {
		return fmt.Errorf("contract gas limit must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("retries must be positive")
	}
	if c.SubmitDelay < 0 {
		return fmt.Errorf("submit delay cannot be negative")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative")
	}
	// A contract target is only required when call payloads are possible;
	// address, method, and ABI path must come together.
	if c.ContractAddress != "" || c.ContractMethod != "" || c.ContractABIPath != "" {
		if c.ContractAddress == "" || c.ContractMethod == "" || c.ContractABIPath == "" {
			return fmt.Errorf("contract address, method, and ABI path must be set together")
		}
	}
	return nil
}

// splitList splits a comma-separated value, trimming whitespace and dropping
// empty entries.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
