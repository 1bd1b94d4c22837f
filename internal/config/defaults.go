package config

import (
	"path/filepath"
	"time"
)

// Public, no-API-key RPC endpoints used when no config file exists.
const (
	DefaultEthereumRPC = "https://ethereum-rpc.publicnode.com"
	DefaultPolygonRPC  = "https://polygon-bor-rpc.publicnode.com"
	DefaultBNBRPC      = "https://bsc-rpc.publicnode.com"
	DefaultArbitrumRPC = "https://arbitrum-one-rpc.publicnode.com"
)

// Receipt waiting defaults.
const (
	DefaultPollInterval  = 2 * time.Second
	DefaultReceiptWait   = 2 * time.Minute
	DefaultConfirmations = 1
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version:     1,
		Home:        "~/.quorum",
		AppID:       "quorum-cli",
		ActiveChain: "eth-mainnet",
		Chains: []ChainConfig{
			{Chain: "eth-mainnet", RPC: DefaultEthereumRPC},
			{Chain: "polygon-mainnet", RPC: DefaultPolygonRPC},
			{Chain: "bnb-mainnet", RPC: DefaultBNBRPC},
			{Chain: "arbitrum-one", RPC: DefaultArbitrumRPC},
		},
		Guardians: []GuardianConfig{},
		Keystore:  "~/.quorum/master.age",
		Relayer: RelayerConfig{
			RatePerSecond: 5,
			Burst:         10,
			MaxAttempts:   3,
		},
		Receipt: ReceiptConfig{
			PollInterval:  DefaultPollInterval,
			Timeout:       DefaultReceiptWait,
			Confirmations: DefaultConfirmations,
		},
		Security: SecurityConfig{
			MemoryLock: true,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.quorum/quorum.log",
		},
	}
}

// ForHome returns the defaults with the keystore and log file placed under home.
func ForHome(home string) *Config {
	cfg := Defaults()
	cfg.Home = home
	cfg.Keystore = filepath.Join(home, "master.age")
	cfg.Logging.File = filepath.Join(home, "quorum.log")
	return cfg
}
