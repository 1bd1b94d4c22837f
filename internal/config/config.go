// Package config provides configuration management for quorum.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/quorum/internal/fileutil"
	"github.com/mrz1836/quorum/pkg/chain"
	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/keyset"
)

// Config represents the application configuration.
type Config struct {
	Version     int              `yaml:"version"`
	Home        string           `yaml:"home"`
	AppID       string           `yaml:"app_id"`
	ServerURL   string           `yaml:"server_url"`
	ActiveChain string           `yaml:"active_chain"`
	Chains      []ChainConfig    `yaml:"chains"`
	Master      *RoleWeight      `yaml:"master,omitempty"`
	Guardians   []GuardianConfig `yaml:"guardians"`
	Keystore    string           `yaml:"keystore"`
	Engine      EngineConfig     `yaml:"engine"`
	Relayer     RelayerConfig    `yaml:"relayer"`
	Receipt     ReceiptConfig    `yaml:"receipt"`
	Security    SecurityConfig   `yaml:"security"`
	Output      OutputConfig     `yaml:"output"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// ChainConfig defines the endpoints for one chain. Chain accepts a registry
// slug ("polygon-mainnet") or a decimal chain id.
type ChainConfig struct {
	Chain   string `yaml:"chain"`
	RPC     string `yaml:"rpc"`
	Relayer string `yaml:"relayer,omitempty"`
}

// RoleWeight is a key's weight and threshold.
type RoleWeight struct {
	Weight    uint32 `yaml:"weight"`
	Threshold uint32 `yaml:"threshold"`
}

// GuardianConfig is a guardian key registered with the account.
type GuardianConfig struct {
	Address    string      `yaml:"address"`
	RoleWeight *RoleWeight `yaml:"role_weight,omitempty"`
}

// EngineConfig defines how account addresses are derived.
type EngineConfig struct {
	Factory      string `yaml:"factory"`
	InitCodeHash string `yaml:"init_code_hash"`
}

// RelayerConfig defines relayer client settings.
type RelayerConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	MaxAttempts   int     `yaml:"max_attempts"`
}

// ReceiptConfig defines receipt waiting settings.
type ReceiptConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	Timeout       time.Duration `yaml:"timeout"`
	Confirmations uint64        `yaml:"confirmations"`
}

// SecurityConfig defines security settings.
type SecurityConfig struct {
	MemoryLock bool `yaml:"memory_lock"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file. Missing keys keep their
// defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qerr.WithDetails(qerr.ErrConfigNotFound, map[string]string{"path": path})
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, qerr.WithDetails(qerr.ErrConfigInvalid, map[string]string{
			"path":   path,
			"reason": err.Error(),
		})
	}

	return cfg, nil
}

// Save writes configuration to the specified file atomically.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WritePrivate(path, data)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns the default quorum home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quorum"
	}
	return filepath.Join(home, ".quorum")
}

// ExpandPath resolves a leading "~/" against the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// KeystorePath returns the expanded keystore file path.
func (c *Config) KeystorePath() string {
	if c.Keystore == "" {
		return filepath.Join(ExpandPath(c.Home), "master.age")
	}
	return ExpandPath(c.Keystore)
}

// Validate checks the configuration for contradictions. Every problem found
// is reported in the error's details.
func (c *Config) Validate() error {
	problems := map[string]string{}

	opts, err := c.ChainOptions()
	if err != nil {
		problems["chains"] = err.Error()
	}
	if c.ActiveChain != "" {
		id, err := chain.ParseName(c.ActiveChain)
		switch {
		case err != nil:
			problems["active_chain"] = err.Error()
		case opts != nil && !opts.Has(id):
			problems["active_chain"] = fmt.Sprintf("%s has no entry under chains", id)
		}
	}
	for i, g := range c.Guardians {
		if !common.IsHexAddress(g.Address) {
			problems[fmt.Sprintf("guardians[%d]", i)] = "not a hex address"
		}
	}
	if c.Engine.Factory != "" && !common.IsHexAddress(c.Engine.Factory) {
		problems["engine.factory"] = "not a hex address"
	}
	if c.Engine.InitCodeHash != "" {
		if _, err := c.InitCodeHash(); err != nil {
			problems["engine.init_code_hash"] = err.Error()
		}
	}
	if c.Relayer.RatePerSecond < 0 || c.Relayer.Burst < 0 {
		problems["relayer"] = "rate_per_second and burst must not be negative"
	}
	if c.Receipt.Timeout < 0 || c.Receipt.PollInterval < 0 {
		problems["receipt"] = "durations must not be negative"
	}

	if len(problems) > 0 {
		return qerr.WithDetails(qerr.ErrConfigInvalid, problems)
	}
	return nil
}

// ChainOptions converts the chains section into validated chain options.
func (c *Config) ChainOptions() (*chain.Options, error) {
	opts, _ := chain.NewOptions()
	for _, cc := range c.Chains {
		id, err := chain.ParseName(cc.Chain)
		if err != nil {
			return nil, err
		}
		if err := opts.Add(chain.Option{ID: id, RPCURL: cc.RPC, RelayerURL: cc.Relayer}); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// ActiveChainID resolves the configured active chain. An empty setting falls
// back to the first configured chain.
func (c *Config) ActiveChainID() (chain.ID, error) {
	if c.ActiveChain != "" {
		return chain.ParseName(c.ActiveChain)
	}
	if len(c.Chains) == 0 {
		return 0, qerr.WithDetails(qerr.ErrConfiguration, map[string]string{"reason": "no chains configured"})
	}
	return chain.ParseName(c.Chains[0].Chain)
}

// MasterRoleWeight returns the configured master weight, or nil for the default.
func (c *Config) MasterRoleWeight() *keyset.RoleWeight {
	if c.Master == nil {
		return nil
	}
	return &keyset.RoleWeight{Weight: c.Master.Weight, Threshold: c.Master.Threshold}
}

// GuardianKeys converts the guardians section into keyset keys.
func (c *Config) GuardianKeys() []keyset.Key {
	keys := make([]keyset.Key, 0, len(c.Guardians))
	for _, g := range c.Guardians {
		rw := keyset.DefaultGuardianRoleWeight
		if g.RoleWeight != nil {
			rw = keyset.RoleWeight{Weight: g.RoleWeight.Weight, Threshold: g.RoleWeight.Threshold}
		}
		keys = append(keys, keyset.Secp256k1(g.Address, rw))
	}
	return keys
}

// FactoryAddress returns the configured account factory, zero when unset.
func (c *Config) FactoryAddress() common.Address {
	if c.Engine.Factory == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Engine.Factory)
}

// InitCodeHash decodes engine.init_code_hash.
func (c *Config) InitCodeHash() (common.Hash, error) {
	if c.Engine.InitCodeHash == "" {
		return common.Hash{}, qerr.WithSuggestion(
			qerr.WithDetails(qerr.ErrConfiguration, map[string]string{"reason": "engine.init_code_hash is not set"}),
			"set engine.init_code_hash in config.yaml to the account proxy's init code hash",
		)
	}
	raw, err := hexutil.Decode(c.Engine.InitCodeHash)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, qerr.WithDetails(qerr.ErrConfigInvalid, map[string]string{
			"engine.init_code_hash": "expected 32 bytes of 0x-prefixed hex",
		})
	}
	return common.BytesToHash(raw), nil
}

// GetHome returns the quorum home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}
