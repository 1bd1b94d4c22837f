package cli

import (
	"errors"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/quorum/internal/config"
	"github.com/mrz1836/quorum/pkg/chain"
	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and modify quorum configuration settings.

Values are resolved from config.yaml, then QUORUM_* environment variables,
then command-line flags. The set and add-chain commands edit the file only.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at <home>/config.yaml.

An existing file is kept unless --force is given.`,
	Example: `  quorum config init
  quorum config init --home /tmp/quorum --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Display the configuration after environment and flag overrides.`,
	Example: `  quorum config show
  quorum config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		outln(cmd.OutOrStdout(), config.Path(cfg.Home))
		return nil
	},
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		return formatter.Success("configuration is valid")
	},
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get one configuration value by its dotted key.

Keys: ` + strings.Join(configKeys(), ", "),
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set one configuration value by its dotted key and save config.yaml.

Keys: ` + strings.Join(configKeys(), ", "),
	Example: `  quorum config set active_chain polygon-mainnet
  quorum config set engine.init_code_hash 0x...`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configAddChainCmd = &cobra.Command{
	Use:     "add-chain <chain> <rpc-url> [relayer-url]",
	Short:   "Configure endpoints for a chain",
	Long:    `Add or replace the RPC and relayer endpoints of a chain in config.yaml.`,
	Example: `  quorum config add-chain polygon-mumbai https://rpc-mumbai.example https://relay.example`,
	Args:    cobra.RangeArgs(2, 3),
	RunE:    runConfigAddChain,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd, configValidateCmd,
		configGetCmd, configSetCmd, configAddChainCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath := config.Path(cfg.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return qerr.WithSuggestion(
			qerr.WithDetails(qerr.ErrGeneral, map[string]string{"path": configPath}),
			"configuration already exists; use --force to overwrite",
		)
	}

	if err := config.Save(config.ForHome(cfg.Home), configPath); err != nil {
		return qerr.Wrap(err, "writing config file")
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - chains: RPC and relayer endpoints per chain")
	outln(w, "  - engine.factory / engine.init_code_hash: account factory deployment")
	outln(w, "  - guardians: guardian keys added to every keyset")
	outln(w, "  - active_chain: default chain for account and tx commands")
	return nil
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	// Round-trip through a generic map so JSON keys match the YAML ones.
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return formatter.Emit(doc, func(w io.Writer) error {
		_, err := w.Write(raw)
		return err
	})
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	field, ok := configFields()[args[0]]
	if !ok {
		return unknownKey(args[0])
	}
	outln(cmd.OutOrStdout(), field.get(cfg))
	return nil
}

func runConfigSet(_ *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	field, ok := configFields()[key]
	if !ok {
		return unknownKey(key)
	}

	fileCfg, path, err := loadFileConfig()
	if err != nil {
		return err
	}
	if err := field.set(fileCfg, value); err != nil {
		return err
	}
	if err := fileCfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(fileCfg, path); err != nil {
		return qerr.Wrap(err, "saving config")
	}
	logger.Debug("config %s set in %s", key, path)
	return formatter.Success(key + " = " + value)
}

func runConfigAddChain(_ *cobra.Command, args []string) error {
	id, err := chain.ParseName(args[0])
	if err != nil {
		return err
	}
	entry := config.ChainConfig{Chain: id.String(), RPC: config.SanitizeURL(args[1])}
	if len(args) == 3 {
		entry.Relayer = config.SanitizeURL(args[2])
	}
	if err := (chain.Option{ID: id, RPCURL: entry.RPC, RelayerURL: entry.Relayer}).Validate(); err != nil {
		return err
	}

	fileCfg, path, err := loadFileConfig()
	if err != nil {
		return err
	}
	replaced := false
	for i, cc := range fileCfg.Chains {
		if existing, err := chain.ParseName(cc.Chain); err == nil && existing == id {
			fileCfg.Chains[i] = entry
			replaced = true
		}
	}
	if !replaced {
		fileCfg.Chains = append(fileCfg.Chains, entry)
	}
	if err := config.Save(fileCfg, path); err != nil {
		return qerr.Wrap(err, "saving config")
	}

	verb := "added"
	if replaced {
		verb = "updated"
	}
	return formatter.Success(verb + " chain " + id.String())
}

// loadFileConfig reads config.yaml without environment or flag overrides, so
// that saving it does not persist them.
func loadFileConfig() (*config.Config, string, error) {
	path := config.Path(cfg.Home)
	fileCfg, err := config.Load(path)
	if errors.Is(err, qerr.ErrConfigNotFound) {
		return config.ForHome(cfg.Home), path, nil
	}
	return fileCfg, path, err
}

func unknownKey(key string) error {
	e := qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{"key": key})
	if s := suggestKey(key); s != "" {
		return qerr.WithSuggestion(e, "did you mean "+s+"?")
	}
	return qerr.WithSuggestion(e, "valid keys: "+strings.Join(configKeys(), ", "))
}

func suggestKey(key string) string {
	for _, k := range configKeys() {
		if strings.HasSuffix(k, "."+key) {
			return k
		}
	}
	return ""
}

type configField struct {
	get func(*config.Config) string
	set func(*config.Config, string) error
}

func configKeys() []string {
	fields := configFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func configFields() map[string]configField {
	return map[string]configField{
		"active_chain": {
			get: func(c *config.Config) string { return c.ActiveChain },
			set: func(c *config.Config, v string) error {
				if _, err := chain.ParseName(v); err != nil {
					return err
				}
				c.ActiveChain = v
				return nil
			},
		},
		"keystore": {
			get: func(c *config.Config) string { return c.KeystorePath() },
			set: func(c *config.Config, v string) error { c.Keystore = v; return nil },
		},
		"engine.factory": {
			get: func(c *config.Config) string { return c.Engine.Factory },
			set: func(c *config.Config, v string) error { c.Engine.Factory = v; return nil },
		},
		"engine.init_code_hash": {
			get: func(c *config.Config) string { return c.Engine.InitCodeHash },
			set: func(c *config.Config, v string) error { c.Engine.InitCodeHash = v; return nil },
		},
		"receipt.confirmations": {
			get: func(c *config.Config) string { return strconv.FormatUint(c.Receipt.Confirmations, 10) },
			set: func(c *config.Config, v string) error {
				n, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					return invalidValue(v, "a non-negative integer")
				}
				c.Receipt.Confirmations = n
				return nil
			},
		},
		"output.default_format": {
			get: func(c *config.Config) string { return c.Output.DefaultFormat },
			set: oneOf(func(c *config.Config, v string) { c.Output.DefaultFormat = v }, "text", "json", "auto"),
		},
		"output.color": {
			get: func(c *config.Config) string { return c.Output.Color },
			set: oneOf(func(c *config.Config, v string) { c.Output.Color = v }, "auto", "always", "never"),
		},
		"logging.level": {
			get: func(c *config.Config) string { return c.Logging.Level },
			set: oneOf(func(c *config.Config, v string) { c.Logging.Level = v }, "off", "error", "debug"),
		},
		"logging.file": {
			get: func(c *config.Config) string { return c.Logging.File },
			set: func(c *config.Config, v string) error { c.Logging.File = v; return nil },
		},
		"security.memory_lock": {
			get: func(c *config.Config) string { return strconv.FormatBool(c.Security.MemoryLock) },
			set: func(c *config.Config, v string) error {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return invalidValue(v, "true or false")
				}
				c.Security.MemoryLock = b
				return nil
			},
		},
	}
}

func oneOf(apply func(*config.Config, string), valid ...string) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		for _, ok := range valid {
			if v == ok {
				apply(c, v)
				return nil
			}
		}
		return invalidValue(v, strings.Join(valid, ", "))
	}
}

func invalidValue(v, valid string) error {
	return qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{"value": v, "valid": valid})
}
