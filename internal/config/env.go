package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mrz1836/quorum/pkg/chain"
)

// Environment variable names.
const (
	EnvHome           = "QUORUM_HOME"
	EnvAppID          = "QUORUM_APP_ID"
	EnvServerURL      = "QUORUM_SERVER_URL"
	EnvActiveChain    = "QUORUM_ACTIVE_CHAIN"
	EnvKeystore       = "QUORUM_KEYSTORE"
	EnvInitCodeHash   = "QUORUM_INIT_CODE_HASH"
	EnvReceiptTimeout = "QUORUM_RECEIPT_TIMEOUT"
	EnvOutputFormat   = "QUORUM_OUTPUT_FORMAT"
	EnvVerbose        = "QUORUM_VERBOSE"
	EnvLogLevel       = "QUORUM_LOG_LEVEL"
	EnvNoColor        = "NO_COLOR"

	// EnvPassphrase unlocks the keystore without a prompt. It is read by the
	// CLI at use and never stored in Config.
	EnvPassphrase = "QUORUM_PASSPHRASE"

	// EnvRPCPrefix and EnvRelayerPrefix are followed by the chain slug in
	// upper case with dashes as underscores, e.g. QUORUM_RPC_POLYGON_MAINNET.
	EnvRPCPrefix     = "QUORUM_RPC_"
	EnvRelayerPrefix = "QUORUM_RELAYER_"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvAppID); v != "" {
		cfg.AppID = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.ServerURL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvActiveChain); v != "" {
		cfg.ActiveChain = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvKeystore); v != "" {
		cfg.Keystore = v
	}

	if v := os.Getenv(EnvInitCodeHash); v != "" {
		cfg.Engine.InitCodeHash = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvReceiptTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Receipt.Timeout = d
		}
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}

	applyChainEnvironment(cfg)
}

// applyChainEnvironment overrides per-chain endpoints. A chain without a
// config entry gains one when its RPC variable is set.
func applyChainEnvironment(cfg *Config) {
	for _, info := range chain.All() {
		suffix := EnvSuffix(info.Slug)
		rpc := SanitizeURL(os.Getenv(EnvRPCPrefix + suffix))
		relayer := SanitizeURL(os.Getenv(EnvRelayerPrefix + suffix))
		if rpc == "" && relayer == "" {
			continue
		}

		idx := cfg.chainIndex(info.ID)
		if idx < 0 {
			if rpc == "" {
				continue
			}
			cfg.Chains = append(cfg.Chains, ChainConfig{Chain: info.Slug})
			idx = len(cfg.Chains) - 1
		}
		if rpc != "" {
			cfg.Chains[idx].RPC = rpc
		}
		if relayer != "" {
			cfg.Chains[idx].Relayer = relayer
		}
	}
}

func (c *Config) chainIndex(id chain.ID) int {
	for i, cc := range c.Chains {
		if got, err := chain.ParseName(cc.Chain); err == nil && got == id {
			return i
		}
	}
	return -1
}

// EnvSuffix converts a chain slug to its environment variable suffix.
func EnvSuffix(slug string) string {
	return strings.ToUpper(strings.ReplaceAll(slug, "-", "_"))
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string of whitespace and control characters left
// by copy-paste. Anything that does not parse as an http(s) or ws(s) URL
// becomes "".
func SanitizeURL(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return ""
	}

	u, err := url.Parse(cleaned)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return cleaned
	default:
		return ""
	}
}
