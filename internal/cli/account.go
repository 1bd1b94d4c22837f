package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/spf13/cobra"

	"github.com/mrz1836/quorum/internal/config"
	"github.com/mrz1836/quorum/internal/engine/evm"
	"github.com/mrz1836/quorum/internal/fileutil"
	"github.com/mrz1836/quorum/internal/keystore"
	"github.com/mrz1836/quorum/internal/metrics"
	"github.com/mrz1836/quorum/internal/output"
	"github.com/mrz1836/quorum/internal/relayer"
	"github.com/mrz1836/quorum/internal/secure"
	"github.com/mrz1836/quorum/internal/version"
	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/keyset"
	"github.com/mrz1836/quorum/pkg/signer"
	"github.com/mrz1836/quorum/pkg/smartaccount"
)

// readTimeout bounds commands that only read chain state.
const readTimeout = 30 * time.Second

// newEngineFn builds the account engine; replaced in tests.
//
//nolint:gochecknoglobals // Swappable for tests
var newEngineFn = newEngine

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	keysetFile    string
	signHex       bool
	keysetOut     string
	verifyAgainst string
)

// accountCmd is the parent command for account operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Inspect and sign with the smart account",
	Long: `Inspect the smart account controlled by the local master key and the
configured guardians, and sign messages with it.

The account address is derived from the keyset, so it is the same on every
chain and is known before the account is deployed.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show the account address",
	Long:  `Show the account address on the active chain. No network access is needed.`,
	Example: `  quorum account address
  quorum account address --chain polygon-mainnet -o json`,
	Args: cobra.NoArgs,
	RunE: runAccountAddress,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountDeployedCmd = &cobra.Command{
	Use:   "deployed",
	Short: "Report whether the account contract is deployed",
	Args:  cobra.NoArgs,
	RunE:  runAccountDeployed,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountNonceCmd = &cobra.Command{
	Use:   "nonce",
	Short: "Show the account's next batch nonce",
	Args:  cobra.NoArgs,
	RunE:  runAccountNonce,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountKeysetCmd = &cobra.Command{
	Use:   "keyset",
	Short: "Export the account keyset as JSON",
	Long: `Export the account's keyset. The file can be passed back with --keyset
to rebuild the same account on another machine.`,
	Example: `  quorum account keyset --out keyset.json`,
	Args:    cobra.NoArgs,
	RunE:    runAccountKeyset,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountSignCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign a message with the account",
	Long: `Sign a message under the personal-sign scheme. The message is taken as
UTF-8 text unless --hex is given.`,
	Example: `  quorum account sign "hello"
  quorum account sign --hex 0xdeadbeef`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountSign,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountSignTypedCmd = &cobra.Command{
	Use:   "sign-typed <file|->",
	Short: "Sign EIP-712 typed data",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountSignTyped,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountVerifyCmd = &cobra.Command{
	Use:   "verify <message> <signature>",
	Short: "Check that a signature was made by the master key",
	Long: `Recover the signer of a personal-sign signature and compare it with the
keystore's master address, or with --address when given.`,
	Args: cobra.ExactArgs(2),
	RunE: runAccountVerify,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountAddressCmd, accountDeployedCmd, accountNonceCmd, accountKeysetCmd,
		accountSignCmd, accountSignTypedCmd, accountVerifyCmd)

	accountCmd.PersistentFlags().StringVar(&keysetFile, "keyset", "", "build the account from an exported keyset file")
	accountSignCmd.Flags().BoolVar(&signHex, "hex", false, "message is 0x-prefixed hex")
	accountKeysetCmd.Flags().StringVar(&keysetOut, "out", "", "write the keyset to a file instead of stdout")
	accountVerifyCmd.Flags().StringVar(&verifyAgainst, "address", "", "expected signer address")
}

// newEngine builds the EVM engine from configuration.
func newEngine(c *config.Config, log *config.Logger) (smartaccount.Engine, error) {
	initCodeHash, err := c.InitCodeHash()
	if err != nil {
		return nil, err
	}

	limiter := relayer.DefaultRateLimiter()
	if c.Relayer.RatePerSecond > 0 && c.Relayer.Burst > 0 {
		limiter = relayer.NewRateLimiter(c.Relayer.RatePerSecond, c.Relayer.Burst)
	}
	retry := relayer.DefaultRetryConfig()
	if c.Relayer.MaxAttempts > 0 {
		retry.MaxAttempts = c.Relayer.MaxAttempts
	}

	return evm.New(evm.Options{
		Factory:      c.FactoryAddress(),
		InitCodeHash: initCodeHash,
		RateLimiter:  limiter,
		Retry:        &retry,
		UserAgent:    version.Current().UserAgent(),
		PollInterval: c.Receipt.PollInterval,
		Logger:       log,
		Metrics:      metrics.Global,
	})
}

// openAccount builds the account described by the configuration. With
// withSigner the keystore is unlocked and its key becomes the master signer;
// without it only the keystore's public address is used.
func openAccount(ctx context.Context, withSigner bool) (*smartaccount.Account, error) {
	// Resolved first so a mistyped --chain reports its suggestion.
	active, err := cfg.ActiveChainID()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chains, err := cfg.ChainOptions()
	if err != nil {
		return nil, err
	}
	engine, err := newEngineFn(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := smartaccount.Options{
		MasterKeyRoleWeight: cfg.MasterRoleWeight(),
		AppID:               cfg.AppID,
		ServerURL:           cfg.ServerURL,
		ChainOptions:        chains.List(),
		Engine:              engine,
		Logger:              logger,
		Recorder:            metrics.Global,
	}

	store := keyStore()
	if withSigner {
		master, err := unlockKeystore(store)
		if err != nil {
			return nil, err
		}
		opts.MasterKeySigner = master
	}

	if keysetFile != "" {
		data, err := readInput(keysetFile)
		if err != nil {
			return nil, err
		}
		return smartaccount.Init(ctx, opts, smartaccount.InitByKeysetJSON{ChainID: active, KeysetJSON: string(data)})
	}

	keys := cfg.GuardianKeys()
	if !withSigner {
		info, err := store.Info()
		if err != nil {
			return nil, err
		}
		rw := keyset.DefaultMasterRoleWeight
		if custom := cfg.MasterRoleWeight(); custom != nil {
			rw = *custom
		}
		keys = append([]keyset.Key{keyset.Secp256k1(info.Address.Hex(), rw)}, keys...)
	}
	return smartaccount.Init(ctx, opts, smartaccount.InitByKeys{ChainID: active, Keys: keys})
}

// unlockKeystore prompts for the passphrase and loads the master key.
func unlockKeystore(store *keystore.Store) (*signer.Local, error) {
	if _, err := store.Info(); err != nil {
		return nil, err
	}
	passphrase, err := keystorePassphrase()
	if err != nil {
		return nil, err
	}
	defer secure.Zero(passphrase)

	return store.Load(string(passphrase))
}

// withAccount opens the account, runs fn and closes the account. timeout
// bounds the whole command, including opening the account.
func withAccount(cmd *cobra.Command, withSigner bool, timeout time.Duration, fn func(context.Context, *smartaccount.Account) error) error {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	acct, err := openAccount(ctx, withSigner)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := acct.Close(); cerr != nil {
			logger.Error("closing account: %v", cerr)
		}
	}()
	return fn(ctx, acct)
}

// AccountInfo is the output of account address.
type AccountInfo struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
	ChainID uint64 `json:"chain_id"`
}

func runAccountAddress(cmd *cobra.Command, _ []string) error {
	return withAccount(cmd, false, readTimeout, func(_ context.Context, acct *smartaccount.Account) error {
		addr, err := acct.Address()
		if err != nil {
			return err
		}
		id, err := acct.ChainID()
		if err != nil {
			return err
		}
		info := AccountInfo{Address: addr, Chain: id.String(), ChainID: id.Uint64()}
		return formatter.Emit(info, func(w io.Writer) error {
			return output.Fields(w, "Address", info.Address, "Chain", info.Chain)
		})
	})
}

func runAccountDeployed(cmd *cobra.Command, _ []string) error {
	return withAccount(cmd, false, readTimeout, func(ctx context.Context, acct *smartaccount.Account) error {
		deployed, err := acct.IsDeployed(ctx)
		if err != nil {
			return err
		}
		id, err := acct.ChainID()
		if err != nil {
			return err
		}
		result := map[string]any{"chain": id.String(), "deployed": deployed}
		return formatter.Emit(result, func(w io.Writer) error {
			if deployed {
				out(w, "deployed on %s\n", id)
			} else {
				out(w, "not deployed on %s (the first relayed batch deploys it)\n", id)
			}
			return nil
		})
	})
}

func runAccountNonce(cmd *cobra.Command, _ []string) error {
	return withAccount(cmd, false, readTimeout, func(ctx context.Context, acct *smartaccount.Account) error {
		nonce, err := acct.Nonce(ctx)
		if err != nil {
			return err
		}
		return formatter.Emit(map[string]uint64{"nonce": nonce}, func(w io.Writer) error {
			out(w, "%d\n", nonce)
			return nil
		})
	})
}

func runAccountKeyset(cmd *cobra.Command, _ []string) error {
	return withAccount(cmd, false, readTimeout, func(_ context.Context, acct *smartaccount.Account) error {
		data, err := acct.KeysetJSON()
		if err != nil {
			return err
		}
		if keysetOut != "" {
			if err := fileutil.WritePrivate(keysetOut, []byte(data+"\n")); err != nil {
				return qerr.Wrap(qerr.ErrGeneral, "writing keyset: %v", err)
			}
			messenger.Successf("keyset written to %s", keysetOut)
			return nil
		}
		outln(formatter.Writer(), data)
		return nil
	})
}

// SignatureResult is the output of the sign commands.
type SignatureResult struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

func runAccountSign(cmd *cobra.Command, args []string) error {
	msg := []byte(args[0])
	if signHex {
		decoded, err := hexutil.Decode(args[0])
		if err != nil {
			return qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{"message": "not 0x-prefixed hex"})
		}
		msg = decoded
	}

	return withAccount(cmd, true, readTimeout, func(ctx context.Context, acct *smartaccount.Account) error {
		sig, err := acct.SignMessage(ctx, msg)
		if err != nil {
			return err
		}
		return emitSignature(acct, *sig)
	})
}

func runAccountSignTyped(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args[0])
	if err != nil {
		return err
	}
	var data apitypes.TypedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{
			"typed_data": args[0],
			"reason":     err.Error(),
		})
	}

	return withAccount(cmd, true, readTimeout, func(ctx context.Context, acct *smartaccount.Account) error {
		sig, err := acct.SignTypedData(ctx, &data)
		if err != nil {
			return err
		}
		return emitSignature(acct, sig)
	})
}

func emitSignature(acct *smartaccount.Account, sig string) error {
	addr, err := acct.Address()
	if err != nil {
		return err
	}
	result := SignatureResult{Signer: addr, Signature: sig}
	return formatter.Emit(result, func(w io.Writer) error {
		outln(w, sig)
		return nil
	})
}

// VerifyResult is the output of account verify.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Recovered string `json:"recovered"`
	Expected  string `json:"expected"`
}

func runAccountVerify(_ *cobra.Command, args []string) error {
	expected := verifyAgainst
	if expected == "" {
		info, err := keyStore().Info()
		if err != nil {
			return err
		}
		expected = info.Address.Hex()
	}
	if !common.IsHexAddress(expected) {
		return qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{"address": expected})
	}

	recovered, err := signer.Recover([]byte(args[0]), args[1])
	if err != nil {
		return err
	}

	result := VerifyResult{
		Valid:     recovered == common.HexToAddress(expected),
		Recovered: recovered.Hex(),
		Expected:  common.HexToAddress(expected).Hex(),
	}
	if err := formatter.Emit(result, func(w io.Writer) error {
		if result.Valid {
			outln(w, "valid: signed by", result.Recovered)
		} else {
			out(w, "invalid: signed by %s, expected %s\n", result.Recovered, result.Expected)
		}
		return nil
	}); err != nil {
		return err
	}
	if !result.Valid {
		return qerr.WithDetails(qerr.ErrInvalidSignature, map[string]string{"recovered": result.Recovered})
	}
	return nil
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // G304: path is a user-supplied input file
	}
	if err != nil {
		return nil, qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{
			"file":   path,
			"reason": err.Error(),
		})
	}
	return data, nil
}
