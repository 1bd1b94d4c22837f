package cli

import (
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/quorum/internal/keystore"
	"github.com/mrz1836/quorum/internal/output"
	"github.com/mrz1836/quorum/internal/secure"
	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/signer"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// keyForce allows replacing an existing keystore.
	keyForce bool
	// keyMnemonic reads a BIP-39 mnemonic instead of a hex key.
	keyMnemonic bool
	// keyIndex is the address index under m/44'/60'/0'/0.
	keyIndex uint32
	// keyYes skips the delete confirmation.
	keyYes bool
)

// keyCmd is the parent command for master key operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the master key",
	Long: `Create, import and inspect the master key. The key is sealed with a
passphrase (age scrypt) and stored at the keystore path from the config.

Set QUORUM_PASSPHRASE to unlock the keystore without a prompt.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a new master key",
	Long:  `Generate a random master key and seal it in the keystore.`,
	Example: `  quorum key new
  quorum key new --force`,
	Args: cobra.NoArgs,
	RunE: runKeyNew,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a master key",
	Long: `Import an existing key as the master key. The secret is read from the
terminal without echo, or from stdin when piped.`,
	Example: `  quorum key import
  quorum key import --mnemonic --index 2`,
	Args: cobra.NoArgs,
	RunE: runKeyImport,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the master key address",
	Long:  `Show the master address and keystore metadata. The passphrase is not needed.`,
	Args:  cobra.NoArgs,
	RunE:  runKeyShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the keystore",
	Args:  cobra.NoArgs,
	RunE:  runKeyDelete,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyNewCmd, keyImportCmd, keyShowCmd, keyDeleteCmd)

	keyNewCmd.Flags().BoolVar(&keyForce, "force", false, "replace an existing keystore")
	keyImportCmd.Flags().BoolVar(&keyForce, "force", false, "replace an existing keystore")
	keyImportCmd.Flags().BoolVar(&keyMnemonic, "mnemonic", false, "import from a BIP-39 mnemonic")
	keyImportCmd.Flags().Uint32Var(&keyIndex, "index", 0, "mnemonic address index")
	keyDeleteCmd.Flags().BoolVarP(&keyYes, "yes", "y", false, "skip the confirmation prompt")
}

// KeyInfo is the output of the key commands.
type KeyInfo struct {
	Address   string    `json:"address"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"path"`
}

// keystoreWorkFactor overrides the scrypt cost of new keystores; 0 keeps
// age's default. Lowered in tests.
//
//nolint:gochecknoglobals // Swappable for tests
var keystoreWorkFactor int

func keyStore() *keystore.Store {
	s := keystore.New(cfg.KeystorePath())
	s.WorkFactor = keystoreWorkFactor
	return s
}

func runKeyNew(_ *cobra.Command, _ []string) error {
	store := keyStore()
	if err := checkOverwrite(store); err != nil {
		return err
	}

	passphrase, err := newKeystorePassphrase()
	if err != nil {
		return err
	}
	defer secure.Zero(passphrase)

	if _, err := store.Generate(string(passphrase), keyForce); err != nil {
		return err
	}
	logger.Debug("generated master key at %s", store.Path())
	return emitKey(store, "master key created")
}

func runKeyImport(_ *cobra.Command, _ []string) error {
	store := keyStore()
	if err := checkOverwrite(store); err != nil {
		return err
	}

	prompt := "Private key (hex): "
	if keyMnemonic {
		prompt = "Mnemonic: "
	}
	secret, err := promptSecretFn(prompt)
	if err != nil {
		return err
	}

	var (
		local  *signer.Local
		source string
	)
	if keyMnemonic {
		local, err = signer.NewLocalFromMnemonic(secret, "", keyIndex)
		source = keystore.SourceMnemonic
	} else {
		local, err = signer.NewLocal(strings.TrimSpace(secret))
		source = keystore.SourceImported
	}
	if err != nil {
		return err
	}

	passphrase, err := newKeystorePassphrase()
	if err != nil {
		return err
	}
	defer secure.Zero(passphrase)

	if err := store.Save(local, source, string(passphrase), keyForce); err != nil {
		return err
	}
	logger.Debug("imported master key %s from %s", local.Address(), source)
	return emitKey(store, "master key imported")
}

func runKeyShow(_ *cobra.Command, _ []string) error {
	return emitKey(keyStore(), "")
}

func runKeyDelete(_ *cobra.Command, _ []string) error {
	store := keyStore()
	info, err := store.Info()
	if err != nil {
		return err
	}
	if !keyYes && !promptConfirmFn("Delete the master key "+info.Address.Hex()+"? The account cannot sign without it.") {
		return qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{"reason": "cancelled"})
	}
	if err := store.Delete(); err != nil {
		return err
	}
	return formatter.Success("deleted " + store.Path())
}

// checkOverwrite fails early, before any prompt, when a keystore exists and
// --force is not set.
func checkOverwrite(store *keystore.Store) error {
	exists, err := store.Exists()
	if err != nil {
		return err
	}
	if exists && !keyForce {
		return qerr.WithSuggestion(
			qerr.WithDetails(qerr.ErrKeystoreExists, map[string]string{"path": store.Path()}),
			"use --force to replace it; the old key is lost unless backed up",
		)
	}
	return nil
}

func emitKey(store *keystore.Store, notice string) error {
	info, err := store.Info()
	if err != nil {
		return err
	}
	if notice != "" {
		messenger.Successf("%s", notice)
	}

	result := KeyInfo{
		Address:   info.Address.Hex(),
		Source:    info.Source,
		CreatedAt: info.CreatedAt,
		Path:      store.Path(),
	}
	return formatter.Emit(result, func(w io.Writer) error {
		return output.Fields(w,
			"Address", result.Address,
			"Source", result.Source,
			"Created", result.CreatedAt.Format(time.RFC3339),
			"Keystore", result.Path)
	})
}
