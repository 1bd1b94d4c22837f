// Package cli implements the quorum command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrz1836/quorum/internal/config"
	"github.com/mrz1836/quorum/internal/output"
	"github.com/mrz1836/quorum/internal/secure"
	qerr "github.com/mrz1836/quorum/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	chainFlag    string

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	messenger *output.Messenger
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "A multi-chain weighted-key smart account CLI",
	Long: `Quorum drives a smart-contract account controlled by a weighted keyset:
one master key plus any number of guardian keys, each carrying a weight and
a threshold.

The account has the same counterfactual address on every configured chain.
Batches are signed by the master key held in the local keystore and submitted
through a relayer, which pays gas and deploys the account on first use.`,
	Example: `  quorum key new
  quorum account address
  quorum tx send --to 0x... --value 0.01 --chain polygon-mainnet --wait`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command under ctx and prints any error in the
// selected output format.
func ExecuteContext(ctx context.Context) error {
	prepareHelp()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(rootCmd.ErrOrStderr(), err, format)
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return qerr.ExitCode(err)
}

// initGlobals initializes global configuration, logger, and formatter.
func initGlobals(cmd *cobra.Command) error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}
	home = config.ExpandPath(home)

	var err error
	cfg, err = config.Load(config.Path(home))
	switch {
	case errors.Is(err, qerr.ErrConfigNotFound):
		cfg = config.ForHome(home)
	case err != nil:
		return err
	}

	config.ApplyEnvironment(cfg)

	// Flags win over the file and the environment
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if chainFlag != "" {
		cfg.ActiveChain = chainFlag
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		cfg.Output.DefaultFormat = outputFormat
	}

	secure.SetMemoryLock(cfg.Security.MemoryLock)

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.Logging.File)
	if err != nil {
		logger = config.NullLogger()
	}

	formatter = output.NewFormatter(output.ResolveFormat(cmd.OutOrStdout(), cfg.Output.DefaultFormat), cmd.OutOrStdout())
	messenger = output.NewMessenger(cmd.ErrOrStderr(), plainMessages(cmd.ErrOrStderr(), cfg.Output.Color))

	logger.Debug("quorum %s: home=%s chain=%s", cmd.CommandPath(), cfg.Home, cfg.ActiveChain)
	return nil
}

// plainMessages reports whether notices should drop emoji prefixes.
func plainMessages(w io.Writer, color string) bool {
	switch color {
	case "always":
		return false
	case "never":
		return true
	}
	f, ok := w.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd() fits in int on supported platforms
}

// cleanup releases resources.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "quorum data directory (default: ~/.quorum)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&chainFlag, "chain", "", "active chain slug or numeric ID (default: config active_chain)")
}
