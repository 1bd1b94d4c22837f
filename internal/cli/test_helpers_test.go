package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/quorum/internal/config"
	"github.com/mrz1836/quorum/pkg/smartaccount"
	"github.com/mrz1836/quorum/pkg/smartaccount/smartaccounttest"
)

const testPassphrase = "correct horse battery staple"

var errUnexpectedPrompt = errors.New("unexpected prompt")

// cliEnv is an isolated quorum home with a stub engine behind every account.
type cliEnv struct {
	home   string
	engine *smartaccounttest.Engine
}

// newCLIEnv swaps the engine, the keystore cost and the prompts for the
// duration of the test. Tests using it must not run in parallel.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	env := &cliEnv{home: t.TempDir(), engine: smartaccounttest.NewEngine()}

	origEngine := newEngineFn
	origWork := keystoreWorkFactor
	origConfirm := promptConfirmFn
	origSecret := promptSecretFn
	origPW := promptPasswordFn
	origNewPW := promptNewPasswordFn
	t.Cleanup(func() {
		newEngineFn = origEngine
		keystoreWorkFactor = origWork
		promptConfirmFn = origConfirm
		promptSecretFn = origSecret
		promptPasswordFn = origPW
		promptNewPasswordFn = origNewPW
	})

	newEngineFn = func(*config.Config, *config.Logger) (smartaccount.Engine, error) {
		return env.engine, nil
	}
	keystoreWorkFactor = 10
	withConfirm(t, false)
	promptSecretFn = func(string) (string, error) {
		t.Error("unexpected secret prompt")
		return "", errUnexpectedPrompt
	}
	promptPasswordFn = func(string) ([]byte, error) {
		t.Error("unexpected passphrase prompt")
		return nil, errUnexpectedPrompt
	}
	promptNewPasswordFn = func() ([]byte, error) {
		t.Error("unexpected new passphrase prompt")
		return nil, errUnexpectedPrompt
	}
	t.Setenv(config.EnvPassphrase, testPassphrase)
	return env
}

// withConfirm answers every confirmation prompt with answer.
func withConfirm(t *testing.T, answer bool) {
	t.Helper()
	promptConfirmFn = func(string) bool { return answer }
}

// withSecret answers the secret prompt with secret.
func withSecret(t *testing.T, secret string) {
	t.Helper()
	promptSecretFn = func(string) (string, error) { return secret, nil }
}

// run executes the command line against the env's home and returns stdout
// and stderr.
func (e *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append(append([]string{}, args...), "--home", e.home))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// runJSON runs the command with JSON output and decodes stdout into v.
func (e *cliEnv) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	stdout, stderr, err := e.run(t, append(args, "-o", "json")...)
	require.NoError(t, err, "stderr: %s", stderr)
	require.NoError(t, json.Unmarshal([]byte(stdout), v), "stdout: %s", stdout)
}

// createKey runs key new and returns the master address.
func (e *cliEnv) createKey(t *testing.T) string {
	t.Helper()
	var info KeyInfo
	e.runJSON(t, &info, "key", "new")
	return info.Address
}

// resetFlags restores every flag to its default so commands can run more
// than once per process.
func resetFlags() {
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		reset := func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
		cmd.Flags().VisitAll(reset)
		cmd.PersistentFlags().VisitAll(reset)
	})
}
