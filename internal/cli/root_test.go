package cli

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/quorum/internal/config"
	"github.com/mrz1836/quorum/internal/output"
	"github.com/mrz1836/quorum/internal/version"
	"github.com/mrz1836/quorum/pkg/chain"
	qerr "github.com/mrz1836/quorum/pkg/errors"
)

func TestChains(t *testing.T) {
	env := newCLIEnv(t)

	var entries []ChainEntry
	env.runJSON(t, &entries, "chains", "--chain", "polygon-mainnet")
	require.Len(t, entries, len(chain.All()))

	bySlug := make(map[string]ChainEntry, len(entries))
	for _, e := range entries {
		bySlug[e.Slug] = e
	}
	assert.True(t, bySlug["polygon-mainnet"].Active)
	assert.True(t, bySlug["polygon-mainnet"].Configured)
	assert.False(t, bySlug["eth-mainnet"].Active)
	assert.True(t, bySlug["eth-mainnet"].Configured)
	assert.False(t, bySlug["polygon-mumbai"].Configured)
	assert.True(t, bySlug["polygon-mumbai"].Testnet)
	assert.Equal(t, uint64(80001), bySlug["polygon-mumbai"].ID)
}

func TestChains_Text(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run(t, "chains", "-o", "text")
	require.NoError(t, err)

	var active string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, "*") {
			active = line
		}
	}
	assert.Contains(t, active, "eth-mainnet")
	assert.Contains(t, stdout, "arbitrum-goerli")
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)

	var info version.Info
	env.runJSON(t, &info, "version")
	assert.Equal(t, version.Current(), info)

	stdout, _, err := env.run(t, "version", "-o", "text")
	require.NoError(t, err)
	assert.Equal(t, "quorum "+version.Current().String(), strings.TrimSpace(stdout))
}

func TestInitGlobals_HomeFromEnvironment(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv(config.EnvHome, env.home)

	resetFlags()
	rootCmd.SetArgs([]string{"config", "path"})
	var stdout strings.Builder
	rootCmd.SetOut(&stdout)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, ExecuteContext(t.Context()))
	assert.Equal(t, config.Path(env.home), strings.TrimSpace(stdout.String()))
}

func TestInitGlobals_InvalidConfigFile(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(config.Path(env.home), []byte("chains: ["), 0o600))

	_, _, err := env.run(t, "chains")
	require.ErrorIs(t, err, qerr.ErrConfigInvalid)
}

func TestExecute_ErrorFormats(t *testing.T) {
	env := newCLIEnv(t)

	_, stderr, err := env.run(t, "key", "show", "-o", "json")
	require.Error(t, err)
	var wrapped output.ErrorOutput
	require.NoError(t, json.Unmarshal([]byte(stderr), &wrapped), stderr)
	detail := wrapped.Error
	assert.Equal(t, "KEYSTORE_NOT_FOUND", detail.Code)
	assert.Equal(t, qerr.ExitNotFound, detail.ExitCode)
	assert.NotEmpty(t, detail.Suggestion)

	_, stderr, err = env.run(t, "key", "show", "-o", "text")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(stderr, "Error:"), stderr)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, qerr.ExitSuccess, ExitCode(nil))
	assert.Equal(t, qerr.ExitTimeout, ExitCode(qerr.ErrTimeout))
	assert.Equal(t, qerr.ExitGeneral, ExitCode(assert.AnError))
}

func TestPlainMessages(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	assert.False(t, plainMessages(&buf, "always"))
	assert.True(t, plainMessages(&buf, "never"))
	assert.True(t, plainMessages(&buf, "auto"), "non-terminal writers get plain notices")
}

func TestNewEngine_RequiresInitCodeHash(t *testing.T) {
	t.Parallel()

	c := config.ForHome(t.TempDir())
	_, err := newEngine(c, config.NullLogger())
	require.ErrorIs(t, err, qerr.ErrConfiguration)

	c.Engine.InitCodeHash = "0x" + strings.Repeat("11", 32)
	c.Relayer.RatePerSecond, c.Relayer.Burst = 0, 0
	engine, err := newEngine(c, config.NullLogger())
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestCommandTree(t *testing.T) {
	prepareHelp()

	walkCommands(rootCmd, func(cmd *cobra.Command) {
		t.Run(cmd.CommandPath(), func(t *testing.T) {
			assert.NotEmpty(t, cmd.Short, "missing Short description")
			assert.NotContains(t, cmd.Long, "\nExample:", "examples belong in the Example field")
			if cmd.HasSubCommands() {
				assert.Contains(t, cmd.Long, "Subcommands:")
			}
		})
	})
}

func TestPrepareHelp_Once(t *testing.T) {
	prepareHelp()
	before := keyCmd.Long
	prepareHelp()
	assert.Equal(t, before, keyCmd.Long)
	assert.Equal(t, 1, strings.Count(keyCmd.Long, "Subcommands:"))
}

func TestCompletion(t *testing.T) {
	env := newCLIEnv(t)

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		stdout, _, err := env.run(t, "completion", shell)
		require.NoError(t, err, shell)
		assert.Contains(t, stdout, "quorum", shell)
	}

	_, _, err := env.run(t, "completion", "tcsh")
	require.Error(t, err)
}
