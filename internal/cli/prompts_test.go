package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/quorum/internal/config"
	qerr "github.com/mrz1836/quorum/pkg/errors"
)

func TestCheckPassphrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "empty", input: "", wantErr: true},
		{name: "one short", input: "1234567", wantErr: true},
		{name: "minimum", input: "12345678"},
		{name: "long", input: testPassphrase},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in := []byte(tc.input)

			got, err := checkPassphrase(in)
			if tc.wantErr {
				require.ErrorIs(t, err, qerr.ErrInvalidInput)
				assert.Nil(t, got)
				assert.Equal(t, make([]byte, len(tc.input)), in, "rejected input is zeroed")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.input, string(got))
		})
	}
}

func TestKeystorePassphrase(t *testing.T) {
	origPW := promptPasswordFn
	origNewPW := promptNewPasswordFn
	t.Cleanup(func() {
		promptPasswordFn = origPW
		promptNewPasswordFn = origNewPW
	})

	var prompts int
	promptPasswordFn = func(string) ([]byte, error) {
		prompts++
		return []byte("from prompt"), nil
	}
	promptNewPasswordFn = func() ([]byte, error) {
		prompts++
		return []byte("new from prompt"), nil
	}

	t.Setenv(config.EnvPassphrase, "from environment")
	got, err := keystorePassphrase()
	require.NoError(t, err)
	assert.Equal(t, "from environment", string(got))
	got, err = newKeystorePassphrase()
	require.NoError(t, err)
	assert.Equal(t, "from environment", string(got))
	assert.Zero(t, prompts)

	t.Setenv(config.EnvPassphrase, "")
	got, err = keystorePassphrase()
	require.NoError(t, err)
	assert.Equal(t, "from prompt", string(got))
	got, err = newKeystorePassphrase()
	require.NoError(t, err)
	assert.Equal(t, "new from prompt", string(got))
	assert.Equal(t, 2, prompts)
}

func TestOut(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	out(&buf, "%s=%d", "a", 1)
	outln(&buf, " b")
	assert.Equal(t, "a=1 b\n", buf.String())
}
