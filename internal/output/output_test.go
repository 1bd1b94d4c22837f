package output_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/quorum/internal/output"
	qerr "github.com/mrz1836/quorum/pkg/errors"
)

var errPlain = errors.New("something went wrong")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errPlain
}

func TestFormatError_Nil(t *testing.T) {
	t.Parallel()
	for _, f := range []output.Format{output.FormatJSON, output.FormatText} {
		var buf bytes.Buffer
		require.NoError(t, output.FormatError(&buf, nil, f))
		assert.Empty(t, buf.String())
	}
}

func TestFormatError_JSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want output.ErrorDetail
	}{
		{
			name: "plain error",
			err:  errPlain,
			want: output.ErrorDetail{Code: "GENERAL_ERROR", Message: "something went wrong", ExitCode: qerr.ExitGeneral},
		},
		{
			name: "quorum error with details",
			err: qerr.WithSuggestion(
				qerr.WithDetails(qerr.ErrChainNotConfigured, map[string]string{"chain_id": "bnb-testnet"}),
				"add the chain to config.yaml",
			),
			want: output.ErrorDetail{
				Code:       qerr.ErrChainNotConfigured.Code,
				Message:    qerr.ErrChainNotConfigured.Message,
				Details:    map[string]string{"chain_id": "bnb-testnet"},
				Suggestion: "add the chain to config.yaml",
				ExitCode:   qerr.ExitInput,
			},
		},
		{
			name: "engine failure keeps cause",
			err:  qerr.Engine("send transactions", errPlain),
			want: output.ErrorDetail{
				Code:     qerr.ErrEngine.Code,
				Message:  "send transactions: " + qerr.ErrEngine.Message,
				Details:  map[string]string{"operation": "send transactions"},
				Cause:    "something went wrong",
				ExitCode: qerr.ErrEngine.ExitCode,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, output.FormatError(&buf, tt.err, output.FormatJSON))

			var got output.ErrorOutput
			require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
			assert.Equal(t, tt.want, got.Error)
		})
	}
}

func TestFormatError_TextSortsDetails(t *testing.T) {
	t.Parallel()
	err := qerr.WithDetails(qerr.ErrConfigInvalid, map[string]string{
		"receipt":      "timeout must not be negative",
		"active_chain": "not configured",
		"chains":       "duplicate",
	})

	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, err, output.FormatText))

	text := buf.String()
	assert.Contains(t, text, "Error: "+qerr.ErrConfigInvalid.Message)
	a := bytes.Index(buf.Bytes(), []byte("active_chain:"))
	c := bytes.Index(buf.Bytes(), []byte("chains:"))
	r := bytes.Index(buf.Bytes(), []byte("receipt:"))
	assert.True(t, a < c && c < r, "details must be sorted: %s", text)
	assert.NotContains(t, text, "Suggestion:")
}

func TestFormatError_WriterError(t *testing.T) {
	t.Parallel()
	require.Error(t, output.FormatError(failingWriter{}, errPlain, output.FormatText))
	require.Error(t, output.FormatError(failingWriter{}, errPlain, output.FormatJSON))
}

func TestFormatSuccess(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, output.FormatSuccess(&buf, "key saved", output.FormatJSON))
	assert.JSONEq(t, `{"status":"success","message":"key saved"}`, buf.String())

	buf.Reset()
	require.NoError(t, output.FormatSuccess(&buf, "key saved", output.FormatText))
	assert.Equal(t, "key saved\n", buf.String())
}

func TestFormatter_Emit(t *testing.T) {
	t.Parallel()
	v := map[string]any{"nonce": 7}
	text := func(w io.Writer) error {
		_, err := io.WriteString(w, "nonce 7\n")
		return err
	}

	var buf bytes.Buffer
	require.NoError(t, output.NewFormatter(output.FormatJSON, &buf).Emit(v, text))
	assert.JSONEq(t, `{"nonce":7}`, buf.String())

	buf.Reset()
	require.NoError(t, output.NewFormatter(output.FormatText, &buf).Emit(v, text))
	assert.Equal(t, "nonce 7\n", buf.String())

	buf.Reset()
	require.NoError(t, output.NewFormatter(output.FormatText, &buf).Emit(v, nil))
	assert.JSONEq(t, `{"nonce":7}`, buf.String())
}

func TestFormatter_Accessors(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatText, &buf)
	assert.Equal(t, output.FormatText, f.Format())
	assert.Same(t, &buf, f.Writer())

	require.NoError(t, f.Success("chain added"))
	assert.Equal(t, "chain added\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Error(qerr.ErrTimeout))
	assert.Contains(t, buf.String(), "Error: ")

	buf.Reset()
	require.NoError(t, output.NewFormatter(output.FormatJSON, &buf).Success("chain added"))
	assert.JSONEq(t, `{"status":"success","message":"chain added"}`, buf.String())
}

func TestResolveFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		setting string
		want    output.Format
	}{
		{"json", output.FormatJSON},
		{" JSON ", output.FormatJSON},
		{"text", output.FormatText},
		{"auto", output.FormatJSON},
		{"yaml", output.FormatJSON},
		{"", output.FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.setting, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			assert.Equal(t, tt.want, output.ResolveFormat(&buf, tt.setting), "a buffer is not a terminal")
		})
	}
}

func TestTable(t *testing.T) {
	t.Parallel()
	tbl := output.NewTable("CHAIN", "ID", "SYMBOL")
	tbl.AddRow("eth-mainnet", "1", "ETH")
	tbl.AddRow("polygon-mainnet", "137")

	want := "" +
		"CHAIN            ID   SYMBOL\n" +
		"---------------  ---  ------\n" +
		"eth-mainnet      1    ETH\n" +
		"polygon-mainnet  137\n"
	var buf bytes.Buffer
	require.NoError(t, tbl.Render(&buf))
	assert.Equal(t, want, buf.String())

	buf.Reset()
	require.NoError(t, output.NewTable().Render(&buf))
	assert.Empty(t, buf.String())
}

func TestTable_AlignRight(t *testing.T) {
	t.Parallel()
	tbl := output.NewTable("#", "OK", "GAS").AlignRight(0, 2)
	tbl.AddRow("0", "true", "21000")
	tbl.AddRow("10", "false", "900")

	want := "" +
		" #  OK       GAS\n" +
		"--  -----  -----\n" +
		" 0  true   21000\n" +
		"10  false    900\n"
	var buf bytes.Buffer
	require.NoError(t, tbl.Render(&buf))
	assert.Equal(t, want, buf.String())
}

func TestTable_WriterError(t *testing.T) {
	t.Parallel()
	tbl := output.NewTable("FEE")
	tbl.AddRow("ETH")
	require.ErrorIs(t, tbl.Render(failingWriter{}), errPlain)
}

func TestFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, output.Fields(&buf, "Address", "0xabc", "Chain", "eth-mainnet", "dangling"))
	assert.Equal(t, "Address:  0xabc\nChain:    eth-mainnet\n", buf.String())
}

func TestMessenger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	m := output.NewMessenger(&buf, true)
	m.Infof("waiting for %s", "0x01")
	m.Warnf("no relayer")
	m.Successf("done")
	assert.Equal(t, "info: waiting for 0x01\nwarning: no relayer\ndone\n", buf.String())

	buf.Reset()
	output.NewMessenger(&buf, false).Successf("sent")
	assert.Equal(t, "✅ sent\n", buf.String())

	var nilMessenger *output.Messenger
	nilMessenger.Infof("ignored")
}
