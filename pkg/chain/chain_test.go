package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

func TestLookup_KnownChains(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  uint64
		want ID
		slug string
	}{
		{1, EthereumMainnet, "eth-mainnet"},
		{5, EthereumGoerli, "eth-goerli"},
		{56, BNBMainnet, "bnb-mainnet"},
		{97, BNBTestnet, "bnb-testnet"},
		{137, PolygonMainnet, "polygon-mainnet"},
		{80001, PolygonMumbai, "polygon-mumbai"},
		{42161, ArbitrumOne, "arbitrum-one"},
		{421613, ArbitrumGoerli, "arbitrum-goerli"},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			t.Parallel()
			id, err := Lookup(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
			assert.Equal(t, tt.slug, id.String())
			assert.Equal(t, tt.raw, id.Uint64())
		})
	}
}

func TestLookup_UnknownNeverDefaults(t *testing.T) {
	t.Parallel()
	for _, raw := range []uint64{0, 2, 10, 999999, 1 << 40} {
		id, err := Lookup(raw)
		require.ErrorIs(t, err, qerr.ErrUnknownChain)
		assert.Equal(t, ID(0), id)
		assert.False(t, id.IsValid())
	}
}

func TestID_StringOutsideTable(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "999999", ID(999999).String())
}

func TestAll_ReturnsCopy(t *testing.T) {
	t.Parallel()
	all := All()
	require.Len(t, all, 8)
	all[0].Slug = "mutated"
	assert.Equal(t, "eth-mainnet", EthereumMainnet.String())
}

func TestParseName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{"slug", "polygon-mumbai", PolygonMumbai, false},
		{"slug uppercase", "ARBITRUM-ONE", ArbitrumOne, false},
		{"numeric", "137", PolygonMainnet, false},
		{"numeric with spaces", " 56 ", BNBMainnet, false},
		{"unknown numeric", "999999", 0, true},
		{"empty", "", 0, true},
		{"garbage", "solana", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseName(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, qerr.ErrUnknownChain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseName_SuggestsOnTypo(t *testing.T) {
	t.Parallel()
	_, err := ParseName("polygon-mumbia")
	require.ErrorIs(t, err, qerr.ErrUnknownChain)

	var qe *qerr.QuorumError
	require.ErrorAs(t, err, &qe)
	assert.Contains(t, qe.Suggestion, "polygon-mumbai")
}

func TestSuggestSlug(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "eth-goerli", SuggestSlug("eth-gorli"))
	assert.Equal(t, "bnb-testnet", SuggestSlug("bnb-testnt"))
	assert.Empty(t, SuggestSlug("completely-different-thing"))
}

func TestOptions_AddAndOrder(t *testing.T) {
	t.Parallel()
	set, err := NewOptions(
		Option{ID: PolygonMainnet, RPCURL: "https://polygon.example", RelayerURL: "https://relay.example/137"},
		Option{ID: EthereumMainnet, RPCURL: "rpc1", RelayerURL: "relay1"},
	)
	require.NoError(t, err)

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []ID{PolygonMainnet, EthereumMainnet}, set.IDs())
	assert.True(t, set.Has(EthereumMainnet))
	assert.False(t, set.Has(EthereumGoerli))

	opt, ok := set.Get(EthereumMainnet)
	require.True(t, ok)
	assert.Equal(t, "rpc1", opt.RPCURL)
	assert.Equal(t, "relay1", opt.RelayerURL)
}

func TestOptions_DuplicateRejected(t *testing.T) {
	t.Parallel()
	var set Options
	require.NoError(t, set.Add(Option{ID: EthereumMainnet, RPCURL: "rpc1"}))

	err := set.Add(Option{ID: EthereumMainnet, RPCURL: "rpc-other"})
	require.ErrorIs(t, err, qerr.ErrConfiguration)

	opt, _ := set.Get(EthereumMainnet)
	assert.Equal(t, "rpc1", opt.RPCURL, "first registration must survive")
}

func TestOptions_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		opt    Option
		target error
	}{
		{"unknown chain", Option{ID: 999999, RPCURL: "rpc"}, qerr.ErrUnknownChain},
		{"missing rpc", Option{ID: EthereumMainnet}, qerr.ErrConfiguration},
		{"scheme without host", Option{ID: EthereumMainnet, RPCURL: "https://"}, qerr.ErrConfiguration},
		{"bad relayer", Option{ID: EthereumMainnet, RPCURL: "rpc", RelayerURL: "http://"}, qerr.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var set Options
			require.ErrorIs(t, set.Add(tt.opt), tt.target)
			assert.Equal(t, 0, set.Len())
		})
	}
}

func TestOptions_NilSafe(t *testing.T) {
	t.Parallel()
	var set *Options
	assert.Equal(t, 0, set.Len())
	assert.False(t, set.Has(EthereumMainnet))
	assert.Nil(t, set.List())
	assert.Nil(t, set.IDs())
}

func TestOptions_CloneIsIndependent(t *testing.T) {
	t.Parallel()
	set, err := NewOptions(Option{ID: EthereumMainnet, RPCURL: "rpc1"})
	require.NoError(t, err)

	clone := set.Clone()
	require.NoError(t, clone.Add(Option{ID: PolygonMainnet, RPCURL: "rpc2"}))

	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestParseDecimal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1", "1000000000000000000", false},
		{"1.5", "1500000000000000000", false},
		{".25", "250000000000000000", false},
		{"0.000000000000000001", "1", false},
		{"0.0000000000000000019", "1", false},
		{"", "", true},
		{"-1", "", true},
		{"1.2.3", "", true},
		{"1.x", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDecimal(tt.input, 18)
			if tt.wantErr {
				require.ErrorIs(t, err, qerr.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatDecimal(t *testing.T) {
	t.Parallel()
	oneAndHalf, _ := new(big.Int).SetString("1500000000000000000", 10)

	assert.Equal(t, "1.5", FormatDecimal(oneAndHalf, 18))
	assert.Equal(t, "0.000000000000000001", FormatDecimal(big.NewInt(1), 18))
	assert.Equal(t, "0", FormatDecimal(big.NewInt(0), 18))
	assert.Equal(t, "0", FormatDecimal(nil, 18))
	assert.Equal(t, "-2", FormatDecimal(big.NewInt(-2), 0))
	assert.Equal(t, "12", FormatDecimal(big.NewInt(1200), 2))
}

func TestID_AmountRoundTrip(t *testing.T) {
	t.Parallel()
	wei, err := PolygonMumbai.ParseAmount("0.125")
	require.NoError(t, err)
	assert.Equal(t, "0.125", PolygonMumbai.FormatAmount(wei))

	_, err = ID(999999).ParseAmount("1")
	require.ErrorIs(t, err, qerr.ErrUnknownChain)
}
