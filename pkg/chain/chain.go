// Package chain provides the fixed registry of EVM chains a smart account can
// be bound to, and the per-chain endpoint options used to reach them.
package chain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// ID is a numeric EVM chain identity from the fixed registry.
type ID uint64

// Supported chain identifiers.
const (
	EthereumMainnet ID = 1
	EthereumGoerli  ID = 5
	BNBMainnet      ID = 56
	BNBTestnet      ID = 97
	PolygonMainnet  ID = 137
	PolygonMumbai   ID = 80001
	ArbitrumOne     ID = 42161
	ArbitrumGoerli  ID = 421613
)

// maxSuggestDistance is the largest edit distance for which ParseName
// proposes a slug on a typo.
const maxSuggestDistance = 3

// Info describes a registry entry.
type Info struct {
	ID       ID     `json:"chain_id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Testnet  bool   `json:"testnet"`
}

//nolint:gochecknoglobals // Fixed chain table
var registry = []Info{
	{ID: EthereumMainnet, Name: "Ethereum Mainnet", Slug: "eth-mainnet", Symbol: "ETH", Decimals: 18},
	{ID: EthereumGoerli, Name: "Ethereum Goerli", Slug: "eth-goerli", Symbol: "ETH", Decimals: 18, Testnet: true},
	{ID: BNBMainnet, Name: "BNB Chain Mainnet", Slug: "bnb-mainnet", Symbol: "BNB", Decimals: 18},
	{ID: BNBTestnet, Name: "BNB Chain Testnet", Slug: "bnb-testnet", Symbol: "tBNB", Decimals: 18, Testnet: true},
	{ID: PolygonMainnet, Name: "Polygon Mainnet", Slug: "polygon-mainnet", Symbol: "MATIC", Decimals: 18},
	{ID: PolygonMumbai, Name: "Polygon Mumbai", Slug: "polygon-mumbai", Symbol: "MATIC", Decimals: 18, Testnet: true},
	{ID: ArbitrumOne, Name: "Arbitrum One", Slug: "arbitrum-one", Symbol: "ETH", Decimals: 18},
	{ID: ArbitrumGoerli, Name: "Arbitrum Goerli", Slug: "arbitrum-goerli", Symbol: "ETH", Decimals: 18, Testnet: true},
}

// Lookup maps a raw numeric chain id to a registry ID.
// Ids outside the table fail with ErrUnknownChain; there is no default.
func Lookup(raw uint64) (ID, error) {
	id := ID(raw)
	if !id.IsValid() {
		return 0, qerr.WithDetails(qerr.ErrUnknownChain, map[string]string{
			"chain_id": strconv.FormatUint(raw, 10),
		})
	}
	return id, nil
}

// Info returns the registry entry for the chain.
func (id ID) Info() (Info, bool) {
	for _, info := range registry {
		if info.ID == id {
			return info, true
		}
	}
	return Info{}, false
}

// IsValid returns true if the id is in the registry.
func (id ID) IsValid() bool {
	_, ok := id.Info()
	return ok
}

// Uint64 returns the numeric chain id.
func (id ID) Uint64() uint64 {
	return uint64(id)
}

// String returns the chain slug, or the bare number for ids outside the table.
func (id ID) String() string {
	if info, ok := id.Info(); ok {
		return info.Slug
	}
	return strconv.FormatUint(uint64(id), 10)
}

// All returns every registry entry in table order.
func All() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// ParseName resolves a chain from a slug ("polygon-mumbai") or a decimal id ("80001").
// On a near-miss slug the returned error carries a suggestion.
func ParseName(s string) (ID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, qerr.WithDetails(qerr.ErrUnknownChain, map[string]string{"chain": "(empty)"})
	}

	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Lookup(n)
	}

	for _, info := range registry {
		if info.Slug == s {
			return info.ID, nil
		}
	}

	err := qerr.WithDetails(qerr.ErrUnknownChain, map[string]string{"chain": s})
	if suggestion := SuggestSlug(s); suggestion != "" {
		err = qerr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", suggestion))
	}
	return 0, err
}

// SuggestSlug returns the registry slug closest to input, or "" when nothing
// is within maxSuggestDistance edits.
func SuggestSlug(input string) string {
	minDist := math.MaxInt
	var suggestion string

	for _, info := range registry {
		dist := levenshtein.ComputeDistance(input, info.Slug)
		if dist < minDist {
			minDist = dist
			suggestion = info.Slug
		}
	}

	if minDist <= maxSuggestDistance {
		return suggestion
	}
	return ""
}
