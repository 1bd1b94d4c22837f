package cli

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/quorum/internal/output"
	"github.com/mrz1836/quorum/pkg/chain"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List supported chains",
	Long: `List every chain quorum knows, marking the ones configured with an RPC
endpoint and the active chain. Chains may be named by slug or numeric ID.`,
	Args: cobra.NoArgs,
	RunE: runChains,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(chainsCmd)
}

// ChainEntry is one row of the chains output.
type ChainEntry struct {
	Slug       string `json:"slug"`
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	Testnet    bool   `json:"testnet"`
	Configured bool   `json:"configured"`
	Active     bool   `json:"active"`
	RPC        string `json:"rpc,omitempty"`
	Relayer    string `json:"relayer,omitempty"`
}

func runChains(_ *cobra.Command, _ []string) error {
	opts, err := cfg.ChainOptions()
	if err != nil {
		return err
	}
	active, activeErr := cfg.ActiveChainID()

	entries := make([]ChainEntry, 0, len(chain.All()))
	for _, info := range chain.All() {
		e := ChainEntry{
			Slug:    info.Slug,
			ID:      info.ID.Uint64(),
			Name:    info.Name,
			Symbol:  info.Symbol,
			Testnet: info.Testnet,
			Active:  activeErr == nil && info.ID == active,
		}
		if opt, ok := opts.Get(info.ID); ok {
			e.Configured = true
			e.RPC = opt.RPCURL
			e.Relayer = opt.RelayerURL
		}
		entries = append(entries, e)
	}

	return formatter.Emit(entries, func(w io.Writer) error {
		t := output.NewTable("", "CHAIN", "ID", "SYMBOL", "RPC", "RELAYER").AlignRight(2)
		for _, e := range entries {
			marker := ""
			switch {
			case e.Active:
				marker = "*"
			case e.Configured:
				marker = "+"
			}
			t.AddRow(marker, e.Slug, strconv.FormatUint(e.ID, 10), e.Symbol, e.RPC, e.Relayer)
		}
		return t.Render(w)
	})
}
