package cli

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"

	"github.com/mrz1836/quorum/internal/output"
	"github.com/mrz1836/quorum/pkg/chain"
	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/smartaccount"
)

// sendTimeout bounds simulate and submit; waiting adds the receipt timeout.
const sendTimeout = 90 * time.Second

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// txTo is the call target.
	txTo string
	// txValue is the native amount in whole units, e.g. 0.25.
	txValue string
	// txData is 0x-prefixed calldata.
	txData string
	// txBatch is a JSON file holding several calls.
	txBatch string
	// txFeeToken selects the fee token by symbol or address.
	txFeeToken string
	// txYes skips the confirmation prompt.
	txYes bool
	// txWait waits for the receipt after sending.
	txWait bool
	// txConfirmations overrides receipt.confirmations.
	txConfirmations uint64
	// txTimeout overrides receipt.timeout.
	txTimeout time.Duration
)

// txCmd is the parent command for transaction operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Simulate, send and track account batches",
	Long: `Simulate and send batches of calls from the smart account.

A batch is given either as a single call with --to, --value and --data, or as
a JSON file with --batch:

  [{"to": "0x...", "value": "0.1", "data": "0x"}, {"to": "0x...", "data": "0xa9059cbb..."}]

Values are in the active chain's native token.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Dry-run a batch and quote fees",
	Long: `Estimate gas for each call in the batch and list the fee options the
relayer accepts.`,
	Example: `  quorum tx simulate --to 0x742d35cc6634C0532925a3B844bC9e7595F8B2e0 --value 0.01
  quorum tx simulate --batch calls.json --fee-token USDC`,
	Args: cobra.NoArgs,
	RunE: runTxSimulate,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and relay a batch",
	Long: `Simulate the batch, pick a fee option, sign the batch with the master key
and hand it to the relayer. The relayer deploys the account if needed.`,
	Example: `  quorum tx send --to 0x742d35cc6634C0532925a3B844bC9e7595F8B2e0 --value 0.01 --wait
  quorum tx send --batch calls.json --fee-token USDC --yes`,
	Args: cobra.NoArgs,
	RunE: runTxSend,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txWaitCmd = &cobra.Command{
	Use:   "wait <hash>",
	Short: "Wait for a batch receipt",
	Args:  cobra.ExactArgs(1),
	RunE:  runTxWait,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txSimulateCmd, txSendCmd, txWaitCmd)

	for _, c := range []*cobra.Command{txSimulateCmd, txSendCmd} {
		c.Flags().StringVar(&txTo, "to", "", "call target address")
		c.Flags().StringVar(&txValue, "value", "", "native amount to send, e.g. 0.25")
		c.Flags().StringVar(&txData, "data", "", "0x-prefixed calldata")
		c.Flags().StringVar(&txBatch, "batch", "", "JSON file with a list of calls (- for stdin)")
		c.Flags().StringVar(&txFeeToken, "fee-token", "", "fee token symbol or address (default: native)")
		c.MarkFlagsMutuallyExclusive("batch", "to")
	}
	txSendCmd.Flags().BoolVarP(&txYes, "yes", "y", false, "skip the confirmation prompt")
	txSendCmd.Flags().BoolVar(&txWait, "wait", false, "wait for the receipt")

	for _, c := range []*cobra.Command{txSendCmd, txWaitCmd} {
		c.Flags().Uint64Var(&txConfirmations, "confirmations", 0, "blocks to wait for (default: receipt.confirmations)")
		c.Flags().DurationVar(&txTimeout, "timeout", 0, "receipt wait limit (default: receipt.timeout)")
	}
}

// callJSON is one entry of a --batch file.
type callJSON struct {
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	Data  string `json:"data,omitempty"`
}

// parseBatch builds the batch from flags or the --batch file.
func parseBatch(id chain.ID) ([]smartaccount.Transaction, error) {
	var calls []callJSON
	switch {
	case txBatch != "":
		raw, err := readInput(txBatch)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &calls); err != nil {
			return nil, qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{
				"batch":  txBatch,
				"reason": err.Error(),
			})
		}
	case txTo != "":
		calls = []callJSON{{To: txTo, Value: txValue, Data: txData}}
	default:
		return nil, qerr.WithSuggestion(qerr.ErrEmptyBatch, "pass --to for a single call or --batch for several")
	}

	txs := make([]smartaccount.Transaction, 0, len(calls))
	for i, c := range calls {
		tx, err := c.transaction(id)
		if err != nil {
			return nil, qerr.Wrap(err, "call %d", i)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (c callJSON) transaction(id chain.ID) (smartaccount.Transaction, error) {
	if !common.IsHexAddress(c.To) {
		return smartaccount.Transaction{}, qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{"to": c.To})
	}
	tx := smartaccount.Transaction{To: common.HexToAddress(c.To)}

	if v := strings.TrimSpace(c.Value); v != "" {
		amount, err := id.ParseAmount(v)
		if err != nil {
			return smartaccount.Transaction{}, err
		}
		tx.Value = amount
	}
	if d := strings.TrimSpace(c.Data); d != "" && d != "0x" {
		data, err := hexutil.Decode(d)
		if err != nil {
			return smartaccount.Transaction{}, qerr.WithDetails(qerr.ErrInvalidTransaction, map[string]string{
				"data": "not 0x-prefixed hex",
			})
		}
		tx.Data = data
	}
	return tx, tx.Validate()
}

// feeTokenFilter resolves --fee-token to a token address for simulation.
// Symbols are matched after the quote, so they return nil here.
func feeTokenFilter() *common.Address {
	if common.IsHexAddress(txFeeToken) {
		addr := common.HexToAddress(txFeeToken)
		return &addr
	}
	return nil
}

// pickFee chooses the fee option matching --fee-token, or the native option.
func pickFee(opts []smartaccount.FeeOption) (*smartaccount.FeeOption, error) {
	for i := range opts {
		o := &opts[i]
		if o.Error != "" || o.Amount == nil {
			continue
		}
		switch {
		case txFeeToken == "" && o.IsNative():
			return o, nil
		case txFeeToken != "" && common.IsHexAddress(txFeeToken) && o.Token == common.HexToAddress(txFeeToken):
			return o, nil
		case txFeeToken != "" && strings.EqualFold(o.Symbol, txFeeToken):
			return o, nil
		}
	}

	available := make([]string, 0, len(opts))
	for _, o := range opts {
		available = append(available, o.Symbol)
	}
	want := txFeeToken
	if want == "" {
		want = "native"
	}
	return nil, qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{
		"fee_token": want,
		"available": strings.Join(available, ","),
	})
}

// SimulateOutput is the output of tx simulate.
type SimulateOutput struct {
	Chain  string                       `json:"chain"`
	Result *smartaccount.SimulateResult `json:"result"`
}

func runTxSimulate(cmd *cobra.Command, _ []string) error {
	return withAccount(cmd, false, sendTimeout, func(ctx context.Context, acct *smartaccount.Account) error {
		id, err := acct.ChainID()
		if err != nil {
			return err
		}
		txs, err := parseBatch(id)
		if err != nil {
			return err
		}

		res, err := acct.SimulateTransactions(ctx, txs, smartaccount.SimulateOptions{Token: feeTokenFilter()})
		if err != nil {
			return err
		}
		return formatter.Emit(SimulateOutput{Chain: id.String(), Result: res}, func(w io.Writer) error {
			return renderSimulation(w, id, res)
		})
	})
}

func renderSimulation(w io.Writer, id chain.ID, res *smartaccount.SimulateResult) error {
	calls := output.NewTable("#", "OK", "GAS", "ERROR").AlignRight(0, 2)
	for i, r := range res.Results {
		calls.AddRow(strconv.Itoa(i), strconv.FormatBool(r.Success), strconv.FormatUint(r.GasUsed, 10), r.Error)
	}
	if err := calls.Render(w); err != nil {
		return err
	}
	out(w, "\nGas limit: %d on %s\n\n", res.GasLimit, id)

	fees := output.NewTable("FEE", "AMOUNT", "TOKEN").AlignRight(1)
	for _, f := range res.FeeOptions {
		amount := "unavailable: " + f.Error
		if f.Error == "" && f.Amount != nil {
			amount = chain.FormatDecimal(f.Amount, int(f.Decimals))
		}
		token := "native"
		if !f.IsNative() {
			token = f.Token.Hex()
		}
		fees.AddRow(f.Symbol, amount, token)
	}
	return fees.Render(w)
}

// SendOutput is the output of tx send.
type SendOutput struct {
	Chain   string          `json:"chain"`
	Hash    common.Hash     `json:"hash"`
	Fee     string          `json:"fee,omitempty"`
	Receipt *ReceiptSummary `json:"receipt,omitempty"`
}

func runTxSend(cmd *cobra.Command, _ []string) error {
	timeout := sendTimeout
	if txWait {
		timeout += receiptTimeout()
	}

	return withAccount(cmd, true, timeout, func(ctx context.Context, acct *smartaccount.Account) error {
		id, err := acct.ChainID()
		if err != nil {
			return err
		}
		txs, err := parseBatch(id)
		if err != nil {
			return err
		}

		sim, err := acct.SimulateTransactions(ctx, txs, smartaccount.SimulateOptions{Token: feeTokenFilter()})
		if err != nil {
			return err
		}
		if !sim.Success {
			return qerr.WithDetails(qerr.ErrTxRejected, map[string]string{"reason": firstFailure(sim)})
		}
		fee, err := pickFee(sim.FeeOptions)
		if err != nil {
			return err
		}

		feeText := chain.FormatDecimal(fee.Amount, int(fee.Decimals)) + " " + fee.Symbol
		if !txYes && !promptConfirmFn(
			"Send "+strconv.Itoa(len(txs))+" call(s) on "+id.String()+" paying up to "+feeText+"?") {
			return qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{"reason": "cancelled"})
		}

		hash, err := acct.SendTransactions(ctx, txs, smartaccount.SendOptions{Fee: fee})
		if err != nil {
			return err
		}
		result := SendOutput{Chain: id.String(), Hash: hash, Fee: feeText}

		if txWait {
			messenger.Infof("waiting for %s", hash.Hex())
			receipt, err := acct.WaitTransactionReceipt(ctx, hash, waitOptions())
			if err != nil {
				_ = emitSend(result)
				return err
			}
			result.Receipt = summarize(receipt)
		}
		return emitSend(result)
	})
}

func emitSend(result SendOutput) error {
	return formatter.Emit(result, func(w io.Writer) error {
		pairs := []string{"Hash", result.Hash.Hex(), "Chain", result.Chain, "Fee", result.Fee}
		if r := result.Receipt; r != nil {
			pairs = append(pairs, "Status", r.Status, "Block", strconv.FormatUint(r.BlockNumber, 10),
				"Gas used", strconv.FormatUint(r.GasUsed, 10))
		}
		return output.Fields(w, pairs...)
	})
}

func firstFailure(sim *smartaccount.SimulateResult) string {
	for i, r := range sim.Results {
		if !r.Success {
			return "call " + strconv.Itoa(i) + ": " + r.Error
		}
	}
	return "simulation failed"
}

// ReceiptSummary is the part of a receipt the CLI reports.
type ReceiptSummary struct {
	Hash        common.Hash `json:"hash"`
	Status      string      `json:"status"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
}

func summarize(r *types.Receipt) *ReceiptSummary {
	s := &ReceiptSummary{Hash: r.TxHash, GasUsed: r.GasUsed, Status: "failed"}
	if r.Status == types.ReceiptStatusSuccessful {
		s.Status = "success"
	}
	if r.BlockNumber != nil {
		s.BlockNumber = r.BlockNumber.Uint64()
	}
	return s
}

func receiptTimeout() time.Duration {
	if txTimeout > 0 {
		return txTimeout
	}
	if cfg.Receipt.Timeout > 0 {
		return cfg.Receipt.Timeout
	}
	return smartaccount.DefaultReceiptTimeout
}

func waitOptions() smartaccount.WaitOptions {
	confirmations := txConfirmations
	if confirmations == 0 {
		confirmations = cfg.Receipt.Confirmations
	}
	return smartaccount.WaitOptions{Confirmations: confirmations, Timeout: receiptTimeout()}
}

func runTxWait(cmd *cobra.Command, args []string) error {
	raw, err := hexutil.Decode(args[0])
	if err != nil || len(raw) != common.HashLength {
		return qerr.WithDetails(qerr.ErrInvalidInput, map[string]string{"hash": args[0]})
	}
	hash := common.BytesToHash(raw)

	return withAccount(cmd, false, receiptTimeout()+readTimeout, func(ctx context.Context, acct *smartaccount.Account) error {
		receipt, err := acct.WaitTransactionReceipt(ctx, hash, waitOptions())
		if err != nil {
			return err
		}
		summary := summarize(receipt)
		return formatter.Emit(summary, func(w io.Writer) error {
			return output.Fields(w,
				"Hash", summary.Hash.Hex(),
				"Status", summary.Status,
				"Block", strconv.FormatUint(summary.BlockNumber, 10),
				"Gas used", strconv.FormatUint(summary.GasUsed, 10))
		})
	})
}
