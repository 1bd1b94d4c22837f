package smartaccount

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// Transaction is one call executed by the account.
type Transaction struct {
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value,omitempty"`
	Data  []byte         `json:"data,omitempty"`
}

// Validate rejects transactions that cannot be executed.
func (t Transaction) Validate() error {
	if t.To == (common.Address{}) {
		return qerr.WithDetails(qerr.ErrInvalidTransaction, map[string]string{
			"reason": "missing recipient",
		})
	}
	if t.Value != nil && t.Value.Sign() < 0 {
		return qerr.WithDetails(qerr.ErrInvalidTransaction, map[string]string{
			"reason": "negative value",
			"value":  t.Value.String(),
		})
	}
	return nil
}

// FeeOption is one way of paying for a batch. A zero Token means the chain's
// native currency.
type FeeOption struct {
	Token    common.Address `json:"token"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	To       common.Address `json:"to"`
	Amount   *big.Int       `json:"amount"`
	Error    string         `json:"error,omitempty"`
}

// IsNative reports whether the fee is paid in the chain's native currency.
func (f FeeOption) IsNative() bool {
	return f.Token == (common.Address{})
}

// SimulateOptions tunes a dry run.
type SimulateOptions struct {
	// Token restricts fee quotes to one token. Nil quotes every option.
	Token *common.Address
}

// SendOptions tunes a submission.
type SendOptions struct {
	// Fee selects how the batch is paid for. Nil lets the engine choose.
	Fee *FeeOption
}

// TxResult is the outcome of one simulated transaction.
type TxResult struct {
	Success bool   `json:"success"`
	GasUsed uint64 `json:"gasUsed"`
	Error   string `json:"error,omitempty"`
}

// SimulateResult is the outcome of a simulated batch.
type SimulateResult struct {
	Success    bool        `json:"success"`
	Results    []TxResult  `json:"results"`
	GasLimit   uint64      `json:"gasLimit"`
	FeeOptions []FeeOption `json:"feeOptions"`
}

func validateBatch(txs []Transaction) error {
	if len(txs) == 0 {
		return qerr.ErrEmptyBatch
	}
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return qerr.Wrap(err, "transaction %d", i)
		}
	}
	return nil
}
