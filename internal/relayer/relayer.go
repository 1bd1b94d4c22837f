package relayer

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// Relayer JSON-RPC methods.
const (
	MethodSendTransaction = "relayer_sendTransaction"
	MethodFeeOptions      = "relayer_feeOptions"
)

// Fee is a fee quote or payment choice in the relayer's wire format.
type Fee struct {
	Token    common.Address `json:"token"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	To       common.Address `json:"to"`
	Amount   *hexutil.Big   `json:"amount"`
	Error    string         `json:"error,omitempty"`
}

// Submission is a signed account batch handed to the relayer.
type Submission struct {
	ChainID hexutil.Uint64 `json:"chainId"`
	Wallet  common.Address `json:"wallet"`
	Data    hexutil.Bytes  `json:"data"`
	Fee     *Fee           `json:"fee,omitempty"`
}

// FeeQuery asks the relayer how a batch can be paid for.
type FeeQuery struct {
	ChainID hexutil.Uint64  `json:"chainId"`
	Wallet  common.Address  `json:"wallet"`
	Data    hexutil.Bytes   `json:"data"`
	Token   *common.Address `json:"token,omitempty"`
}

// SendTransaction submits a signed batch and returns the transaction hash.
func (c *Client) SendTransaction(ctx context.Context, sub Submission) (common.Hash, error) {
	result, err := c.Call(ctx, MethodSendTransaction, sub)
	if err != nil {
		return common.Hash{}, translate(err)
	}

	var hash common.Hash
	if err := json.Unmarshal(result, &hash); err != nil {
		return common.Hash{}, qerr.WithDetails(ErrRPCResponse, map[string]string{
			"method": MethodSendTransaction,
			"reason": err.Error(),
		})
	}
	return hash, nil
}

// FeeOptions returns the relayer's fee quotes for a batch.
func (c *Client) FeeOptions(ctx context.Context, q FeeQuery) ([]Fee, error) {
	result, err := c.Call(ctx, MethodFeeOptions, q)
	if err != nil {
		return nil, translate(err)
	}

	var fees []Fee
	if err := json.Unmarshal(result, &fees); err != nil {
		return nil, qerr.WithDetails(ErrRPCResponse, map[string]string{
			"method": MethodFeeOptions,
			"reason": err.Error(),
		})
	}
	return fees, nil
}

// translate maps a relayer application error to ErrTxRejected.
func translate(err error) error {
	var rpcErr *RPCError
	if qerr.As(err, &rpcErr) {
		return qerr.WithDetails(qerr.ErrTxRejected, map[string]string{
			"code":   strconv.Itoa(rpcErr.Code),
			"reason": rpcErr.Message,
		})
	}
	return err
}
