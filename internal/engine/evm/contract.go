package evm

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/smartaccount"
)

// accountABI is the account contract surface the engine calls.
const accountABI = `[
	{"type":"function","name":"getNonce","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"execute","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"txs","type":"tuple[]","components":[
			{"name":"to","type":"address"},
			{"name":"value","type":"uint256"},
			{"name":"data","type":"bytes"}]},
		{"name":"nonce","type":"uint256"},
		{"name":"signature","type":"bytes"}],
	 "outputs":[]}
]`

//nolint:gochecknoglobals // Parsed once, read-only
var (
	parsedABI  = mustParseABI()
	digestArgs = mustDigestArgs()
)

// call is the ABI tuple form of a Transaction.
type call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

func mustParseABI() abi.ABI {
	a, err := abi.JSON(strings.NewReader(accountABI))
	if err != nil {
		panic(err)
	}
	return a
}

func mustDigestArgs() abi.Arguments {
	uint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	address, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	calls, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: uint256}, {Type: address}, {Type: uint256}, {Type: calls}}
}

// AccountAddress returns the counterfactual CREATE2 address of the account
// whose keyset hashes to salt.
func AccountAddress(factory common.Address, salt, initCodeHash common.Hash) common.Address {
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

func toCalls(txs []smartaccount.Transaction) []call {
	out := make([]call, len(txs))
	for i, tx := range txs {
		value := tx.Value
		if value == nil {
			value = new(big.Int)
		}
		data := tx.Data
		if data == nil {
			data = []byte{}
		}
		out[i] = call{To: tx.To, Value: value, Data: data}
	}
	return out
}

// batchDigest is the hash the master key signs to authorize a batch:
// keccak256(abi.encode(chainId, wallet, nonce, txs)).
func batchDigest(chainID uint64, wallet common.Address, nonce uint64, calls []call) (common.Hash, error) {
	packed, err := digestArgs.Pack(new(big.Int).SetUint64(chainID), wallet, new(big.Int).SetUint64(nonce), calls)
	if err != nil {
		return common.Hash{}, qerr.Wrap(qerr.ErrInvalidTransaction, "encode batch: %v", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

func packExecute(calls []call, nonce uint64, signature []byte) ([]byte, error) {
	if signature == nil {
		signature = []byte{}
	}
	data, err := parsedABI.Pack("execute", calls, new(big.Int).SetUint64(nonce), signature)
	if err != nil {
		return nil, qerr.Wrap(qerr.ErrInvalidTransaction, "encode execute: %v", err)
	}
	return data, nil
}

func packGetNonce() []byte {
	data, _ := parsedABI.Pack("getNonce")
	return data
}

func unpackNonce(ret []byte) (uint64, error) {
	out, err := parsedABI.Unpack("getNonce", ret)
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, qerr.WithDetails(qerr.ErrEngine, map[string]string{"reason": "getNonce returned no value"})
	}
	n, ok := out[0].(*big.Int)
	if !ok || !n.IsUint64() {
		return 0, qerr.WithDetails(qerr.ErrEngine, map[string]string{"reason": "getNonce out of range"})
	}
	return n.Uint64(), nil
}
