package smartaccount_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/quorum/pkg/chain"
	qerr "github.com/mrz1836/quorum/pkg/errors"
	"github.com/mrz1836/quorum/pkg/keyset"
	"github.com/mrz1836/quorum/pkg/signer"
	"github.com/mrz1836/quorum/pkg/smartaccount"
	"github.com/mrz1836/quorum/pkg/smartaccount/smartaccounttest"
)

var recipient = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

func newTestAccount(t *testing.T) (*smartaccount.Account, *smartaccounttest.Engine) {
	t.Helper()
	eng := smartaccounttest.NewEngine()
	acct, err := smartaccount.Init(context.Background(), testOptions(eng, testMasterSigner(t)),
		smartaccount.InitByChain{ChainID: chain.EthereumMainnet})
	require.NoError(t, err)
	t.Cleanup(func() { _ = acct.Close() })
	return acct, eng
}

func TestAccount_ChainScenario(t *testing.T) {
	t.Parallel()
	acct, eng := newTestAccount(t)

	addr, err := acct.Address()
	require.NoError(t, err)
	want := smartaccounttest.DeriveAddress(eng.LastConfig().Keyset.Hash())
	assert.Equal(t, want.Hex(), addr)

	// Same configuration, fresh engine: same address.
	again, _ := newTestAccount(t)
	addr2, err := again.Address()
	require.NoError(t, err)
	assert.Equal(t, addr, addr2)

	require.NoError(t, acct.SwitchChain(chain.PolygonMainnet))
	id, err := acct.ChainID()
	require.NoError(t, err)
	assert.Equal(t, chain.PolygonMainnet, id)

	err = acct.SwitchChain(chain.EthereumGoerli)
	require.ErrorIs(t, err, qerr.ErrChainNotConfigured)

	id, err = acct.ChainID()
	require.NoError(t, err)
	assert.Equal(t, chain.PolygonMainnet, id, "failed switch must not change the active chain")
	assert.Equal(t, chain.PolygonMainnet.Uint64(), eng.LastHandle().ActiveChain())
}

func TestAccount_SwitchChainEveryOption(t *testing.T) {
	t.Parallel()
	eng := smartaccounttest.NewEngine()
	var opts []chain.Option
	for _, info := range chain.All() {
		opts = append(opts, chain.Option{ID: info.ID, RPCURL: "rpc-" + info.Slug})
	}
	acct, err := smartaccount.Init(context.Background(), smartaccount.Options{
		MasterKeySigner: testMasterSigner(t),
		ChainOptions:    opts,
		Engine:          eng,
	}, smartaccount.InitByChain{ChainID: chain.ArbitrumOne})
	require.NoError(t, err)

	for _, o := range opts {
		require.NoError(t, acct.SwitchChain(o.ID))
		id, err := acct.ChainID()
		require.NoError(t, err)
		assert.Equal(t, o.ID, id)
	}

	require.ErrorIs(t, acct.SwitchChain(chain.ID(999999)), qerr.ErrChainNotConfigured)
}

func TestAccount_ChainIDUnmapped(t *testing.T) {
	t.Parallel()
	acct, eng := newTestAccount(t)
	eng.LastHandle().ReportChain(999999)

	_, err := acct.ChainID()
	require.ErrorIs(t, err, qerr.ErrUnknownChain)
}

func TestAccount_KeysetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	source := testKeysetJSON(t)

	eng1 := smartaccounttest.NewEngine()
	first, err := smartaccount.Init(ctx, testOptions(eng1, nil),
		smartaccount.InitByKeysetJSON{ChainID: chain.EthereumMainnet, KeysetJSON: source})
	require.NoError(t, err)

	exported, err := first.KeysetJSON()
	require.NoError(t, err)

	original, err := keyset.Parse(source)
	require.NoError(t, err)
	roundTripped, err := keyset.Parse(exported)
	require.NoError(t, err)
	assert.True(t, original.Equal(roundTripped))

	eng2 := smartaccounttest.NewEngine()
	second, err := smartaccount.Init(ctx, testOptions(eng2, nil),
		smartaccount.InitByKeysetJSON{ChainID: chain.EthereumMainnet, KeysetJSON: exported})
	require.NoError(t, err)

	addr1, err := first.Address()
	require.NoError(t, err)
	addr2, err := second.Address()
	require.NoError(t, err)
	assert.Equal(t, addr1, addr2)
}

func TestAccount_SignMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acct, _ := newTestAccount(t)

	sig, err := acct.SignMessage(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, sig, "nil message is a no-op")

	sig, err = acct.SignMessage(ctx, []byte{})
	require.NoError(t, err)
	require.NotNil(t, sig)
	raw, err := hexutil.Decode(*sig)
	require.NoError(t, err)
	assert.Len(t, raw, signer.SignatureLength)

	recovered, err := signer.Recover([]byte{}, *sig)
	require.NoError(t, err)
	assert.Equal(t, masterAddress, recovered.Hex())

	sig, err = acct.SignMessage(ctx, []byte("hello"))
	require.NoError(t, err)
	recovered, err = signer.Recover([]byte("hello"), *sig)
	require.NoError(t, err)
	assert.Equal(t, masterAddress, recovered.Hex())
}

func TestAccount_SignText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acct, _ := newTestAccount(t)

	sig, err := acct.SignText(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, sig)

	empty := ""
	sig, err = acct.SignText(ctx, &empty)
	require.NoError(t, err)
	require.NotNil(t, sig)

	fromBytes, err := acct.SignMessage(ctx, []byte{})
	require.NoError(t, err)
	assert.Equal(t, *fromBytes, *sig)
}

func testTypedData() *apitypes.TypedData {
	return &apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Approval": {
				{Name: "contents", Type: "string"},
			},
		},
		PrimaryType: "Approval",
		Domain: apitypes.TypedDataDomain{
			Name:    "quorum",
			ChainId: math.NewHexOrDecimal256(1),
		},
		Message: apitypes.TypedDataMessage{"contents": "rotate guardian"},
	}
}

func TestAccount_SignTypedData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acct, _ := newTestAccount(t)

	sig, err := acct.SignTypedData(ctx, testTypedData())
	require.NoError(t, err)
	raw, err := hexutil.Decode(sig)
	require.NoError(t, err)
	assert.Len(t, raw, signer.SignatureLength)

	digest, _, err := apitypes.TypedDataAndHash(*testTypedData())
	require.NoError(t, err)
	recovered, err := signer.RecoverHash(common.BytesToHash(digest), raw)
	require.NoError(t, err)
	assert.Equal(t, masterAddress, recovered.Hex())

	_, err = acct.SignTypedData(ctx, nil)
	require.ErrorIs(t, err, qerr.ErrInvalidInput)
}

func TestAccount_Transactions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acct, _ := newTestAccount(t)

	tx := smartaccount.Transaction{To: recipient, Value: big.NewInt(1)}

	res, err := acct.SimulateTransaction(ctx, tx, smartaccount.SimulateOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, uint64(smartaccounttest.StubGasPerTx), res.GasLimit)

	res, err = acct.SimulateTransactions(ctx, []smartaccount.Transaction{tx, tx}, smartaccount.SimulateOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)

	nonce, err := acct.Nonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)

	hash, err := acct.SendTransaction(ctx, tx, smartaccount.SendOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	receipt, err := acct.WaitTransactionReceipt(ctx, hash, smartaccount.WaitOptions{Timeout: time.Second})
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, hash, receipt.TxHash)

	nonce, err = acct.Nonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	deployed, err := acct.IsDeployed(ctx)
	require.NoError(t, err)
	assert.True(t, deployed)
}

func TestAccount_BatchValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acct, eng := newTestAccount(t)

	_, err := acct.SimulateTransactions(ctx, nil, smartaccount.SimulateOptions{})
	require.ErrorIs(t, err, qerr.ErrEmptyBatch)

	_, err = acct.SendTransactions(ctx, []smartaccount.Transaction{}, smartaccount.SendOptions{})
	require.ErrorIs(t, err, qerr.ErrEmptyBatch)

	_, err = acct.SendTransaction(ctx, smartaccount.Transaction{}, smartaccount.SendOptions{})
	require.ErrorIs(t, err, qerr.ErrInvalidTransaction)

	_, err = acct.SendTransaction(ctx, smartaccount.Transaction{To: recipient, Value: big.NewInt(-1)}, smartaccount.SendOptions{})
	require.ErrorIs(t, err, qerr.ErrInvalidTransaction)

	assert.NotContains(t, eng.LastHandle().Calls(), "send")
	assert.NotContains(t, eng.LastHandle().Calls(), "simulate")
}

func TestAccount_WaitReceipt(t *testing.T) {
	t.Parallel()
	unknown := common.HexToHash("0xabc")

	t.Run("timeout returns nil receipt", func(t *testing.T) {
		t.Parallel()
		acct, _ := newTestAccount(t)
		receipt, err := acct.WaitTransactionReceipt(context.Background(), unknown,
			smartaccount.WaitOptions{Timeout: 20 * time.Millisecond})
		require.ErrorIs(t, err, qerr.ErrTimeout)
		assert.Nil(t, receipt)
		assert.Equal(t, smartaccount.StateReady, acct.State())
	})

	t.Run("caller cancellation", func(t *testing.T) {
		t.Parallel()
		acct, _ := newTestAccount(t)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := acct.WaitTransactionReceipt(ctx, unknown, smartaccount.WaitOptions{Timeout: time.Minute})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.NotErrorIs(t, err, qerr.ErrTimeout)

		_, err = acct.Nonce(context.Background())
		require.NoError(t, err, "account stays usable after an abandoned wait")
	})

	t.Run("unconfigured chain", func(t *testing.T) {
		t.Parallel()
		acct, _ := newTestAccount(t)
		_, err := acct.WaitTransactionReceipt(context.Background(), unknown,
			smartaccount.WaitOptions{ChainID: chain.BNBMainnet})
		require.ErrorIs(t, err, qerr.ErrChainNotConfigured)
	})

	t.Run("other configured chain", func(t *testing.T) {
		t.Parallel()
		acct, _ := newTestAccount(t)
		hash, err := acct.SendTransaction(context.Background(), smartaccount.Transaction{To: recipient}, smartaccount.SendOptions{})
		require.NoError(t, err)
		receipt, err := acct.WaitTransactionReceipt(context.Background(), hash,
			smartaccount.WaitOptions{ChainID: chain.PolygonMainnet, Confirmations: 3})
		require.NoError(t, err)
		assert.NotNil(t, receipt)
	})

	t.Run("empty hash", func(t *testing.T) {
		t.Parallel()
		acct, _ := newTestAccount(t)
		_, err := acct.WaitTransactionReceipt(context.Background(), common.Hash{}, smartaccount.WaitOptions{})
		require.ErrorIs(t, err, qerr.ErrInvalidInput)
	})
}

func TestAccount_NotImplemented(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acct, _ := newTestAccount(t)

	_, err := acct.SignTransaction(ctx, []smartaccount.Transaction{{To: recipient}}, smartaccount.SendOptions{})
	require.ErrorIs(t, err, qerr.ErrNotImplemented)

	_, err = acct.SendSignedTransaction(ctx, []byte{0x01})
	require.ErrorIs(t, err, qerr.ErrNotImplemented)
}

func TestAccount_EngineErrorsAreWrapped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acct, eng := newTestAccount(t)
	eng.LastHandle().FailWith("nonce", errEngineDown)

	_, err := acct.Nonce(ctx)
	require.ErrorIs(t, err, qerr.ErrEngine)
	require.ErrorIs(t, err, errEngineDown)
	assert.Contains(t, err.Error(), "nonce")

	count := 0
	for _, c := range eng.LastHandle().Calls() {
		if c == "nonce" {
			count++
		}
	}
	assert.Equal(t, 1, count, "engine failures are not retried")
}

func accountOps() map[string]func(*smartaccount.Account) error {
	ctx := context.Background()
	tx := smartaccount.Transaction{To: recipient}
	msg := "hi"
	return map[string]func(*smartaccount.Account) error{
		"address":      func(a *smartaccount.Account) error { _, err := a.Address(); return err },
		"is_deployed":  func(a *smartaccount.Account) error { _, err := a.IsDeployed(ctx); return err },
		"chain_id":     func(a *smartaccount.Account) error { _, err := a.ChainID(); return err },
		"switch_chain": func(a *smartaccount.Account) error { return a.SwitchChain(chain.EthereumMainnet) },
		"nonce":        func(a *smartaccount.Account) error { _, err := a.Nonce(ctx); return err },
		"sign_message": func(a *smartaccount.Account) error { _, err := a.SignMessage(ctx, []byte("hi")); return err },
		"sign_nil":     func(a *smartaccount.Account) error { _, err := a.SignMessage(ctx, nil); return err },
		"sign_text":    func(a *smartaccount.Account) error { _, err := a.SignText(ctx, &msg); return err },
		"sign_typed":   func(a *smartaccount.Account) error { _, err := a.SignTypedData(ctx, testTypedData()); return err },
		"simulate": func(a *smartaccount.Account) error {
			_, err := a.SimulateTransaction(ctx, tx, smartaccount.SimulateOptions{})
			return err
		},
		"send": func(a *smartaccount.Account) error {
			_, err := a.SendTransaction(ctx, tx, smartaccount.SendOptions{})
			return err
		},
		"sign_transaction": func(a *smartaccount.Account) error {
			_, err := a.SignTransaction(ctx, []smartaccount.Transaction{tx}, smartaccount.SendOptions{})
			return err
		},
		"wait": func(a *smartaccount.Account) error {
			_, err := a.WaitTransactionReceipt(ctx, common.HexToHash("0x01"), smartaccount.WaitOptions{})
			return err
		},
		"keyset_json": func(a *smartaccount.Account) error { _, err := a.KeysetJSON(); return err },
	}
}

func TestAccount_Uninitialized(t *testing.T) {
	t.Parallel()
	for name, op := range accountOps() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var acct smartaccount.Account
			assert.Equal(t, smartaccount.StateUninitialized, acct.State())
			require.ErrorIs(t, op(&acct), qerr.ErrAccountNotInitialized)
		})
	}
}

func TestAccount_Disposed(t *testing.T) {
	t.Parallel()
	acct, eng := newTestAccount(t)

	require.NoError(t, acct.Close())
	assert.Equal(t, smartaccount.StateDisposed, acct.State())
	assert.True(t, eng.LastHandle().Closed())
	require.NoError(t, acct.Close(), "close is idempotent")

	for name, op := range accountOps() {
		require.ErrorIs(t, op(acct), qerr.ErrAccountNotInitialized, name)
	}
}

func TestAccount_SerializesOperations(t *testing.T) {
	t.Parallel()
	eng := smartaccounttest.NewEngine()
	eng.CallDelay = 2 * time.Millisecond
	acct, err := smartaccount.Init(context.Background(), testOptions(eng, testMasterSigner(t)),
		smartaccount.InitByChain{ChainID: chain.EthereumMainnet})
	require.NoError(t, err)

	ops := accountOps()
	delete(ops, "wait")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for name, op := range ops {
			wg.Add(1)
			go func(name string, op func(*smartaccount.Account) error) {
				defer wg.Done()
				err := op(acct)
				if name == "sign_transaction" {
					assert.ErrorIs(t, err, qerr.ErrNotImplemented)
					return
				}
				assert.NoError(t, err, name)
			}(name, op)
		}
	}
	wg.Wait()

	assert.False(t, eng.LastHandle().Overlapped(), "engine calls must never overlap")
}

func waitForCall(t *testing.T, h *smartaccounttest.Handle, op string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, c := range h.Calls() {
			if c == op {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestAccount_QueuedCallHonorsContext(t *testing.T) {
	t.Parallel()
	acct, eng := newTestAccount(t)

	held := common.HexToHash("0xabc1")
	eng.LastHandle().HoldReceipt(held)

	waitDone := make(chan error, 1)
	go func() {
		_, err := acct.WaitTransactionReceipt(context.Background(), held, smartaccount.WaitOptions{Timeout: 2 * time.Second})
		waitDone <- err
	}()
	waitForCall(t, eng.LastHandle(), "wait_receipt")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := acct.Nonce(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "queued call must give up at its deadline")
	assert.NotContains(t, eng.LastHandle().Calls(), "nonce")

	require.ErrorIs(t, <-waitDone, qerr.ErrTimeout)

	nonce, err := acct.Nonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)
}

func TestAccount_CloseWaitsForInFlightCall(t *testing.T) {
	t.Parallel()
	acct, eng := newTestAccount(t)

	held := common.HexToHash("0xabc2")
	eng.LastHandle().HoldReceipt(held)

	waitDone := make(chan error, 1)
	go func() {
		_, err := acct.WaitTransactionReceipt(context.Background(), held, smartaccount.WaitOptions{Timeout: 100 * time.Millisecond})
		waitDone <- err
	}()
	waitForCall(t, eng.LastHandle(), "wait_receipt")

	require.NoError(t, acct.Close())
	require.ErrorIs(t, <-waitDone, qerr.ErrTimeout)
	assert.Equal(t, smartaccount.StateDisposed, acct.State())
	assert.False(t, eng.LastHandle().Overlapped())
}

type recordedOp struct {
	op  string
	err error
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (f *fakeRecorder) RecordAccountOp(op string, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, recordedOp{op, err})
}

type fakeLogger struct {
	mu     sync.Mutex
	debugs []string
	errors []string
}

func (f *fakeLogger) Debug(format string, _ ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debugs = append(f.debugs, format)
}

func (f *fakeLogger) Error(format string, _ ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, format)
}

func TestAccount_RecordsAndLogs(t *testing.T) {
	t.Parallel()
	rec := &fakeRecorder{}
	logger := &fakeLogger{}
	opts := testOptions(smartaccounttest.NewEngine(), testMasterSigner(t))
	opts.Recorder = rec
	opts.Logger = logger

	acct, err := smartaccount.Init(context.Background(), opts, smartaccount.InitByChain{ChainID: chain.EthereumMainnet})
	require.NoError(t, err)

	_, err = acct.Nonce(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, acct.SwitchChain(chain.EthereumGoerli), qerr.ErrChainNotConfigured)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.ops, 3)
	assert.Equal(t, "build", rec.ops[0].op)
	assert.Equal(t, "nonce", rec.ops[1].op)
	assert.NoError(t, rec.ops[1].err)
	assert.Equal(t, "switch_chain", rec.ops[2].op)
	assert.Error(t, rec.ops[2].err)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.NotEmpty(t, logger.debugs)
	assert.Len(t, logger.errors, 1)
}
