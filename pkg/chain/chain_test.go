package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
	"github.com/pharos-autotask/pharos-autotask/pkg/currency"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

func init() {
	_ = logger.InitLogger()
}

var (
	testChainID = big.NewInt(DefaultChainID)
	usdc        = common.HexToAddress("0xad902cf99c2de2f1ba5ec4d642fd7e49cae9ee37")
	wphrs       = DefaultContracts.WrappedNative
)

// fakeBackend is an in-memory node. Every sent transaction is mined
// immediately with receiptStatus.
type fakeBackend struct {
	mu            sync.Mutex
	sent          []*types.Transaction
	receiptStatus uint64
	baseFee       *big.Int
	tip           *big.Int
	balance       *big.Int
	call          func(msg ethereum.CallMsg) ([]byte, error)
	sendErr       error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		receiptStatus: types.ReceiptStatusSuccessful,
		baseFee:       big.NewInt(7),
		tip:           big.NewInt(params.GWei),
		balance:       big.NewInt(params.Ether),
	}
}

func (f *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.call == nil {
		return nil, errors.New("no call handler")
	}
	return f.call(msg)
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(params.GWei), nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return f.tip, nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 50000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == txHash {
			return &types.Receipt{Status: f.receiptStatus, TxHash: txHash, BlockNumber: big.NewInt(42)}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) lastTx(t *testing.T) *types.Transaction {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func newTestClient(t *testing.T) (*Client, *fakeBackend) {
	t.Helper()
	b := newFakeBackend()
	return NewWithBackend(b, testChainID, Options{}), b
}

func mustKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func TestEncodeExactInputSingleLayout(t *testing.T) {
	recipient := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	amount := big.NewInt(123456)

	data, err := EncodeExactInputSingle(SwapParams{
		TokenIn:   wphrs,
		TokenOut:  usdc,
		Fee:       500,
		Recipient: recipient,
		AmountIn:  amount,
	})
	require.NoError(t, err)
	require.Len(t, data, 4+7*32)

	assert.Equal(t, []byte{0x04, 0xe4, 0x5a, 0xaf}, data[:4])
	word := func(i int) []byte { return data[4+i*32 : 4+(i+1)*32] }
	assert.Equal(t, common.LeftPadBytes(wphrs.Bytes(), 32), word(0))
	assert.Equal(t, common.LeftPadBytes(usdc.Bytes(), 32), word(1))
	assert.Equal(t, int64(500), new(big.Int).SetBytes(word(2)).Int64())
	assert.Equal(t, common.LeftPadBytes(recipient.Bytes(), 32), word(3))
	assert.Equal(t, amount, new(big.Int).SetBytes(word(4)))
	assert.True(t, bytes.Equal(make([]byte, 64), data[4+5*32:]))

	_, err = EncodeExactInputSingle(SwapParams{})
	assert.Error(t, err)
}

func TestTransferBuildsLegacyTx(t *testing.T) {
	c, b := newTestClient(t)
	key, from := mustKey(t)
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	value := big.NewInt(10_000_000_000_000)

	receipt, err := c.Transfer(context.Background(), key, to, value)
	require.NoError(t, err)

	tx := b.lastTx(t)
	assert.Equal(t, receipt.TxHash, tx.Hash())
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(TransferGasLimit), tx.Gas())
	assert.Equal(t, 0, tx.GasPrice().Sign())
	assert.Equal(t, to, *tx.To())
	assert.Equal(t, value, tx.Value())

	sender, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	require.NoError(t, err)
	assert.Equal(t, from, sender)
}

func TestWrapUsesFixedGas(t *testing.T) {
	c, b := newTestClient(t)
	key, _ := mustKey(t)

	_, err := c.Wrap(context.Background(), key, big.NewInt(1000))
	require.NoError(t, err)

	tx := b.lastTx(t)
	assert.Equal(t, wphrs, *tx.To())
	assert.Equal(t, uint64(WrapGasLimit), tx.Gas())
	assert.Equal(t, WrapGasPrice, tx.GasPrice())
	assert.Equal(t, big.NewInt(1000), tx.Value())
	assert.Equal(t, wrappedABI.Methods["deposit"].ID, tx.Data())
}

func TestSwapSendsMulticallWithDynamicFees(t *testing.T) {
	c, b := newTestClient(t)
	key, from := mustKey(t)
	deadline := time.Unix(1_700_000_120, 0)

	_, err := c.Swap(context.Background(), key, SwapParams{
		TokenIn:   usdc,
		TokenOut:  wphrs,
		Fee:       500,
		Recipient: from,
		AmountIn:  big.NewInt(500),
		Deadline:  deadline,
	})
	require.NoError(t, err)

	tx := b.lastTx(t)
	assert.Equal(t, DefaultContracts.Router, *tx.To())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(SwapGasLimit), tx.Gas())
	assert.Equal(t, big.NewInt(params.GWei), tx.GasTipCap())
	assert.Equal(t, big.NewInt(params.GWei+14), tx.GasFeeCap())

	method := routerABI.Methods["multicall"]
	assert.Equal(t, method.ID, tx.Data()[:4])
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, big.NewInt(deadline.Unix()), args[0])
	calls := args[1].([][]byte)
	require.Len(t, calls, 1)
	assert.Equal(t, ExactInputSingleSelector, calls[0][:4])
}

func TestRevertedReceiptIsBusinessFailure(t *testing.T) {
	c, b := newTestClient(t)
	b.receiptStatus = types.ReceiptStatusFailed
	key, _ := mustKey(t)

	_, err := c.Wrap(context.Background(), key, big.NewInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrBusiness)
	assert.False(t, apperr.IsRetryable(err))
}

func TestSendErrorIsClassified(t *testing.T) {
	c, b := newTestClient(t)
	b.sendErr = errors.New("nonce too low")
	key, _ := mustKey(t)

	_, err := c.Transfer(context.Background(), key, common.Address{}, big.NewInt(1))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestTokenReads(t *testing.T) {
	c, b := newTestClient(t)
	_, owner := mustKey(t)
	b.call = func(msg ethereum.CallMsg) ([]byte, error) {
		switch {
		case bytes.Equal(msg.Data[:4], erc20ABI.Methods["balanceOf"].ID):
			return common.LeftPadBytes(big.NewInt(2_000_000).Bytes(), 32), nil
		case bytes.Equal(msg.Data[:4], erc20ABI.Methods["allowance"].ID):
			return common.LeftPadBytes(big.NewInt(5).Bytes(), 32), nil
		}
		return nil, errors.New("unexpected call")
	}

	bal, err := c.TokenBalance(context.Background(), usdc, owner)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2_000_000), bal)

	allowance, err := c.Allowance(context.Background(), usdc, owner, DefaultContracts.Router)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), allowance)

	native, err := c.NativeBalance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(params.Ether), native)
}

func TestFeeDataWithoutBaseFee(t *testing.T) {
	c, b := newTestClient(t)
	b.baseFee = nil

	fd, err := c.FeeData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(params.GWei), fd.GasPrice)
	assert.Nil(t, fd.MaxFeePerGas)
}

func TestFindLog(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{
		{Topics: []common.Hash{common.HexToHash("0x01")}},
		{Topics: []common.Hash{DepositTopic, common.BigToHash(big.NewInt(9))}},
	}}
	l := FindLog(receipt, DepositTopic)
	require.NotNil(t, l)
	assert.Equal(t, int64(9), l.Topics[1].Big().Int64())
	assert.Nil(t, FindLog(receipt, IncreaseLiquidityTopic))
	assert.Nil(t, FindLog(nil, DepositTopic))
}

func TestTokenMetadata(t *testing.T) {
	c, b := newTestClient(t)
	b.call = func(msg ethereum.CallMsg) ([]byte, error) {
		switch {
		case bytes.Equal(msg.Data[:4], erc20ABI.Methods["decimals"].ID):
			return erc20ABI.Methods["decimals"].Outputs.Pack(uint8(6))
		case bytes.Equal(msg.Data[:4], erc20ABI.Methods["symbol"].ID):
			return erc20ABI.Methods["symbol"].Outputs.Pack("USDC")
		}
		return nil, errors.New("unexpected call")
	}

	meta, err := c.TokenMetadata(context.Background(), usdc)
	require.NoError(t, err)
	assert.Equal(t, &TokenMetadata{Symbol: "USDC", Decimals: 6}, meta)
}

type metadataTable map[common.Address]*TokenMetadata

func (m metadataTable) TokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error) {
	if meta, ok := m[token]; ok {
		return meta, nil
	}
	return nil, errors.New("execution reverted")
}

func TestVerifyUnits(t *testing.T) {
	registry := currency.NewRegistry()
	registry.MustRegister(currency.DefaultPHRS)
	registry.MustRegister(currency.DefaultUSDC)
	registry.MustRegister(currency.DefaultUSDT)

	t.Run("matching", func(t *testing.T) {
		reader := metadataTable{
			currency.DefaultUSDC.Address: {Symbol: "USDC", Decimals: 6},
			currency.DefaultUSDT.Address: {Symbol: "USDT", Decimals: 6},
		}
		assert.NoError(t, VerifyUnits(context.Background(), reader, registry))
	})

	t.Run("decimals mismatch is fatal", func(t *testing.T) {
		reader := metadataTable{
			currency.DefaultUSDC.Address: {Symbol: "USDC", Decimals: 18},
			currency.DefaultUSDT.Address: {Symbol: "USDT", Decimals: 6},
		}
		err := VerifyUnits(context.Background(), reader, registry)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrFatal)
	})

	t.Run("unreadable token", func(t *testing.T) {
		reader := metadataTable{currency.DefaultUSDC.Address: {Symbol: "USDC", Decimals: 6}}
		err := VerifyUnits(context.Background(), reader, registry)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "USDT")
	})
}
