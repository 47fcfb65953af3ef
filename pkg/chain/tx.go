package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"

	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

const (
	TransferGasLimit = 21000
	WrapGasLimit     = 30000
	SwapGasLimit     = 300000
	MintGasLimit     = 600000
)

// WrapGasPrice is the fixed legacy gas price of deposit calls.
var WrapGasPrice = big.NewInt(params.GWei)

// DefaultPriorityFee is used when the node cannot suggest a tip.
var DefaultPriorityFee = big.NewInt(params.GWei)

// FeeData mirrors the fee estimate the EIP-1559 swap uses.
type FeeData struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// FeeData estimates fees from the latest header: max fee is twice the base
// fee plus the priority tip.
func (c *Client) FeeData(ctx context.Context) (*FeeData, error) {
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, apperr.FromTransport("fee data", fmt.Errorf("failed to fetch latest header: %w", err))
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, apperr.FromTransport("fee data", fmt.Errorf("failed to fetch gas price: %w", err))
	}

	fd := &FeeData{GasPrice: gasPrice}
	if head.BaseFee == nil {
		return fd, nil
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		tip = new(big.Int).Set(DefaultPriorityFee)
	}
	fd.MaxPriorityFeePerGas = tip
	fd.MaxFeePerGas = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	return fd, nil
}

func (c *Client) transactor(ctx context.Context, key *ecdsa.PrivateKey) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// waitMined blocks until tx is included and fails on a reverted receipt.
func (c *Client) waitMined(ctx context.Context, op string, tx *types.Transaction) (*types.Receipt, error) {
	logger.Debugf("%s transaction %s sent, waiting for confirmation...", op, tx.Hash().Hex())
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Timeout(op, err)
		}
		return nil, apperr.FromTransport(op, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, apperr.Businessf(op, "transaction %s reverted in block %s", tx.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}

func sendErr(op string, err error) error {
	return apperr.FromTransport(op, fmt.Errorf("failed to send transaction: %w", err))
}

// Transfer sends value native coin to `to` as a legacy transaction.
func (c *Client) Transfer(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int) (*types.Receipt, error) {
	const op = "transfer"
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, apperr.FromTransport(op, fmt.Errorf("failed to fetch nonce: %w", err))
	}
	gasPrice := c.opts.TransferGasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}

	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(c.chainID), &types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(value),
		Gas:      TransferGasLimit,
		GasPrice: new(big.Int).Set(gasPrice),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return nil, sendErr(op, err)
	}
	return c.waitMined(ctx, op, tx)
}

// Wrap deposits value native coin into the wrapped token contract.
func (c *Client) Wrap(ctx context.Context, key *ecdsa.PrivateKey, value *big.Int) (*types.Receipt, error) {
	const op = "wrap"
	opts, err := c.transactor(ctx, key)
	if err != nil {
		return nil, err
	}
	opts.Value = new(big.Int).Set(value)
	opts.GasLimit = WrapGasLimit
	opts.GasPrice = new(big.Int).Set(WrapGasPrice)

	tx, err := c.wrapped.Transact(opts, "deposit")
	if err != nil {
		return nil, sendErr(op, err)
	}
	return c.waitMined(ctx, op, tx)
}

// Approve lets spender move amount of token.
func (c *Client) Approve(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	const op = "approve"
	opts, err := c.transactor(ctx, key)
	if err != nil {
		return nil, err
	}
	tx, err := c.token(token).Transact(opts, "approve", spender, amount)
	if err != nil {
		return nil, sendErr(op, err)
	}
	return c.waitMined(ctx, op, tx)
}

// SwapParams describes one exact-input single-pool swap.
type SwapParams struct {
	TokenIn   common.Address
	TokenOut  common.Address
	Fee       int64
	Recipient common.Address
	AmountIn  *big.Int
	Deadline  time.Time
}

// EncodeExactInputSingle builds the selector-prefixed call the router
// executes inside multicall. Minimum output and price limit are zero.
func EncodeExactInputSingle(p SwapParams) ([]byte, error) {
	if p.AmountIn == nil {
		return nil, fmt.Errorf("swap amount is required")
	}
	packed, err := exactInputSingleArgs.Pack(
		p.TokenIn,
		p.TokenOut,
		big.NewInt(p.Fee),
		p.Recipient,
		p.AmountIn,
		new(big.Int),
		new(big.Int),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap: %w", err)
	}
	return append(append([]byte{}, ExactInputSingleSelector...), packed...), nil
}

// Swap submits router multicall(deadline, [exactInputSingle]) with EIP-1559
// fees from FeeData.
func (c *Client) Swap(ctx context.Context, key *ecdsa.PrivateKey, p SwapParams) (*types.Receipt, error) {
	const op = "swap"
	call, err := EncodeExactInputSingle(p)
	if err != nil {
		return nil, err
	}
	fees, err := c.FeeData(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := c.transactor(ctx, key)
	if err != nil {
		return nil, err
	}
	opts.GasLimit = SwapGasLimit
	if fees.MaxFeePerGas != nil {
		opts.GasFeeCap = fees.MaxFeePerGas
		opts.GasTipCap = fees.MaxPriorityFeePerGas
	} else {
		opts.GasPrice = fees.GasPrice
	}

	tx, err := c.router.Transact(opts, "multicall", big.NewInt(p.Deadline.Unix()), [][]byte{call})
	if err != nil {
		return nil, sendErr(op, err)
	}
	return c.waitMined(ctx, op, tx)
}

// MintParams is the position manager mint tuple.
type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

// Mint opens a concentrated liquidity position.
func (c *Client) Mint(ctx context.Context, key *ecdsa.PrivateKey, p MintParams) (*types.Receipt, error) {
	const op = "mint"
	opts, err := c.transactor(ctx, key)
	if err != nil {
		return nil, err
	}
	opts.GasLimit = MintGasLimit

	tx, err := c.position.Transact(opts, "mint", p)
	if err != nil {
		return nil, sendErr(op, err)
	}
	return c.waitMined(ctx, op, tx)
}

// FindLog returns the first receipt log whose first topic is topic.
func FindLog(receipt *types.Receipt, topic common.Hash) *types.Log {
	if receipt == nil {
		return nil
	}
	for _, l := range receipt.Logs {
		if len(l.Topics) > 0 && l.Topics[0] == topic {
			return l
		}
	}
	return nil
}
