package tasks

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
	"github.com/pharos-autotask/pharos-autotask/pkg/chain"
	"github.com/pharos-autotask/pharos-autotask/pkg/currency"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
	"github.com/pharos-autotask/pharos-autotask/pkg/pharos"
	"github.com/pharos-autotask/pharos-autotask/pkg/retry"
	"github.com/pharos-autotask/pharos-autotask/pkg/session"
)

// Authenticate returns the cached session of the account, logging in when
// there is none. Failed logins are never cached.
func (c *Catalog) Authenticate(ctx context.Context, run *Run) (*session.Session, error) {
	addr := run.Account.Address
	s, cached, err := c.Sessions.GetOrCreate(ctx, addr, func(ctx context.Context) (*session.Session, error) {
		out := retry.Do(ctx, c.Retry, "Login", func(ctx context.Context) (*session.Session, error) {
			sig, err := run.Account.SignMessage(c.Settings.LoginMessage)
			if err != nil {
				return nil, err
			}
			logger.DebugContext(ctx, "Sending login request...")
			headers := pharos.BaseHeaders(run.UserAgent)
			token, err := run.API.Login(ctx, addr, sig, headers)
			if err != nil {
				return nil, err
			}
			return &session.Session{Headers: pharos.WithBearer(headers, token), Token: token}, nil
		})
		return out.Value, out.Error()
	})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if !cached {
		logger.InfoContext(ctx, "Login successful")
	}
	return s, nil
}

// CheckIn performs the daily check-in.
func (c *Catalog) CheckIn(ctx context.Context, run *Run) error {
	s, err := c.Authenticate(ctx, run)
	if err != nil {
		return err
	}
	out := retry.Do(ctx, c.Retry, "Check-in", func(ctx context.Context) (struct{}, error) {
		logger.DebugContext(ctx, "Sending daily check-in request...")
		return struct{}{}, run.API.CheckIn(ctx, run.Account.Address, s.Header())
	})
	if err := out.Error(); err != nil {
		return err
	}
	logger.InfoContext(ctx, fmt.Sprintf("Check-in successful for %s", run.Account.Address.Hex()))
	return nil
}

// ClaimFaucet claims the daily faucet drip.
func (c *Catalog) ClaimFaucet(ctx context.Context, run *Run) error {
	s, err := c.Authenticate(ctx, run)
	if err != nil {
		return err
	}
	out := retry.Do(ctx, c.Retry, "Faucet claim", func(ctx context.Context) (struct{}, error) {
		logger.DebugContext(ctx, "Sending faucet request...")
		return struct{}{}, run.API.ClaimFaucet(ctx, run.Account.Address, s.Header())
	})
	if err := out.Error(); err != nil {
		return err
	}
	logger.InfoContext(ctx, fmt.Sprintf("Faucet claim successful for %s", run.Account.Address.Hex()))
	return nil
}

// VerifyTransfer sends a small native transfer to a random recipient and
// reports its hash to the verification endpoint. index is zero based.
func (c *Catalog) VerifyTransfer(ctx context.Context, run *Run, index int) (common.Hash, error) {
	s, err := c.Authenticate(ctx, run)
	if err != nil {
		return common.Hash{}, err
	}
	if len(c.Recipients) == 0 {
		return common.Hash{}, apperr.Business("transfer", "no recipients configured")
	}

	amount, err := currency.ParseUnits(c.Settings.TransferAmount, currency.DefaultPHRS.Decimals)
	if err != nil {
		return common.Hash{}, err
	}

	transfer := retry.Do(ctx, c.Retry, "Transfer", func(ctx context.Context) (common.Hash, error) {
		to := c.Recipients[c.intn(len(c.Recipients))]
		logger.InfoContext(ctx, fmt.Sprintf("Preparing transfer %d: %s PHRS to %s", index+1, c.Settings.TransferAmount, to.Hex()))

		balance, err := run.Chain.NativeBalance(ctx, run.Account.Address)
		if err != nil {
			return common.Hash{}, err
		}
		if balance.Cmp(amount) < 0 {
			return common.Hash{}, apperr.Businessf("transfer", "insufficient PHRS balance: %s < %s",
				currency.FormatUnits(balance, 18), c.Settings.TransferAmount)
		}
		receipt, err := run.Chain.Transfer(ctx, run.Account.Key, to, amount)
		if err != nil {
			return common.Hash{}, err
		}
		logger.InfoContext(ctx, fmt.Sprintf("Transfer %d completed: %s", index+1, receipt.TxHash.Hex()))
		return receipt.TxHash, nil
	})
	if err := transfer.Error(); err != nil {
		return common.Hash{}, fmt.Errorf("transfer failed, skipping verification: %w", err)
	}
	hash := transfer.Value

	if !c.sleep(ctx, c.Settings.Settle.Pick(c.float64)) {
		return hash, retry.ErrHalted
	}

	verify := retry.Do(ctx, c.Retry, "Verification", func(ctx context.Context) (struct{}, error) {
		logger.DebugContext(ctx, "Sending verification request...")
		return struct{}{}, run.API.VerifyTask(ctx, run.Account.Address, c.Settings.VerifyTaskID, hash, s.Header())
	})
	if err := verify.Error(); err != nil {
		return hash, err
	}
	logger.InfoContext(ctx, fmt.Sprintf("Verification successful for %s", run.Account.Address.Hex()))
	return hash, nil
}

// ensureAllowance approves spender for amount when the current allowance is
// short.
func (c *Catalog) ensureAllowance(ctx context.Context, run *Run, token *currency.Unit, spender common.Address, amount *big.Int) error {
	allowance, err := run.Chain.Allowance(ctx, token.Address, run.Account.Address, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}
	logger.InfoContext(ctx, fmt.Sprintf("Approving %s...", token.Symbol))
	if _, err := run.Chain.Approve(ctx, run.Account.Key, token.Address, spender, amount); err != nil {
		return err
	}
	logger.InfoContext(ctx, fmt.Sprintf("%s approval successful!", token.Symbol))
	return nil
}

// AddLiquidity mints a WPHRS/USDC position in the configured tick range.
func (c *Catalog) AddLiquidity(ctx context.Context, run *Run) (common.Hash, error) {
	wrapped, err := c.Tokens.Get("WPHRS")
	if err != nil {
		return common.Hash{}, err
	}
	stable, err := c.Tokens.Get("USDC")
	if err != nil {
		return common.Hash{}, err
	}
	amount0, err := currency.ParseUnits(c.Settings.LiquidityWrapped, wrapped.Decimals)
	if err != nil {
		return common.Hash{}, err
	}
	amount1, err := currency.ParseUnits(c.Settings.LiquidityStable, stable.Decimals)
	if err != nil {
		return common.Hash{}, err
	}

	out := retry.Do(ctx, c.Retry, "Liquidity addition", func(ctx context.Context) (common.Hash, error) {
		logger.InfoContext(ctx, "Preparing liquidity addition...")
		balance, err := run.Chain.TokenBalance(ctx, stable.Address, run.Account.Address)
		if err != nil {
			return common.Hash{}, err
		}
		if balance.Cmp(amount1) < 0 {
			return common.Hash{}, apperr.Businessf("liquidity", "insufficient USDC balance! Required: %s USDC, Available: %s USDC",
				currency.FormatUnits(amount1, stable.Decimals), currency.FormatUnits(balance, stable.Decimals))
		}

		manager := c.Contracts.PositionManager
		if err := c.ensureAllowance(ctx, run, stable, manager, amount1); err != nil {
			return common.Hash{}, err
		}
		if err := c.ensureAllowance(ctx, run, wrapped, manager, amount0); err != nil {
			return common.Hash{}, err
		}

		logger.InfoContext(ctx, "Sending mint liquidity transaction...")
		receipt, err := run.Chain.Mint(ctx, run.Account.Key, chain.MintParams{
			Token0:         wrapped.Address,
			Token1:         stable.Address,
			Fee:            big.NewInt(c.Settings.LiquidityFee),
			TickLower:      big.NewInt(c.Settings.TickLower),
			TickUpper:      big.NewInt(c.Settings.TickUpper),
			Amount0Desired: amount0,
			Amount1Desired: amount1,
			Amount0Min:     new(big.Int),
			Amount1Min:     new(big.Int),
			Recipient:      run.Account.Address,
			Deadline:       big.NewInt(c.now().Add(c.Settings.LiquidityDeadline).Unix()),
		})
		if err != nil {
			return common.Hash{}, err
		}
		if l := chain.FindLog(receipt, chain.IncreaseLiquidityTopic); l != nil && len(l.Topics) > 1 {
			logger.InfoContext(ctx, fmt.Sprintf("Liquidity successfully added! Position %s", l.Topics[1].Big()))
		} else {
			logger.InfoContext(ctx, "Liquidity transaction confirmed, event not found")
		}
		return receipt.TxHash, nil
	})
	return out.Value, out.Error()
}

// WrapSwap wraps a random amount of native coin and reports the hash.
func (c *Catalog) WrapSwap(ctx context.Context, run *Run, index int) (common.Hash, error) {
	native := currency.DefaultPHRS
	if n, err := c.Tokens.Native(); err == nil {
		native = n
	}
	r := c.Settings.WrapAmount
	amount, err := currency.RandomAmount(r.Min, r.Max, c.Settings.WrapPlaces, native.Decimals, c.float64)
	if err != nil {
		return common.Hash{}, err
	}
	display := currency.FormatUnits(amount, native.Decimals)

	out := retry.Do(ctx, c.Retry, "Wrap", func(ctx context.Context) (common.Hash, error) {
		logger.InfoContext(ctx, fmt.Sprintf("Starting to wrap %s PHRS -> WPHRS for %s...", display, run.Account.Address.Hex()))
		balance, err := run.Chain.NativeBalance(ctx, run.Account.Address)
		if err != nil {
			return common.Hash{}, err
		}
		if balance.Cmp(amount) < 0 {
			return common.Hash{}, apperr.Businessf("wrap", "insufficient balance! Need %s PHRS, only have %s PHRS",
				display, currency.FormatUnits(balance, native.Decimals))
		}
		receipt, err := run.Chain.Wrap(ctx, run.Account.Key, amount)
		if err != nil {
			return common.Hash{}, err
		}
		if chain.FindLog(receipt, chain.DepositTopic) == nil {
			logger.DebugContext(ctx, "Wrapping successful but event not found")
		}
		return receipt.TxHash, nil
	})
	if err := out.Error(); err != nil {
		return common.Hash{}, err
	}
	logger.InfoContext(ctx, fmt.Sprintf("Swap %d successful! Tx Hash: %s", index+1, out.Value.Hex()))
	return out.Value, nil
}

// RandomSwap swaps a random amount along a random pair through the router.
func (c *Catalog) RandomSwap(ctx context.Context, run *Run, index int) (common.Hash, error) {
	pairs := c.SwapPairs
	if len(pairs) == 0 {
		pairs = DefaultSwapPairs
	}

	out := retry.Do(ctx, c.Retry, "Swap", func(ctx context.Context) (common.Hash, error) {
		pair := pairs[c.intn(len(pairs))]
		from, err := c.Tokens.Get(pair.From)
		if err != nil {
			return common.Hash{}, err
		}
		to, err := c.Tokens.Get(pair.To)
		if err != nil {
			return common.Hash{}, err
		}
		r := c.Settings.SwapAmount
		amount, err := currency.RandomAmount(r.Min, r.Max, from.Decimals, from.Decimals, c.float64)
		if err != nil {
			return common.Hash{}, err
		}

		logger.InfoContext(ctx, fmt.Sprintf("Starting swap %d (%s → %s), amount %s %s",
			index+1, from.Symbol, to.Symbol, currency.FormatUnits(amount, from.Decimals), from.Symbol))

		balance, err := run.Chain.TokenBalance(ctx, from.Address, run.Account.Address)
		if err != nil {
			return common.Hash{}, err
		}
		if balance.Cmp(amount) < 0 {
			return common.Hash{}, apperr.Businessf("swap", "insufficient %s balance: %s", from.Symbol, currency.FormatUnits(balance, from.Decimals))
		}
		if err := c.ensureAllowance(ctx, run, from, c.Contracts.Router, amount); err != nil {
			return common.Hash{}, err
		}

		receipt, err := run.Chain.Swap(ctx, run.Account.Key, chain.SwapParams{
			TokenIn:   from.Address,
			TokenOut:  to.Address,
			Fee:       c.Settings.SwapFee,
			Recipient: run.Account.Address,
			AmountIn:  amount,
			Deadline:  c.now().Add(c.Settings.SwapDeadline),
		})
		if err != nil {
			return common.Hash{}, err
		}
		logger.InfoContext(ctx, fmt.Sprintf("Swap %d successful! Block: %s", index+1, receipt.BlockNumber))
		return receipt.TxHash, nil
	})
	return out.Value, out.Error()
}
