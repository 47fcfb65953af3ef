package tasks

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pharos-autotask/pharos-autotask/pkg/accounts"
	"github.com/pharos-autotask/pharos-autotask/pkg/chain"
	"github.com/pharos-autotask/pharos-autotask/pkg/currency"
	"github.com/pharos-autotask/pharos-autotask/pkg/pharos"
	"github.com/pharos-autotask/pharos-autotask/pkg/retry"
	"github.com/pharos-autotask/pharos-autotask/pkg/session"
	"github.com/pharos-autotask/pharos-autotask/pkg/shutdown"
)

// Chain is the blockchain side of the catalog. *chain.Client implements it.
type Chain interface {
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Transfer(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int) (*types.Receipt, error)
	Wrap(ctx context.Context, key *ecdsa.PrivateKey, value *big.Int) (*types.Receipt, error)
	Approve(ctx context.Context, key *ecdsa.PrivateKey, token, spender common.Address, amount *big.Int) (*types.Receipt, error)
	Swap(ctx context.Context, key *ecdsa.PrivateKey, p chain.SwapParams) (*types.Receipt, error)
	Mint(ctx context.Context, key *ecdsa.PrivateKey, p chain.MintParams) (*types.Receipt, error)
}

var _ Chain = (*chain.Client)(nil)

// Run is everything one account pipeline run shares: the identity, the
// egress path chosen for this cycle and the collaborators built on it.
type Run struct {
	Account   *accounts.Account
	Proxy     string
	UserAgent string
	API       pharos.API
	Chain     Chain
}

// Window is a half-open random delay range [Min, Max).
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Pick draws a duration from w using rnd (a [0,1) source).
func (w Window) Pick(rnd func() float64) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + time.Duration(rnd()*float64(w.Max-w.Min))
}

// Range is a half-open amount range in display units.
type Range struct {
	Min float64
	Max float64
}

// Settings are the amounts, identifiers and timings of every operation.
type Settings struct {
	LoginMessage string
	VerifyTaskID int

	TransferAmount string
	Settle         Window

	LiquidityWrapped  string
	LiquidityStable   string
	LiquidityFee      int64
	TickLower         int64
	TickUpper         int64
	LiquidityDeadline time.Duration

	WrapAmount Range
	WrapPlaces int

	SwapAmount   Range
	SwapFee      int64
	SwapDeadline time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		LoginMessage:      pharos.LoginMessage,
		VerifyTaskID:      pharos.DefaultVerifyTaskID,
		TransferAmount:    "0.00001",
		Settle:            Window{Min: 5 * time.Second, Max: 6 * time.Second},
		LiquidityWrapped:  "0.001",
		LiquidityStable:   "2",
		LiquidityFee:      500,
		TickLower:         44410,
		TickUpper:         44460,
		LiquidityDeadline: 20 * time.Minute,
		WrapAmount:        Range{Min: 0.001, Max: 0.005},
		WrapPlaces:        5,
		SwapAmount:        Range{Min: 0.0001, Max: 0.001},
		SwapFee:           500,
		SwapDeadline:      2 * time.Minute,
	}
}

// SwapPair is a direction the random swap may take.
type SwapPair struct {
	From string
	To   string
}

// DefaultSwapPairs are the directions with pool liquidity.
var DefaultSwapPairs = []SwapPair{
	{From: "WPHRS", To: "USDC"},
	{From: "USDC", To: "WPHRS"},
	{From: "WPHRS", To: "USDT"},
	{From: "USDC", To: "USDT"},
}

// Catalog holds the concrete operations of an account pipeline. Each
// operation runs through the retry executor; none of them mutates state
// other than the session cache.
type Catalog struct {
	Sessions   *session.Cache
	Retry      *retry.Executor
	Recipients []common.Address
	Tokens     *currency.Registry
	Contracts  chain.Contracts
	Settings   Settings
	SwapPairs  []SwapPair

	// Sleep waits between the transfer and its verification. It returns
	// false when interrupted.
	Sleep func(ctx context.Context, d time.Duration) bool
	// Float64 and Intn are the random sources.
	Float64 func() float64
	Intn    func(n int) int
	Now     func() time.Time
}

// NewCatalog returns a catalog with default settings and random sources.
func NewCatalog(sessions *session.Cache, executor *retry.Executor, recipients []common.Address, tokens *currency.Registry) *Catalog {
	return &Catalog{
		Sessions:   sessions,
		Retry:      executor,
		Recipients: recipients,
		Tokens:     tokens,
		Contracts:  chain.DefaultContracts,
		Settings:   DefaultSettings(),
		SwapPairs:  DefaultSwapPairs,
	}
}

func (c *Catalog) sleep(ctx context.Context, d time.Duration) bool {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	var halt <-chan struct{}
	if c.Retry != nil && c.Retry.Halt != nil {
		halt = c.Retry.Halt.Done()
	}
	return shutdown.SleepContext(ctx, halt, d)
}

func (c *Catalog) float64() float64 {
	if c.Float64 != nil {
		return c.Float64()
	}
	return rand.Float64()
}

func (c *Catalog) intn(n int) int {
	if c.Intn != nil {
		return c.Intn(n)
	}
	return rand.Intn(n)
}

func (c *Catalog) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
