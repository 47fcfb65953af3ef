package collector

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/carlmjohnson/flowmatic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pharos-autotask/pharos-autotask/pkg/accounts"
	"github.com/pharos-autotask/pharos-autotask/pkg/currency"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

const (
	DefaultMaxConcurrency = 10
	DefaultTimeout        = 10 * time.Second
)

// BalanceSource reads balances. *chain.Client implements it.
type BalanceSource interface {
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// BaseResult is the balance of one account in one unit.
type BaseResult struct {
	Account *accounts.Account
	Unit    *currency.Unit
	Value   float64
	Health  float64
}

// BalanceCollector reports the native and token balances of every account
// on scrape.
type BalanceCollector struct {
	network  string
	source   BalanceSource
	accounts []*accounts.Account
	units    []*currency.Unit
	timeout  time.Duration

	balance *prometheus.Desc
	health  *prometheus.Desc

	collectMutex sync.Mutex
}

type CollectorOption func(*BalanceCollector)

// WithCollectorTimeout bounds a single scrape.
func WithCollectorTimeout(timeout time.Duration) CollectorOption {
	return func(c *BalanceCollector) {
		c.timeout = timeout
	}
}

func NewBalanceCollector(network string, source BalanceSource, accts []*accounts.Account, tokens *currency.Registry, opts ...CollectorOption) *BalanceCollector {
	constLabels := prometheus.Labels{"network": network}
	c := &BalanceCollector{
		network:  network,
		source:   source,
		accounts: accts,
		units:    tokens.List(),
		timeout:  DefaultTimeout,
		balance: prometheus.NewDesc(
			"pharos_wallet_balance",
			"Balance of bot wallets",
			[]string{"address", "unit"}, constLabels,
		),
		health: prometheus.NewDesc(
			"pharos_wallet_health",
			"Whether the last balance read of a wallet succeeded",
			[]string{"address", "unit"}, constLabels,
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type job struct {
	account *accounts.Account
	unit    *currency.Unit
}

func (c *BalanceCollector) collectBalances() []*BaseResult {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	jobs := make([]job, 0, len(c.accounts)*len(c.units))
	for _, a := range c.accounts {
		for _, u := range c.units {
			jobs = append(jobs, job{account: a, unit: u})
		}
	}

	resultsChan := make(chan *BaseResult, len(jobs))
	err := flowmatic.Each(DefaultMaxConcurrency, jobs, func(j job) error {
		result := &BaseResult{Account: j.account, Unit: j.unit}
		balance, err := c.read(ctx, j)
		if err != nil {
			logger.Errorf("error collecting %s balance for %s: %v", j.unit.Symbol, j.account.Address.Hex(), err)
		} else {
			result.Value = currency.ToFloat(balance, j.unit.Decimals)
			result.Health = 1
		}
		resultsChan <- result
		return nil
	})
	if err != nil {
		logger.Errorf("error in collection process: %v", err)
	}

	close(resultsChan)
	results := make([]*BaseResult, 0, len(jobs))
	for r := range resultsChan {
		results = append(results, r)
	}
	return results
}

func (c *BalanceCollector) read(ctx context.Context, j job) (*big.Int, error) {
	if j.unit.IsNative() {
		return c.source.NativeBalance(ctx, j.account.Address)
	}
	return c.source.TokenBalance(ctx, j.unit.Address, j.account.Address)
}

func (c *BalanceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.balance
	ch <- c.health
}

func (c *BalanceCollector) Collect(ch chan<- prometheus.Metric) {
	c.collectMutex.Lock()
	defer c.collectMutex.Unlock()
	logger.Debugf("collecting balances on %s", c.network)

	for _, r := range c.collectBalances() {
		address := r.Account.Address.Hex()
		ch <- prometheus.MustNewConstMetric(c.health, prometheus.GaugeValue, r.Health, address, r.Unit.Symbol)
		if r.Health > 0 {
			ch <- prometheus.MustNewConstMetric(c.balance, prometheus.GaugeValue, r.Value, address, r.Unit.Symbol)
		}
	}
}
