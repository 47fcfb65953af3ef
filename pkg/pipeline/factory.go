package pipeline

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pharos-autotask/pharos-autotask/pkg/accounts"
	"github.com/pharos-autotask/pharos-autotask/pkg/chain"
	"github.com/pharos-autotask/pharos-autotask/pkg/egress"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
	"github.com/pharos-autotask/pharos-autotask/pkg/pharos"
	"github.com/pharos-autotask/pharos-autotask/pkg/retry"
	"github.com/pharos-autotask/pharos-autotask/pkg/tasks"
)

// Factory builds the collaborators of one account pipeline run. release
// frees whatever NewRun opened.
type Factory interface {
	NewRun(ctx context.Context, acct *accounts.Account, proxy string) (run *tasks.Run, release func(), err error)
}

// ClientFactory dials the task API and the chain through the selected
// egress path. API calls are bounded by API.Timeout, RPC calls by
// HTTPTimeout.
type ClientFactory struct {
	API         pharos.Options
	Chain       chain.Options
	HTTPTimeout time.Duration
	Retry       *retry.Executor
}

var _ Factory = (*ClientFactory)(nil)

func (f *ClientFactory) NewRun(ctx context.Context, acct *accounts.Account, proxy string) (*tasks.Run, func(), error) {
	apiClient, err := egress.NewHTTPClient(proxy, f.API.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build api client: %w", err)
	}
	httpClient, err := egress.NewHTTPClient(proxy, f.HTTPTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build rpc client: %w", err)
	}
	ua := pharos.RandomUserAgent()
	run := &tasks.Run{
		Account:   acct,
		Proxy:     proxy,
		UserAgent: ua,
		API:       pharos.NewClient(f.API, apiClient),
	}

	opts := f.Chain
	opts.UserAgent = ua
	out := retry.Do(ctx, f.Retry, "Provider setup", func(ctx context.Context) (*chain.Client, error) {
		return chain.Dial(ctx, opts, httpClient)
	})
	if err := out.Error(); err != nil {
		// API steps can still run; chain steps fail with the dial error.
		logger.ErrorContext(ctx, fmt.Sprintf("Failed to connect to rpc: %v", err))
		run.Chain = unavailableChain{err: err}
		return run, func() {}, nil
	}
	run.Chain = out.Value
	return run, out.Value.Close, nil
}

// unavailableChain fails every call with the error that prevented dialing.
type unavailableChain struct {
	err error
}

var _ tasks.Chain = unavailableChain{}

func (u unavailableChain) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return nil, u.err
}

func (u unavailableChain) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return nil, u.err
}

func (u unavailableChain) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return nil, u.err
}

func (u unavailableChain) Transfer(context.Context, *ecdsa.PrivateKey, common.Address, *big.Int) (*types.Receipt, error) {
	return nil, u.err
}

func (u unavailableChain) Wrap(context.Context, *ecdsa.PrivateKey, *big.Int) (*types.Receipt, error) {
	return nil, u.err
}

func (u unavailableChain) Approve(context.Context, *ecdsa.PrivateKey, common.Address, common.Address, *big.Int) (*types.Receipt, error) {
	return nil, u.err
}

func (u unavailableChain) Swap(context.Context, *ecdsa.PrivateKey, chain.SwapParams) (*types.Receipt, error) {
	return nil, u.err
}

func (u unavailableChain) Mint(context.Context, *ecdsa.PrivateKey, chain.MintParams) (*types.Receipt, error) {
	return nil, u.err
}
