package pipeline

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharos-autotask/pharos-autotask/pkg/accounts"
	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
	"github.com/pharos-autotask/pharos-autotask/pkg/chain"
	"github.com/pharos-autotask/pharos-autotask/pkg/currency"
	"github.com/pharos-autotask/pharos-autotask/pkg/egress"
	"github.com/pharos-autotask/pharos-autotask/pkg/guard"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
	"github.com/pharos-autotask/pharos-autotask/pkg/retry"
	"github.com/pharos-autotask/pharos-autotask/pkg/session"
	"github.com/pharos-autotask/pharos-autotask/pkg/shutdown"
	"github.com/pharos-autotask/pharos-autotask/pkg/tasks"
)

func init() {
	_ = logger.InitLogger()
}

type stubAPI struct {
	mu         sync.Mutex
	calls      []string
	blockCheck bool
}

func (s *stubAPI) add(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubAPI) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubAPI) Login(ctx context.Context, address common.Address, signature string, headers map[string]string) (string, error) {
	s.add("login")
	return "token", nil
}

func (s *stubAPI) CheckIn(ctx context.Context, address common.Address, headers map[string]string) error {
	s.add("checkin")
	if s.blockCheck {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (s *stubAPI) ClaimFaucet(ctx context.Context, address common.Address, headers map[string]string) error {
	s.add("faucet")
	return nil
}

func (s *stubAPI) VerifyTask(ctx context.Context, address common.Address, taskID int, txHash common.Hash, headers map[string]string) error {
	s.add("verify")
	return nil
}

// richChain holds enough of every token and approves everything.
type richChain struct {
	mu    sync.Mutex
	txs   int
	calls []string
}

func (r *richChain) receipt(call string) (*types.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs++
	r.calls = append(r.calls, call)
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      common.BigToHash(big.NewInt(int64(r.txs))),
		BlockNumber: big.NewInt(int64(r.txs)),
	}, nil
}

func (r *richChain) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (r *richChain) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int).Mul(big.NewInt(1e18), big.NewInt(1000)), nil
}

func (r *richChain) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int).Lsh(big.NewInt(1), 255), nil
}

func (r *richChain) Transfer(context.Context, *ecdsa.PrivateKey, common.Address, *big.Int) (*types.Receipt, error) {
	return r.receipt("transfer")
}

func (r *richChain) Wrap(context.Context, *ecdsa.PrivateKey, *big.Int) (*types.Receipt, error) {
	return r.receipt("wrap")
}

func (r *richChain) Approve(context.Context, *ecdsa.PrivateKey, common.Address, common.Address, *big.Int) (*types.Receipt, error) {
	return r.receipt("approve")
}

func (r *richChain) Swap(context.Context, *ecdsa.PrivateKey, chain.SwapParams) (*types.Receipt, error) {
	return r.receipt("swap")
}

func (r *richChain) Mint(context.Context, *ecdsa.PrivateKey, chain.MintParams) (*types.Receipt, error) {
	return r.receipt("mint")
}

type stubFactory struct {
	api      *stubAPI
	chain    tasks.Chain
	err      error
	released bool
	proxies  []string
}

func (f *stubFactory) NewRun(ctx context.Context, acct *accounts.Account, proxy string) (*tasks.Run, func(), error) {
	f.proxies = append(f.proxies, proxy)
	if f.err != nil {
		return nil, nil, f.err
	}
	return &tasks.Run{Account: acct, Proxy: proxy, API: f.api, Chain: f.chain, UserAgent: "ua"},
		func() { f.released = true }, nil
}

type step struct {
	name   string
	status Status
}

type memRecorder struct {
	mu    sync.Mutex
	steps []step
}

func (m *memRecorder) ObserveStep(name string, status Status, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step{name, status})
}

func (m *memRecorder) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.steps))
	for i, s := range m.steps {
		out[i] = s.name
	}
	return out
}

func (m *memRecorder) statuses(name string) []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Status
	for _, s := range m.steps {
		if s.name == name {
			out = append(out, s.status)
		}
	}
	return out
}

type fixture struct {
	pipeline *Pipeline
	factory  *stubFactory
	recorder *memRecorder
	halt     *shutdown.Coordinator
	delays   []time.Duration
	acct     *accounts.Account
}

func newFixture(t *testing.T, c tasks.Chain) *fixture {
	t.Helper()
	acct, err := accounts.NewAccount("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	recipients := make([]common.Address, accounts.RecipientCount)
	for i := range recipients {
		recipients[i] = common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
	}

	halt := shutdown.NewCoordinator(time.Second)
	halt.Exit = nil

	catalog := tasks.NewCatalog(
		session.NewCache(),
		retry.NewExecutor(retry.Policy{MaxRetries: 2, Delay: time.Millisecond}, halt),
		recipients,
		currency.NewDefaultRegistry(),
	)
	catalog.Sleep = func(context.Context, time.Duration) bool { return !halt.ShuttingDown() }
	catalog.Float64 = func() float64 { return 0.5 }

	f := &fixture{
		factory:  &stubFactory{api: &stubAPI{}, chain: c},
		recorder: &memRecorder{},
		halt:     halt,
		acct:     acct,
	}
	f.pipeline = &Pipeline{
		Catalog:  catalog,
		Guard:    guard.New(time.Minute, halt),
		Halt:     halt,
		Factory:  f.factory,
		Selector: egress.Selector{Intn: func(int) int { return 0 }},
		Proxies:  []string{"http://10.0.0.1:8080", "http://10.0.0.2:8080"},
		Delays:   DefaultDelays(),
		Recorder: f.recorder,
		Float64:  func() float64 { return 0 },
	}
	f.pipeline.Sleep = func(ctx context.Context, d time.Duration) bool {
		f.delays = append(f.delays, d)
		return !halt.ShuttingDown()
	}
	return f
}

func TestStepNamesOrder(t *testing.T) {
	assert.Equal(t, []string{
		"authenticate", "check-in", "faucet",
		"verify", "verify", "verify", "verify", "verify",
		"liquidity", "wrap-swap", "random-swap",
	}, StepNames())
}

func TestProcessRunsEveryStepInOrder(t *testing.T) {
	f := newFixture(t, &richChain{})

	f.pipeline.Process(context.Background(), f.acct)

	assert.Equal(t, StepNames(), f.recorder.names())
	for _, name := range StepNames() {
		for _, s := range f.recorder.statuses(name) {
			assert.Equal(t, StatusSuccess, s, name)
		}
	}
	assert.Equal(t, []string{
		"login", "checkin", "faucet",
		"verify", "verify", "verify", "verify", "verify",
	}, f.factory.api.Calls())
	assert.True(t, f.factory.released)
	assert.Equal(t, []string{"http://10.0.0.1:8080"}, f.factory.proxies)

	d := DefaultDelays()
	assert.Equal(t, []time.Duration{
		d.Verify.Min, d.Verify.Min, d.Verify.Min, d.Verify.Min, d.Verify.Min,
		d.Liquidity.Min, d.WrapSwap.Min, d.RandomSwap.Min,
	}, f.delays)
}

func TestProcessContinuesPastChainFailures(t *testing.T) {
	dialErr := apperr.Connectivity("rpc", errors.New("no such host"))
	f := newFixture(t, unavailableChain{err: dialErr})

	f.pipeline.Process(context.Background(), f.acct)

	assert.Equal(t, StepNames(), f.recorder.names())
	assert.Equal(t, []Status{StatusSuccess}, f.recorder.statuses(StepCheckIn))
	assert.Equal(t, []Status{StatusSuccess}, f.recorder.statuses(StepFaucet))
	assert.Equal(t, []Status{StatusFailure, StatusFailure, StatusFailure, StatusFailure, StatusFailure},
		f.recorder.statuses(StepVerify))
	assert.Equal(t, []Status{StatusFailure}, f.recorder.statuses(StepLiquidity))
	assert.Equal(t, []Status{StatusFailure}, f.recorder.statuses(StepWrapSwap))
	assert.Equal(t, []Status{StatusFailure}, f.recorder.statuses(StepRandomSwap))
	assert.NotContains(t, f.factory.api.Calls(), "verify")
}

func TestProcessStopsStartingStepsAfterShutdown(t *testing.T) {
	f := newFixture(t, &richChain{})
	f.pipeline.Sleep = func(ctx context.Context, d time.Duration) bool {
		f.delays = append(f.delays, d)
		f.halt.Trigger("test")
		return false
	}

	f.pipeline.Process(context.Background(), f.acct)

	assert.Equal(t, []Status{StatusSuccess, StatusSkipped, StatusSkipped, StatusSkipped, StatusSkipped},
		f.recorder.statuses(StepVerify))
	assert.Equal(t, []Status{StatusSkipped}, f.recorder.statuses(StepLiquidity))
	assert.Equal(t, []Status{StatusSkipped}, f.recorder.statuses(StepRandomSwap))
	assert.Len(t, f.delays, 1)
	assert.Equal(t, 1, countOf(f.factory.api.Calls(), "verify"))
}

func TestProcessSkipsWhenAlreadyShuttingDown(t *testing.T) {
	f := newFixture(t, &richChain{})
	f.halt.Trigger("test")

	f.pipeline.Process(context.Background(), f.acct)

	assert.Empty(t, f.recorder.names())
	assert.Empty(t, f.factory.proxies)
}

func TestProcessAbandonsFrozenStep(t *testing.T) {
	f := newFixture(t, &richChain{})
	f.factory.api.blockCheck = true
	f.pipeline.Guard = guard.New(20*time.Millisecond, f.halt)

	f.pipeline.Process(context.Background(), f.acct)

	assert.Equal(t, []Status{StatusFrozen}, f.recorder.statuses(StepCheckIn))
	assert.Equal(t, []Status{StatusSuccess}, f.recorder.statuses(StepFaucet))
	assert.Equal(t, []Status{StatusSuccess}, f.recorder.statuses(StepRandomSwap))
}

func TestProcessRecordsSkipsWhenRunCannotBePrepared(t *testing.T) {
	f := newFixture(t, &richChain{})
	f.factory.err = errors.New("bad proxy")

	f.pipeline.Process(context.Background(), f.acct)

	assert.Equal(t, StepNames(), f.recorder.names())
	for _, name := range StepNames() {
		for _, s := range f.recorder.statuses(name) {
			assert.Equal(t, StatusSkipped, s)
		}
	}
	assert.Empty(t, f.factory.api.Calls())
}

func TestUnavailableChainReturnsDialError(t *testing.T) {
	dialErr := errors.New("dial failed")
	u := unavailableChain{err: dialErr}

	_, err := u.NativeBalance(context.Background(), common.Address{})
	assert.Same(t, dialErr, err)
	_, err = u.Swap(context.Background(), nil, chain.SwapParams{})
	assert.Same(t, dialErr, err)
}

// panickyChain panics on every transfer, like a collaborator handing back a
// nil receipt.
type panickyChain struct {
	*richChain
}

func (p panickyChain) Transfer(context.Context, *ecdsa.PrivateKey, common.Address, *big.Int) (*types.Receipt, error) {
	var receipt *types.Receipt
	return &types.Receipt{TxHash: receipt.TxHash}, nil
}

func TestProcessSurvivesPanickingStep(t *testing.T) {
	f := newFixture(t, panickyChain{richChain: &richChain{}})

	require.NotPanics(t, func() { f.pipeline.Process(context.Background(), f.acct) })

	assert.Equal(t, StepNames(), f.recorder.names())
	assert.Equal(t, []Status{StatusFailure, StatusFailure, StatusFailure, StatusFailure, StatusFailure},
		f.recorder.statuses(StepVerify))
	assert.Equal(t, []Status{StatusSuccess}, f.recorder.statuses(StepLiquidity))
	assert.Equal(t, []Status{StatusSuccess}, f.recorder.statuses(StepWrapSwap))
	assert.Equal(t, []Status{StatusSuccess}, f.recorder.statuses(StepRandomSwap))
	assert.NotContains(t, f.factory.api.Calls(), "verify")
}

func TestStepFailureLogLevelFollowsErrorKind(t *testing.T) {
	f := newFixture(t, &richChain{})
	logs := logger.NewObservedLoggerForTest(t)

	f.pipeline.step(context.Background(), StepCheckIn, "checkInFunction", func(context.Context) error {
		return apperr.Business("check-in", "already checked in")
	})
	f.pipeline.step(context.Background(), StepWrapSwap, "performSwap", func(context.Context) error {
		return errors.New("nil receipt")
	})

	rejected := logs.FilterMessageSnippet("checkInFunction failed").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, "warn", rejected[0].Level.String())

	broken := logs.FilterMessageSnippet("performSwap failed").All()
	require.Len(t, broken, 1)
	assert.Equal(t, "error", broken[0].Level.String())

	assert.Equal(t, []Status{StatusFailure}, f.recorder.statuses(StepCheckIn))
	assert.Equal(t, []Status{StatusFailure}, f.recorder.statuses(StepWrapSwap))
}

func countOf(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}
