package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
)

const (
	DefaultRPCURL  = "https://testnet.dplabs-internal.com"
	DefaultChainID = 688688
)

// Contracts holds the on-chain addresses the bot interacts with.
type Contracts struct {
	WrappedNative   common.Address
	Router          common.Address
	PositionManager common.Address
}

// DefaultContracts are the testnet deployments.
var DefaultContracts = Contracts{
	WrappedNative:   common.HexToAddress("0x76aaada469d23216be5f7c596fa25f282ff9b364"),
	Router:          common.HexToAddress("0x1a4de519154ae51200b0ad7c90f7fac75547888a"),
	PositionManager: common.HexToAddress("0xf8a1d4ff0f9b9af7ce58e1fc1833688f3bfd6115"),
}

// Options configures Dial.
type Options struct {
	RPCURL    string
	ChainID   int64
	UserAgent string
	Contracts Contracts
	// TransferGasPrice is used for legacy native transfers. Nil means zero.
	TransferGasPrice *big.Int
}

// Backend is everything the client needs from a node. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client is the blockchain collaborator of one account pipeline run.
type Client struct {
	rpc     *rpc.Client
	backend Backend
	chainID *big.Int
	opts    Options

	wrapped  *bind.BoundContract
	router   *bind.BoundContract
	position *bind.BoundContract
}

// Dial connects to opts.RPCURL through httpClient and checks the chain id.
func Dial(ctx context.Context, opts Options, httpClient *http.Client) (*Client, error) {
	if opts.RPCURL == "" {
		opts.RPCURL = DefaultRPCURL
	}
	if opts.ChainID == 0 {
		opts.ChainID = DefaultChainID
	}

	rpcOpts := []rpc.ClientOption{}
	if httpClient != nil {
		rpcOpts = append(rpcOpts, rpc.WithHTTPClient(httpClient))
	}
	if opts.UserAgent != "" {
		rpcOpts = append(rpcOpts, rpc.WithHeader("User-Agent", opts.UserAgent))
	}

	rpcClient, err := rpc.DialOptions(ctx, opts.RPCURL, rpcOpts...)
	if err != nil {
		return nil, apperr.FromTransport("dial rpc", fmt.Errorf("failed to connect to rpc endpoint %s: %w", opts.RPCURL, err))
	}
	eth := ethclient.NewClient(rpcClient)

	id, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, apperr.FromTransport("dial rpc", fmt.Errorf("failed to fetch chain id: %w", err))
	}
	if id.Int64() != opts.ChainID {
		rpcClient.Close()
		return nil, apperr.Businessf("dial rpc", "rpc %s serves chain %s, expected %d", opts.RPCURL, id, opts.ChainID)
	}

	c := NewWithBackend(eth, id, opts)
	c.rpc = rpcClient
	return c, nil
}

// NewWithBackend wraps an already connected backend.
func NewWithBackend(backend Backend, chainID *big.Int, opts Options) *Client {
	if opts.Contracts == (Contracts{}) {
		opts.Contracts = DefaultContracts
	}
	return &Client{
		backend:  backend,
		chainID:  new(big.Int).Set(chainID),
		opts:     opts,
		wrapped:  bind.NewBoundContract(opts.Contracts.WrappedNative, wrappedABI, backend, backend, backend),
		router:   bind.NewBoundContract(opts.Contracts.Router, routerABI, backend, backend, backend),
		position: bind.NewBoundContract(opts.Contracts.PositionManager, positionABI, backend, backend, backend),
	}
}

// Close releases the underlying RPC resources.
func (c *Client) Close() {
	if c == nil || c.rpc == nil {
		return
	}
	c.rpc.Close()
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) Contracts() Contracts {
	return c.opts.Contracts
}

// NativeBalance returns the latest native balance of addr.
func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, apperr.FromTransport("native balance", fmt.Errorf("failed to fetch balance: %w", err))
	}
	return bal, nil
}

// TokenBalance returns the ERC20 balance of owner.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.callUint(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, apperr.FromTransport("token balance", fmt.Errorf("failed to call balanceOf: %w", err))
	}
	return out, nil
}

// Allowance returns how much spender may move on behalf of owner.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.callUint(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, apperr.FromTransport("allowance", fmt.Errorf("failed to call allowance: %w", err))
	}
	return out, nil
}

func (c *Client) token(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, erc20ABI, c.backend, c.backend, c.backend)
}

func (c *Client) callUint(ctx context.Context, token common.Address, method string, params ...any) (*big.Int, error) {
	var out []any
	if err := c.token(token).Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned empty result", method)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}
