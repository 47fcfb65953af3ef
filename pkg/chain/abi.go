package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	erc20ABI    abi.ABI
	wrappedABI  abi.ABI
	routerABI   abi.ABI
	positionABI abi.ABI

	// exactInputSingleArgs is the head-encoded argument layout the router
	// expects after ExactInputSingleSelector.
	exactInputSingleArgs abi.Arguments
)

// ExactInputSingleSelector prefixes each swap call bundled into multicall.
var ExactInputSingleSelector = []byte{0x04, 0xe4, 0x5a, 0xaf}

var (
	// DepositTopic is the event the wrapped token contract emits on deposit.
	DepositTopic = crypto.Keccak256Hash([]byte("Deposit(uint256,address)"))
	// IncreaseLiquidityTopic is emitted by the position manager on mint.
	IncreaseLiquidityTopic = crypto.Keccak256Hash([]byte("IncreaseLiquidity(uint256,uint128,uint256,uint256)"))
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

const wrappedABIJSON = `[
	{"inputs":[],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"nftId","type":"uint256"},{"indexed":true,"name":"sender","type":"address"}],"name":"Deposit","type":"event"}
]`

const routerABIJSON = `[
	{"inputs":[{"name":"deadline","type":"uint256"},{"name":"data","type":"bytes[]"}],"name":"multicall","outputs":[{"name":"results","type":"bytes[]"}],"stateMutability":"payable","type":"function"}
]`

const positionABIJSON = `[
	{"inputs":[{"components":[
		{"name":"token0","type":"address"},
		{"name":"token1","type":"address"},
		{"name":"fee","type":"uint24"},
		{"name":"tickLower","type":"int24"},
		{"name":"tickUpper","type":"int24"},
		{"name":"amount0Desired","type":"uint256"},
		{"name":"amount1Desired","type":"uint256"},
		{"name":"amount0Min","type":"uint256"},
		{"name":"amount1Min","type":"uint256"},
		{"name":"recipient","type":"address"},
		{"name":"deadline","type":"uint256"}
	],"name":"params","type":"tuple"}],
	"name":"mint",
	"outputs":[{"name":"tokenId","type":"uint256"},{"name":"liquidity","type":"uint128"},{"name":"amount0","type":"uint256"},{"name":"amount1","type":"uint256"}],
	"stateMutability":"payable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"tokenId","type":"uint256"},{"indexed":false,"name":"liquidity","type":"uint128"},{"indexed":false,"name":"amount0","type":"uint256"},{"indexed":false,"name":"amount1","type":"uint256"}],"name":"IncreaseLiquidity","type":"event"}
]`

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func init() {
	erc20ABI = mustParse(erc20ABIJSON)
	wrappedABI = mustParse(wrappedABIJSON)
	routerABI = mustParse(routerABIJSON)
	positionABI = mustParse(positionABIJSON)

	address, uint256 := mustType("address"), mustType("uint256")
	exactInputSingleArgs = abi.Arguments{
		{Name: "tokenIn", Type: address},
		{Name: "tokenOut", Type: address},
		{Name: "fee", Type: uint256},
		{Name: "recipient", Type: address},
		{Name: "amountIn", Type: uint256},
		{Name: "amountOutMinimum", Type: uint256},
		{Name: "sqrtPriceLimitX96", Type: uint256},
	}
}
