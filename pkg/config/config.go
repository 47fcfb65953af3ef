package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Schema struct {
	Global    Global    `yaml:"global"`
	Network   Network   `yaml:"network"`
	API       API       `yaml:"api"`
	Contracts Contracts `yaml:"contracts"`
	Files     Files     `yaml:"files"`
	Wallets   Wallets   `yaml:"wallets"`
	Timing    Timing    `yaml:"timing"`
	Amounts   Amounts   `yaml:"amounts"`
}

type Global struct {
	Environment string `yaml:"environment"`
	// MetricsAddr enables the metrics and status server when set.
	MetricsAddr string `yaml:"metricsAddr"`
	LogLevel    string `yaml:"logLevel"`
}

type Network struct {
	Name       string        `yaml:"name"`
	ChainID    int64         `yaml:"chainId"`
	RPCURL     string        `yaml:"rpcUrl"`
	RPCURLEnv  string        `yaml:"rpcUrlEnv"`
	Symbol     string        `yaml:"symbol"`
	RPCTimeout time.Duration `yaml:"rpcTimeout"`
	// Balances exports wallet balances on /metrics.
	Balances bool `yaml:"balances"`
}

type API struct {
	BaseURL           string        `yaml:"baseUrl"`
	BaseURLEnv        string        `yaml:"baseUrlEnv"`
	InviteCode        string        `yaml:"inviteCode"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	VerifyTaskID      int           `yaml:"verifyTaskId"`
}

type Token struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

type Contracts struct {
	Tokens          []*Token `yaml:"tokens"`
	WrappedNative   string   `yaml:"wrappedNative"`
	Router          string   `yaml:"router"`
	PositionManager string   `yaml:"positionManager"`
}

type Files struct {
	Recipients string `yaml:"recipients"`
	Proxies    string `yaml:"proxies"`
}

type Wallets struct {
	PrivateKeysEnv string `yaml:"privateKeysEnv"`
}

// Window is a random delay range [min, max).
type Window struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

type Delays struct {
	Settle     Window `yaml:"settle"`
	Verify     Window `yaml:"verify"`
	Liquidity  Window `yaml:"liquidity"`
	WrapSwap   Window `yaml:"wrapSwap"`
	RandomSwap Window `yaml:"randomSwap"`
}

type Timing struct {
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	FreezeTimeout time.Duration `yaml:"freezeTimeout"`
	ShutdownGrace time.Duration `yaml:"shutdownGrace"`
	LoaderWindow  time.Duration `yaml:"loaderWindow"`
	CyclePause    time.Duration `yaml:"cyclePause"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
	Delays        Delays        `yaml:"delays"`
}

// Range is an amount range in display units.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type Amounts struct {
	Transfer         string `yaml:"transfer"`
	LiquidityWrapped string `yaml:"liquidityWrapped"`
	LiquidityStable  string `yaml:"liquidityStable"`
	Wrap             Range  `yaml:"wrap"`
	Swap             Range  `yaml:"swap"`
}

var defaultTokens = []*Token{
	{Symbol: "WPHRS", Name: "Wrapped Pharos", Address: "0x76aaada469d23216be5f7c596fa25f282ff9b364", Decimals: 18},
	{Symbol: "USDC", Name: "USD Coin", Address: "0xad902cf99c2de2f1ba5ec4d642fd7e49cae9ee37", Decimals: 6},
	{Symbol: "USDT", Name: "Tether USD", Address: "0xed59de2d7ad9c043442e381231ee3646fc3c2939", Decimals: 6},
}

func (s *Schema) Normalize() error {
	s.Global.Normalize()
	s.Network.Normalize()
	s.API.Normalize()
	s.Contracts.Normalize()
	s.Files.Normalize()
	s.Wallets.Normalize()
	s.Timing.Normalize()
	s.Amounts.Normalize()
	return nil
}

func (g *Global) Normalize() {
	if g.Environment == "" {
		g.Environment = "development"
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
}

func (n *Network) Normalize() {
	if n.Name == "" {
		n.Name = "pharos-testnet"
	}
	if n.ChainID == 0 {
		n.ChainID = 688688
	}
	if n.RPCURLEnv != "" {
		if v := os.Getenv(n.RPCURLEnv); v != "" {
			n.RPCURL = v
		}
	}
	if n.RPCURL == "" {
		n.RPCURL = "https://testnet.dplabs-internal.com"
	}
	if n.Symbol == "" {
		n.Symbol = "PHRS"
	}
	if n.RPCTimeout == 0 {
		n.RPCTimeout = 30 * time.Second
	}
}

func (a *API) Normalize() {
	if a.BaseURLEnv != "" {
		if v := os.Getenv(a.BaseURLEnv); v != "" {
			a.BaseURL = v
		}
	}
	if a.BaseURL == "" {
		a.BaseURL = "https://api.pharosnetwork.xyz"
	}
	if a.InviteCode == "" {
		a.InviteCode = "S6NGMzXSCDBxhnwo"
	}
	if a.Timeout == 0 {
		a.Timeout = 30 * time.Second
	}
	if a.Burst == 0 && a.RequestsPerSecond > 0 {
		a.Burst = 1
	}
	if a.VerifyTaskID == 0 {
		a.VerifyTaskID = 103
	}
}

func (c *Contracts) Normalize() {
	if len(c.Tokens) == 0 {
		for _, t := range defaultTokens {
			tok := *t
			c.Tokens = append(c.Tokens, &tok)
		}
	}
	if c.WrappedNative == "" {
		c.WrappedNative = "0x76aaada469d23216be5f7c596fa25f282ff9b364"
	}
	if c.Router == "" {
		c.Router = "0x1a4de519154ae51200b0ad7c90f7fac75547888a"
	}
	if c.PositionManager == "" {
		c.PositionManager = "0xf8a1d4ff0f9b9af7ce58e1fc1833688f3bfd6115"
	}
}

func (f *Files) Normalize() {
	if f.Recipients == "" {
		f.Recipients = "recipients.json"
	}
	if f.Proxies == "" {
		f.Proxies = "proxies.txt"
	}
}

func (w *Wallets) Normalize() {
	if w.PrivateKeysEnv == "" {
		w.PrivateKeysEnv = "PRIVATE_KEYS"
	}
}

// PrivateKeys reads the raw key list from the environment.
func (w *Wallets) PrivateKeys() string {
	return os.Getenv(w.PrivateKeysEnv)
}

func (w *Window) normalize(min, max time.Duration) {
	if w.Min == 0 && w.Max == 0 {
		w.Min, w.Max = min, max
	}
}

func (t *Timing) Normalize() {
	if t.MaxRetries == 0 {
		t.MaxRetries = 3
	}
	if t.RetryDelay == 0 {
		t.RetryDelay = 5 * time.Second
	}
	if t.FreezeTimeout == 0 {
		t.FreezeTimeout = time.Hour
	}
	if t.ShutdownGrace == 0 {
		t.ShutdownGrace = 5 * time.Second
	}
	if t.LoaderWindow == 0 {
		t.LoaderWindow = 180 * time.Second
	}
	if t.CyclePause == 0 {
		t.CyclePause = 60 * time.Second
	}
	if t.Heartbeat == 0 {
		t.Heartbeat = 5 * time.Minute
	}
	t.Delays.Settle.normalize(5*time.Second, 6*time.Second)
	t.Delays.Verify.normalize(time.Second, 3*time.Second)
	t.Delays.Liquidity.normalize(20*time.Second, 35*time.Second)
	t.Delays.WrapSwap.normalize(5*time.Second, 20*time.Second)
	t.Delays.RandomSwap.normalize(10*time.Second, 30*time.Second)
}

func (a *Amounts) Normalize() {
	if a.Transfer == "" {
		a.Transfer = "0.00001"
	}
	if a.LiquidityWrapped == "" {
		a.LiquidityWrapped = "0.001"
	}
	if a.LiquidityStable == "" {
		a.LiquidityStable = "2"
	}
	if a.Wrap.Min == 0 && a.Wrap.Max == 0 {
		a.Wrap = Range{Min: 0.001, Max: 0.005}
	}
	if a.Swap.Min == 0 && a.Swap.Max == 0 {
		a.Swap = Range{Min: 0.0001, Max: 0.001}
	}
}

// NewConfig reads and normalizes the file at path. A missing file yields the
// defaults.
func NewConfig(path string) (*Schema, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		cfg := &Schema{}
		if err := cfg.Normalize(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return ReadConfigWithError(f)
}

func ReadConfigWithError(r io.Reader) (*Schema, error) {
	config := &Schema{}
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(config); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Normalize(); err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}
	return config, nil
}
