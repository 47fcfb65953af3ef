package currency

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Unit describes the native coin or an ERC20 token on the target chain.
type Unit struct {
	Name     string
	Symbol   string
	Decimals int
	// Address is the token contract. It is the zero address for the native
	// coin.
	Address common.Address
}

// IsNative reports whether u is the chain's gas coin.
func (u *Unit) IsNative() bool {
	return u.Address == (common.Address{})
}

func (u *Unit) String() string {
	return u.Symbol
}

// Registry holds the units known to the bot keyed by upper-cased symbol.
type Registry struct {
	mu    sync.RWMutex
	units map[string]*Unit
}

var (
	DefaultPHRS = &Unit{Name: "Pharos", Symbol: "PHRS", Decimals: 18}

	DefaultWPHRS = &Unit{
		Name:     "Wrapped Pharos",
		Symbol:   "WPHRS",
		Decimals: 18,
		Address:  common.HexToAddress("0x76aaada469d23216be5f7c596fa25f282ff9b364"),
	}

	DefaultUSDC = &Unit{
		Name:     "USD Coin",
		Symbol:   "USDC",
		Decimals: 6,
		Address:  common.HexToAddress("0xad902cf99c2de2f1ba5ec4d642fd7e49cae9ee37"),
	}

	DefaultUSDT = &Unit{
		Name:     "Tether USD",
		Symbol:   "USDT",
		Decimals: 6,
		Address:  common.HexToAddress("0xed59de2d7ad9c043442e381231ee3646fc3c2939"),
	}
)

func NewRegistry() *Registry {
	return &Registry{units: make(map[string]*Unit)}
}

// Register adds unit. Symbols are unique regardless of case.
func (r *Registry) Register(unit *Unit) (*Unit, error) {
	if unit == nil || unit.Symbol == "" {
		return nil, fmt.Errorf("currency unit symbol cannot be empty")
	}
	if unit.Decimals < 0 || unit.Decimals > 36 {
		return nil, fmt.Errorf("currency unit %s has invalid decimals %d", unit.Symbol, unit.Decimals)
	}

	key := strings.ToUpper(unit.Symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.units[key]; exists {
		return nil, fmt.Errorf("currency unit %s already registered", key)
	}
	r.units[key] = unit
	return unit, nil
}

func (r *Registry) MustRegister(unit *Unit) *Unit {
	u, err := r.Register(unit)
	if err != nil {
		panic(err)
	}
	return u
}

func (r *Registry) Get(symbol string) (*Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	unit, exists := r.units[strings.ToUpper(symbol)]
	if !exists {
		return nil, fmt.Errorf("currency unit %s not found", symbol)
	}
	return unit, nil
}

func (r *Registry) MustGet(symbol string) *Unit {
	unit, err := r.Get(symbol)
	if err != nil {
		panic(err)
	}
	return unit
}

// Native returns the first registered unit without a contract address.
func (r *Registry) Native() (*Unit, error) {
	for _, u := range r.List() {
		if u.IsNative() {
			return u, nil
		}
	}
	return nil, fmt.Errorf("no native unit registered")
}

// Tokens returns the registered ERC20 units sorted by symbol.
func (r *Registry) Tokens() []*Unit {
	var out []*Unit
	for _, u := range r.List() {
		if !u.IsNative() {
			out = append(out, u)
		}
	}
	return out
}

// List returns every unit sorted by symbol.
func (r *Registry) List() []*Unit {
	r.mu.RLock()
	units := make([]*Unit, 0, len(r.units))
	for _, unit := range r.units {
		units = append(units, unit)
	}
	r.mu.RUnlock()
	sort.Slice(units, func(i, j int) bool { return units[i].Symbol < units[j].Symbol })
	return units
}

// NewDefaultRegistry returns a registry holding PHRS, WPHRS, USDC and USDT.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(DefaultPHRS)
	r.MustRegister(DefaultWPHRS)
	r.MustRegister(DefaultUSDC)
	r.MustRegister(DefaultUSDT)
	return r
}
