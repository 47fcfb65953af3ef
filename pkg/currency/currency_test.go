package currency

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name    string
		unit    *Unit
		wantErr bool
	}{
		{name: "valid registration", unit: DefaultPHRS},
		{name: "empty symbol", unit: &Unit{Name: "x", Decimals: 18}, wantErr: true},
		{name: "duplicate registration", unit: &Unit{Symbol: "phrs", Decimals: 18}, wantErr: true},
		{name: "invalid decimals", unit: &Unit{Symbol: "BAD", Decimals: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(tt.unit)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	usdc, err := r.Get("usdc")
	require.NoError(t, err)
	assert.Equal(t, 6, usdc.Decimals)
	assert.Equal(t, common.HexToAddress("0xad902cf99c2de2f1ba5ec4d642fd7e49cae9ee37"), usdc.Address)

	native, err := r.Native()
	require.NoError(t, err)
	assert.Equal(t, "PHRS", native.Symbol)

	var symbols []string
	for _, u := range r.Tokens() {
		symbols = append(symbols, u.Symbol)
	}
	assert.Equal(t, []string{"USDC", "USDT", "WPHRS"}, symbols)

	_, err = r.Get("NOTFOUND")
	assert.Error(t, err)
	assert.Panics(t, func() { r.MustGet("NOTFOUND") })
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		want     string
		wantErr  bool
	}{
		{amount: "0.00001", decimals: 18, want: "10000000000000"},
		{amount: "2", decimals: 6, want: "2000000"},
		{amount: "0.001", decimals: 18, want: "1000000000000000"},
		{amount: ".5", decimals: 6, want: "500000"},
		{amount: "1.", decimals: 6, want: "1000000"},
		{amount: "-1.5", decimals: 1, want: "-15"},
		{amount: "0", decimals: 0, want: "0"},
		{amount: "0.0000001", decimals: 6, wantErr: true},
		{amount: "1e5", decimals: 6, wantErr: true},
		{amount: "", decimals: 6, wantErr: true},
		{amount: "abc", decimals: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := ParseUnits(tt.amount, tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		value    *big.Int
		decimals int
		want     string
	}{
		{value: big.NewInt(10000000000000), decimals: 18, want: "0.00001"},
		{value: big.NewInt(2000000), decimals: 6, want: "2"},
		{value: big.NewInt(1), decimals: 6, want: "0.000001"},
		{value: big.NewInt(-1500000), decimals: 6, want: "-1.5"},
		{value: big.NewInt(0), decimals: 18, want: "0"},
		{value: big.NewInt(42), decimals: 0, want: "42"},
		{value: nil, decimals: 18, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUnits(tt.value, tt.decimals))
		})
	}
}

func TestRandomAmountBounds(t *testing.T) {
	min := MustParseUnits("0.001", 18)
	max := MustParseUnits("0.005", 18)

	for _, r := range []float64{0, 0.25, 0.5, 0.999999} {
		v, err := RandomAmount(0.001, 0.005, 5, 18, func() float64 { return r })
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v.Cmp(min), 0, "value %s below min", v)
		assert.Less(t, v.Cmp(max), 0, "value %s not below max", v)
	}

	v, err := RandomAmount(0.001, 0.005, 5, 18, func() float64 { return 0.5 })
	require.NoError(t, err)
	assert.Equal(t, "0.003", FormatUnits(v, 18))

	_, err = RandomAmount(2, 1, 5, 18, func() float64 { return 0 })
	assert.Error(t, err)
}

func TestToFloat(t *testing.T) {
	assert.InDelta(t, 2.5, ToFloat(big.NewInt(2_500_000), 6), 1e-9)
	assert.InDelta(t, 0.00001, ToFloat(MustParseUnits("0.00001", 18), 18), 1e-12)
	assert.Zero(t, ToFloat(nil, 18))
}
