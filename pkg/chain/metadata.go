package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
	"github.com/pharos-autotask/pharos-autotask/pkg/currency"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

// TokenMetadata is what an ERC20 contract reports about itself.
type TokenMetadata struct {
	Symbol   string
	Decimals uint8
}

// TokenMetadata reads symbol and decimals from token.
func (c *Client) TokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error) {
	contract := c.token(token)
	opts := &bind.CallOpts{Context: ctx}

	var out []any
	if err := contract.Call(opts, &out, "decimals"); err != nil {
		return nil, apperr.FromTransport("token metadata", fmt.Errorf("failed to call decimals: %w", err))
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return nil, fmt.Errorf("unexpected decimals type %T", out[0])
	}

	out = nil
	if err := contract.Call(opts, &out, "symbol"); err != nil {
		return nil, apperr.FromTransport("token metadata", fmt.Errorf("failed to call symbol: %w", err))
	}
	symbol, ok := out[0].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected symbol type %T", out[0])
	}
	return &TokenMetadata{Symbol: symbol, Decimals: decimals}, nil
}

// MetadataReader reads token metadata. *Client implements it.
type MetadataReader interface {
	TokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error)
}

// VerifyUnits checks every registered token against its contract. A
// decimals mismatch would make every amount wrong, so it is fatal; a symbol
// mismatch is only logged.
func VerifyUnits(ctx context.Context, reader MetadataReader, registry *currency.Registry) error {
	var errs []error
	for _, unit := range registry.Tokens() {
		meta, err := reader.TokenMetadata(ctx, unit.Address)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", unit.Symbol, err))
			continue
		}
		if int(meta.Decimals) != unit.Decimals {
			errs = append(errs, apperr.Fatalf("token metadata", "%s has %d decimals on chain, configured %d",
				unit.Symbol, meta.Decimals, unit.Decimals))
			continue
		}
		if !strings.EqualFold(meta.Symbol, unit.Symbol) {
			logger.Warnf("token %s reports symbol %s on chain", unit.Symbol, meta.Symbol)
		}
		logger.Debugf("verified token %s (%d decimals)", unit.Symbol, unit.Decimals)
	}
	return errors.Join(errs...)
}
