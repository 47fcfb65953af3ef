package collector

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pharos-autotask/pharos-autotask/pkg/accounts"
	"github.com/pharos-autotask/pharos-autotask/pkg/chain"
	"github.com/pharos-autotask/pharos-autotask/pkg/currency"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

// NewCollector dials a dedicated chain client for balance scrapes. The
// returned close function releases it.
func NewCollector(ctx context.Context, network string, opts chain.Options, accts []*accounts.Account, tokens *currency.Registry) (*BalanceCollector, func(), error) {
	logger.Infof("initializing balance collector for %s", network)
	client, err := chain.Dial(ctx, opts, &http.Client{Timeout: DefaultTimeout})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init balance collector: %w", err)
	}
	if err := chain.VerifyUnits(ctx, client, tokens); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("token units do not match chain: %w", err)
	}
	return NewBalanceCollector(network, client, accts, tokens), client.Close, nil
}
