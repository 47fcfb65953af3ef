package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharos-autotask/pharos-autotask/pkg/accounts"
	"github.com/pharos-autotask/pharos-autotask/pkg/chain"
	"github.com/pharos-autotask/pharos-autotask/pkg/egress"
	"github.com/pharos-autotask/pharos-autotask/pkg/pharos"
	"github.com/pharos-autotask/pharos-autotask/pkg/retry"
)

// slowCheckInServer answers check-in after delay and fails every RPC call.
func slowCheckInServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sign/in" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		select {
		case <-time.After(delay):
			_, _ = w.Write([]byte(`{"code":0,"msg":"ok"}`))
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClientFactory(srv *httptest.Server, apiTimeout, rpcTimeout time.Duration) *ClientFactory {
	return &ClientFactory{
		API:         pharos.Options{BaseURL: srv.URL, Timeout: apiTimeout},
		Chain:       chain.Options{RPCURL: srv.URL, ChainID: chain.DefaultChainID},
		HTTPTimeout: rpcTimeout,
		Retry:       retry.NewExecutor(retry.Policy{MaxRetries: 1}, nil),
	}
}

func TestClientFactoryAppliesAPITimeout(t *testing.T) {
	srv := slowCheckInServer(t, 300*time.Millisecond)
	acct, err := accounts.NewAccount("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	t.Run("short api timeout", func(t *testing.T) {
		run, release, err := newClientFactory(srv, 50*time.Millisecond, 5*time.Second).NewRun(context.Background(), acct, egress.Direct)
		require.NoError(t, err)
		defer release()

		start := time.Now()
		err = run.API.CheckIn(context.Background(), acct.Address, nil)
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 250*time.Millisecond)
	})

	t.Run("long api timeout with short rpc timeout", func(t *testing.T) {
		run, release, err := newClientFactory(srv, 5*time.Second, 50*time.Millisecond).NewRun(context.Background(), acct, egress.Direct)
		require.NoError(t, err)
		defer release()

		assert.NoError(t, run.API.CheckIn(context.Background(), acct.Address, nil))
	})
}

func TestClientFactoryFallsBackWhenChainUnreachable(t *testing.T) {
	srv := slowCheckInServer(t, 0)
	acct, err := accounts.NewAccount("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	run, release, err := newClientFactory(srv, time.Second, time.Second).NewRun(context.Background(), acct, egress.Direct)
	require.NoError(t, err)
	require.NotNil(t, release)
	defer release()

	_, ok := run.Chain.(unavailableChain)
	assert.True(t, ok)
	_, err = run.Chain.NativeBalance(context.Background(), acct.Address)
	assert.Error(t, err)
}
