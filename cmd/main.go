package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/pharos-autotask/pharos-autotask/pkg/accounts"
	"github.com/pharos-autotask/pharos-autotask/pkg/chain"
	"github.com/pharos-autotask/pharos-autotask/pkg/collector"
	"github.com/pharos-autotask/pharos-autotask/pkg/config"
	"github.com/pharos-autotask/pharos-autotask/pkg/currency"
	"github.com/pharos-autotask/pharos-autotask/pkg/egress"
	"github.com/pharos-autotask/pharos-autotask/pkg/guard"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
	"github.com/pharos-autotask/pharos-autotask/pkg/pharos"
	"github.com/pharos-autotask/pharos-autotask/pkg/pipeline"
	"github.com/pharos-autotask/pharos-autotask/pkg/retry"
	"github.com/pharos-autotask/pharos-autotask/pkg/scheduler"
	"github.com/pharos-autotask/pharos-autotask/pkg/session"
	"github.com/pharos-autotask/pharos-autotask/pkg/shutdown"
	"github.com/pharos-autotask/pharos-autotask/pkg/tasks"
	"github.com/pharos-autotask/pharos-autotask/pkg/validation"
	"github.com/pharos-autotask/pharos-autotask/pkg/version"

	httpfiber "github.com/pharos-autotask/pharos-autotask/pkg/server/http"
)

var (
	cfgPath     = flag.String("config", "config.yaml", "path to the config file")
	envPath     = flag.String("env", ".env", "path to the dotenv file")
	showVersion = flag.Bool("version", false, "print version information")
	console     = flag.Bool("console", false, "log in console format instead of JSON")
)

func main() {
	flag.Parse()

	if *showVersion {
		versionJSON, _ := json.Marshal(version.GetVersion())
		fmt.Println(string(versionJSON))
		return
	}

	// A missing .env is fine; the environment may already carry the keys.
	envErr := godotenv.Load(*envPath)

	cfg, err := config.NewConfig(*cfgPath)
	if err != nil {
		panic(fmt.Errorf("failed to read config: %v", err))
	}

	if _, err := logger.NewLogger(cfg.Global.LogLevel, *console); err != nil {
		panic(fmt.Errorf("failed to init logger: %v", err))
	}
	defer logger.Sync()
	if envErr != nil {
		logger.Debugf("no dotenv file loaded: %v", envErr)
	}
	logger.Infof("Starting pharos-autotask %s", version.GetVersion())

	if err := validation.NewConfigValidator().ValidateConfig(cfg); err != nil {
		logger.Fatalf("Configuration validation failed: %v", err)
	}
	logger.Infof("Configuration validated successfully")

	wallets, err := accounts.ParsePrivateKeys(cfg.Wallets.PrivateKeys())
	if err != nil {
		logger.Fatalf("No valid private keys found in %s: %v", cfg.Wallets.PrivateKeysEnv, err)
	}
	logger.Infof("Loaded %d wallets", len(wallets))

	recipients, err := accounts.LoadRecipients(cfg.Files.Recipients)
	if err != nil {
		logger.Fatalf("Failed to load recipients: %v", err)
	}
	logger.Infof("Loaded %d recipient addresses", len(recipients))

	proxies, err := accounts.LoadProxies(cfg.Files.Proxies)
	if err != nil {
		logger.Fatalf("Failed to load proxies: %v", err)
	}
	for _, p := range proxies {
		if _, err := egress.ParseProxy(p); err != nil {
			logger.Fatalf("Invalid proxy entry: %v", err)
		}
	}
	if len(proxies) == 0 {
		logger.Infof("No proxies configured, using direct connections")
	} else {
		logger.Infof("Loaded %d proxies", len(proxies))
	}

	tokens, err := newTokenRegistry(cfg)
	if err != nil {
		logger.Fatalf("Failed to register tokens: %v", err)
	}

	coordinator := shutdown.NewCoordinator(cfg.Timing.ShutdownGrace)
	g, ctx := errgroup.WithContext(context.Background())
	stopWatching := coordinator.Watch(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopWatching()

	executor := retry.NewExecutor(retry.Policy{
		MaxRetries: cfg.Timing.MaxRetries,
		Delay:      cfg.Timing.RetryDelay,
	}, coordinator)

	catalog := tasks.NewCatalog(session.NewCache(), executor, recipients, tokens)
	catalog.Contracts = chain.Contracts{
		WrappedNative:   common.HexToAddress(cfg.Contracts.WrappedNative),
		Router:          common.HexToAddress(cfg.Contracts.Router),
		PositionManager: common.HexToAddress(cfg.Contracts.PositionManager),
	}
	catalog.Settings = settingsFromConfig(cfg)

	chainOpts := chain.Options{
		RPCURL:    cfg.Network.RPCURL,
		ChainID:   cfg.Network.ChainID,
		Contracts: catalog.Contracts,
	}

	promRegistry := prometheus.NewRegistry()
	recorder := collector.NewStepRecorder()
	promRegistry.MustRegister(recorder)
	if cfg.Network.Balances {
		balances, closeBalances, err := collector.NewCollector(ctx, cfg.Network.Name, chainOpts, wallets, tokens)
		if err != nil {
			logger.Errorf("Balance metrics disabled: %v", err)
		} else {
			defer closeBalances()
			promRegistry.MustRegister(balances)
		}
	}

	p := &pipeline.Pipeline{
		Catalog: catalog,
		Guard:   guard.New(cfg.Timing.FreezeTimeout, coordinator),
		Halt:    coordinator,
		Factory: &pipeline.ClientFactory{
			API: pharos.Options{
				BaseURL:           cfg.API.BaseURL,
				InviteCode:        cfg.API.InviteCode,
				RequestsPerSecond: cfg.API.RequestsPerSecond,
				Burst:             cfg.API.Burst,
				Timeout:           cfg.API.Timeout,
			},
			Chain:       chainOpts,
			HTTPTimeout: cfg.Network.RPCTimeout,
			Retry:       executor,
		},
		Proxies: proxies,
		Delays: pipeline.Delays{
			Verify:     window(cfg.Timing.Delays.Verify),
			Liquidity:  window(cfg.Timing.Delays.Liquidity),
			WrapSwap:   window(cfg.Timing.Delays.WrapSwap),
			RandomSwap: window(cfg.Timing.Delays.RandomSwap),
		},
		Recorder: recorder,
	}

	driver := scheduler.NewCycleDriver(wallets, p, coordinator)
	driver.LoaderWindow = cfg.Timing.LoaderWindow
	driver.Pause = cfg.Timing.CyclePause
	driver.Heartbeat = cfg.Timing.Heartbeat
	driver.Observer = recorder

	var server *httpfiber.Server
	if cfg.Global.MetricsAddr != "" {
		server = httpfiber.NewServer(cfg,
			httpfiber.WithRegistry(promRegistry),
			httpfiber.WithStatus(driver))
		g.Go(func() error {
			if err := server.Run(); err != nil {
				return fmt.Errorf("failed to run server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			if server != nil {
				server.Stop()
			}
		}()
		return driver.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("Stopped with error: %v", err)
	}
	coordinator.CancelExit()
	logger.Infof("Shutdown complete")
}

func window(w config.Window) tasks.Window {
	return tasks.Window{Min: w.Min, Max: w.Max}
}

func settingsFromConfig(cfg *config.Schema) tasks.Settings {
	s := tasks.DefaultSettings()
	s.VerifyTaskID = cfg.API.VerifyTaskID
	s.TransferAmount = cfg.Amounts.Transfer
	s.Settle = window(cfg.Timing.Delays.Settle)
	s.LiquidityWrapped = cfg.Amounts.LiquidityWrapped
	s.LiquidityStable = cfg.Amounts.LiquidityStable
	s.WrapAmount = tasks.Range{Min: cfg.Amounts.Wrap.Min, Max: cfg.Amounts.Wrap.Max}
	s.SwapAmount = tasks.Range{Min: cfg.Amounts.Swap.Min, Max: cfg.Amounts.Swap.Max}
	return s
}

func newTokenRegistry(cfg *config.Schema) (*currency.Registry, error) {
	registry := currency.NewRegistry()
	if _, err := registry.Register(&currency.Unit{
		Name:     cfg.Network.Symbol,
		Symbol:   cfg.Network.Symbol,
		Decimals: currency.DefaultPHRS.Decimals,
	}); err != nil {
		return nil, err
	}
	for _, t := range cfg.Contracts.Tokens {
		if _, err := registry.Register(&currency.Unit{
			Name:     t.Name,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
			Address:  common.HexToAddress(t.Address),
		}); err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
		}
	}
	return registry, nil
}
