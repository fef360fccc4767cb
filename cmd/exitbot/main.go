package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polyexit/config"
	"github.com/alejandrodnm/polyexit/internal/adapters/notify"
	"github.com/alejandrodnm/polyexit/internal/adapters/onchain"
	"github.com/alejandrodnm/polyexit/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyexit/internal/adapters/redisstore"
	"github.com/alejandrodnm/polyexit/internal/adapters/storage"
	"github.com/alejandrodnm/polyexit/internal/application/exit"
	"github.com/alejandrodnm/polyexit/internal/domain"
	"github.com/alejandrodnm/polyexit/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one cycle and exit")
	dryRun := flag.Bool("dry-run", false, "evaluate and log decisions without submitting")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the outcome table after each cycle")
	report := flag.Bool("report", false, "print the attempt ledger and recent cycles, then exit")
	resetMarket := flag.String("reset-market", "", "clear the redemption ledger entry of a condition ID, then exit")
	checkBuy := flag.Bool("check-buy", false, "check <market> <token> for a winning sibling position, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	// Operator commands never submit anything.
	readOnly := *dryRun || *report || *resetMarket != "" || *checkBuy

	slog.Info("polyexit starting",
		"config", *configPath,
		"interval", cfg.Interval(),
		"preset", cfg.Exit.Preset,
		"signature_type", cfg.SignatureType(),
		"storage", cfg.Storage.Backend,
		"dry_run", *dryRun,
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "path", cfg.Storage.Path)
		os.Exit(1)
	}
	defer store.Close()

	attempts, err := openAttemptStore(ctx, cfg, store)
	if err != nil {
		slog.Error("failed to open attempt store", "err", err)
		os.Exit(1)
	}
	defer attempts.Close()

	console := notify.NewConsole(*table)

	if *report {
		runReport(ctx, cfg, attempts, store, console)
		return
	}

	eth, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		slog.Error("failed to dial RPC", "err", err, "url", cfg.Chain.RPCURL)
		os.Exit(1)
	}
	defer eth.Close()

	w, err := buildWallet(cfg, eth, readOnly)
	if err != nil {
		slog.Error("wallet setup failed", "err", err)
		os.Exit(1)
	}

	holder := cfg.Wallet.Funder
	if cfg.SignatureType() == domain.SigEOA && w != nil {
		holder = w.Address().Hex()
	}
	if holder == "" {
		slog.Error("no account to watch: set POLY_PRIVATE_KEY or wallet.funder")
		os.Exit(1)
	}

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.API.DataBase)
	reader := onchain.NewReader(eth, holder)

	deps := exit.Deps{
		Positions: polymarket.NewPositionSource(client, holder, cfg.Exit.MinPositionSize),
		Books:     client,
		Resolver:  reader,
		EndTimes:  client,
		Tracker:   exit.NewTracker(store, cfg.Exit.SizeTolerance),
		Attempts:  attempts,
		Journal:   store,
		Notifier:  console,
		Ledger:    domain.NewAttemptLedger(cfg.Cooldown(), cfg.Redemption.MaxFailures),
		Backoff:   domain.NewBackoff(cfg.Backoff()),
	}

	if !readOnly {
		checkBalance(ctx, reader, holder)
		if err := wireExecutors(ctx, cfg, client, reader, w, &deps); err != nil {
			slog.Error("executor setup failed", "err", err)
			os.Exit(1)
		}
	}

	engine, err := exit.New(engineConfig(cfg), deps, readOnly)
	if err != nil {
		slog.Error("engine setup failed", "err", err)
		os.Exit(1)
	}
	if err := engine.Restore(ctx); err != nil {
		slog.Error("failed to restore state", "err", err)
		os.Exit(1)
	}

	switch {
	case *resetMarket != "":
		runResetMarket(ctx, engine, *resetMarket)
		return
	case *checkBuy:
		if flag.NArg() != 2 {
			fmt.Fprintln(os.Stderr, "usage: exitbot -check-buy <market> <token>")
			os.Exit(2)
		}
		runCheckBuy(ctx, engine, console, flag.Arg(0), flag.Arg(1))
		return
	}

	runLoop(ctx, engine, *configPath, cfg, *once)
	slog.Info("polyexit stopped cleanly")
}

// openAttemptStore returns the ledger store for the configured backend.
func openAttemptStore(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) (ports.AttemptStore, error) {
	if cfg.Storage.Backend != "redis" {
		return nopCloser{store}, nil
	}
	r := cfg.Storage.Redis
	rs, err := redisstore.New(ctx, redisstore.Config{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Prefix:   r.Prefix,
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// nopCloser keeps the shared SQLite handle open until main closes it.
type nopCloser struct{ *storage.SQLiteStorage }

func (nopCloser) Close() error { return nil }

// buildWallet parses the signing key. Read-only runs may omit it.
func buildWallet(cfg *config.Config, eth *ethclient.Client, readOnly bool) (*onchain.Wallet, error) {
	if cfg.Wallet.PrivateKey == "" {
		if readOnly {
			return nil, nil
		}
		return nil, errors.New("POLY_PRIVATE_KEY is required to submit sells and redemptions")
	}
	return onchain.NewWallet(eth, cfg.Wallet.PrivateKey, cfg.ReceiptTimeout())
}

// wireExecutors builds the CLOB seller and the on-chain redeemer.
func wireExecutors(ctx context.Context, cfg *config.Config, client *polymarket.Client, reader *onchain.Reader, w *onchain.Wallet, deps *exit.Deps) error {
	redeemer, err := onchain.NewRedeemer(reader, w, cfg.SignatureType(), cfg.Wallet.Funder)
	if err != nil {
		return err
	}
	if err := redeemer.EnsureApprovals(ctx); err != nil {
		return fmt.Errorf("approvals: %w", err)
	}

	auth, err := polymarket.NewAuthClient(client, cfg.Wallet.PrivateKey, cfg.SignatureType(), cfg.Wallet.Funder)
	if err != nil {
		return err
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return fmt.Errorf("clob credentials: %w", err)
	}
	seller, err := polymarket.NewTradingClient(auth, reader, cfg.Wallet.OrderType)
	if err != nil {
		return err
	}

	slog.Info("executors ready", "signer", auth.Signer(), "funder", auth.Funder(), "order_type", cfg.Wallet.OrderType)
	deps.Seller = seller
	deps.Redeemer = redeemer
	return nil
}

// checkBalance logs the USDC.e balance and exits if the chain is unreachable.
func checkBalance(ctx context.Context, reader *onchain.Reader, holder string) {
	balance, err := reader.USDCBalance(ctx)
	if err != nil {
		slog.Error("RPC unreachable, cannot read USDC balance", "err", err)
		os.Exit(1)
	}
	slog.Info("wallet balance", "holder", holder, "usdc", fmt.Sprintf("$%.2f", balance))
}

func engineConfig(cfg *config.Config) exit.Config {
	return exit.Config{
		Strategy:          cfg.Exit.Config,
		MinPositionUSD:    cfg.Redemption.MinPositionUSD,
		IncludeLosses:     cfg.Redemption.IncludeLosses,
		EvalWorkers:       cfg.Exit.EvalWorkers,
		LookupParallelism: cfg.Exit.LookupParallelism,
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
