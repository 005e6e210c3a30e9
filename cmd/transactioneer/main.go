package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/transactioneer/internal/account"
	"github.com/gateway-fm/transactioneer/internal/config"
	"github.com/gateway-fm/transactioneer/internal/endpoint"
	"github.com/gateway-fm/transactioneer/internal/engine"
	"github.com/gateway-fm/transactioneer/internal/metrics"
	"github.com/gateway-fm/transactioneer/internal/rpc"
	"github.com/gateway-fm/transactioneer/internal/storage"
	"github.com/gateway-fm/transactioneer/internal/transport"
	"github.com/gateway-fm/transactioneer/internal/txbuilder"
	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger()

	// pprof on localhost only, not reachable from outside the container
	go func() {
		logger.Info("pprof listening", slog.String("addr", "localhost:6061"))
		if err := http.ListenAndServe("localhost:6061", nil); err != nil {
			logger.Error("pprof server failed", slog.String("error", err.Error()))
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage",
			slog.String("error", err.Error()),
			slog.String("path", cfg.DatabasePath),
		)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("initialized storage", slog.String("path", cfg.DatabasePath))

	// One client per endpoint; submissions and nonce reads rotate over them.
	clients := make([]rpc.Client, 0, len(cfg.RPCURLs))
	for _, url := range cfg.RPCURLs {
		clientCfg := rpc.DefaultClientConfig(url)
		clientCfg.Logger = logger
		clients = append(clients, rpc.NewHTTPClient(clientCfg))
	}
	pool, err := endpoint.New(clients)
	if err != nil {
		logger.Error("failed to create endpoint pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		discovered, err := pool.NextRead().GetChainID(startupCtx)
		if err != nil {
			logger.Error("failed to discover chain ID", slog.String("error", err.Error()))
			os.Exit(1)
		}
		chainID = discovered
		logger.Info("discovered chain ID", slog.Uint64("chain_id", chainID.Uint64()))
	}

	accounts, err := loadAccounts(cfg)
	if err != nil {
		logger.Error("failed to load accounts", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("loaded accounts", slog.Int("count", len(accounts)))

	// Per-account read failures leave the account at nonce zero; only an
	// interrupted startup context is fatal here.
	if err := account.InitializeNonces(startupCtx, pool, accounts, logger); err != nil {
		logger.Error("nonce initialization interrupted", slog.String("error", err.Error()))
		os.Exit(1)
	}

	gasTipCap := big.NewInt(cfg.GasTipCap)
	gasFeeCap := resolveFeeCap(startupCtx, cfg, gasTipCap, pool, logger)
	logger.Info("gas pricing configured",
		slog.String("tip_cap", gasTipCap.String()),
		slog.String("fee_cap", gasFeeCap.String()),
		slog.Bool("legacy", cfg.UseLegacy),
	)

	builders, err := buildRegistry(cfg)
	if err != nil {
		logger.Error("failed to build payload registry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	promMetrics := metrics.NewPrometheusMetrics(nil)

	runID, err := store.CreateRun(startupCtx, &ptypes.RunSummary{
		StartedAt: time.Now(),
		Endpoints: pool.Size(),
		Accounts:  len(accounts),
	})
	if err != nil {
		logger.Error("failed to create run record", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sink := storage.NewSink(store, runID, 0, logger)

	eng, err := engine.New(engine.Config{
		Accounts:       account.NewRing(accounts),
		Pool:           pool,
		Builders:       builders,
		Classifier:     rpc.NewClassifier(cfg.ConflictPatterns),
		ChainID:        chainID,
		GasTipCap:      gasTipCap,
		GasFeeCap:      gasFeeCap,
		UseLegacy:      cfg.UseLegacy,
		MaxRetries:     cfg.MaxRetries,
		Workers:        cfg.Workers,
		QueueCapacity:  cfg.QueueCapacity,
		DequeueTimeout: cfg.DequeueTimeout,
		SubmitDelay:    cfg.SubmitDelay,
		ReconcileEvery: cfg.ReconcileEvery,
		SettleDelay:    cfg.SettleDelay,
		Collector:      collector,
		Prometheus:     promMetrics,
		Sink:           sink,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("failed to create engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down...")
		eng.Stop()
	}()

	// The engine owns the process lifetime: once Run returns the run is
	// finalized and the process exits.
	go func() {
		summary := eng.Run(context.Background())
		sink.Flush()

		finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.CompleteRun(finishCtx, runID, &summary); err != nil {
			logger.Error("failed to finalize run record", slog.String("error", err.Error()))
		}

		logger.Info("run complete",
			slog.Int64("run_id", runID),
			slog.Uint64("attempted", summary.Attempted),
			slog.Uint64("succeeded", summary.Succeeded),
			slog.Uint64("failed", summary.Failed),
			slog.Float64("avg_rate", summary.AvgRate),
		)
		store.Close()
		os.Exit(0)
	}()

	server := transport.NewServer(
		eng,
		&historyAdapter{store: store},
		&endpointHealth{pool: pool},
		logger,
		cfg.CORSAllowedOrigins,
	)

	logger.Info("starting HTTP server", slog.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, server.Handler()); err != nil {
		logger.Error("HTTP server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func loadAccounts(cfg *config.Config) ([]*account.Account, error) {
	if cfg.KeysFile != "" {
		return account.LoadFromFile(cfg.KeysFile)
	}
	return account.LoadTestAccounts()
}

// resolveFeeCap returns the configured fee cap, or derives one from the
// chain's gas price with 2x headroom against base fee movement.
func resolveFeeCap(ctx context.Context, cfg *config.Config, tipCap *big.Int, pool *endpoint.Pool, logger *slog.Logger) *big.Int {
	if cfg.GasFeeCap > 0 {
		return big.NewInt(cfg.GasFeeCap)
	}

	gasPrice, err := pool.NextRead().GetGasPrice(ctx)
	if err != nil {
		logger.Warn("failed to query gas price, using 2x tip as fee cap",
			slog.String("error", err.Error()),
		)
		return new(big.Int).Mul(tipCap, big.NewInt(2))
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gasPrice), big.NewInt(2))
}

func buildRegistry(cfg *config.Config) (*txbuilder.Registry, error) {
	registry := txbuilder.NewRegistry()
	registry.Register(txbuilder.NewTransferBuilder())

	if cfg.ContractAddress != "" {
		if !common.IsHexAddress(cfg.ContractAddress) {
			return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
		}
		abiJSON, err := os.ReadFile(cfg.ContractABIPath)
		if err != nil {
			return nil, fmt.Errorf("reading contract ABI: %w", err)
		}
		callBuilder, err := txbuilder.NewCallBuilder(
			common.HexToAddress(cfg.ContractAddress),
			string(abiJSON),
			cfg.ContractMethod,
			cfg.ContractGasLimit,
		)
		if err != nil {
			return nil, fmt.Errorf("creating call builder: %w", err)
		}
		registry.Register(callBuilder)
	}

	return registry, nil
}

// historyAdapter exposes the run history over the context-free transport
// interface, bounding every storage read.
type historyAdapter struct {
	store storage.Storage
}

const historyQueryTimeout = 10 * time.Second

func (h *historyAdapter) ListRuns(limit, offset int) (*storage.PaginatedRuns, error) {
	ctx, cancel := context.WithTimeout(context.Background(), historyQueryTimeout)
	defer cancel()
	return h.store.ListRuns(ctx, limit, offset)
}

func (h *historyAdapter) GetRun(id int64) (*ptypes.RunSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), historyQueryTimeout)
	defer cancel()
	return h.store.GetRun(ctx, id)
}

func (h *historyAdapter) GetSubmissions(runID int64, limit, offset int) (*storage.PaginatedSubmissions, error) {
	ctx, cancel := context.WithTimeout(context.Background(), historyQueryTimeout)
	defer cancel()
	return h.store.GetSubmissions(ctx, runID, limit, offset)
}

func (h *historyAdapter) GetSubmissionByHash(txHash string) (*ptypes.SubmissionRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), historyQueryTimeout)
	defer cancel()
	return h.store.GetSubmissionByHash(ctx, txHash)
}

func (h *historyAdapter) DeleteRun(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), historyQueryTimeout)
	defer cancel()
	return h.store.DeleteRun(ctx, id)
}

// endpointHealth probes every pool endpoint for readiness checks.
type endpointHealth struct {
	pool *endpoint.Pool
}

func (h *endpointHealth) CheckEndpoints() []transport.EndpointCheck {
	checks := make([]transport.EndpointCheck, 0, h.pool.Size())
	for _, client := range h.pool.Clients() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		start := time.Now()
		_, err := client.GetBlockNumber(ctx)
		cancel()

		check := transport.EndpointCheck{
			URL:       client.URL(),
			Status:    "ok",
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			check.Status = "failed"
			check.Error = err.Error()
		}
		checks = append(checks, check)
	}
	return checks
}
