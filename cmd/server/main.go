package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/chainclass/defisim/internal/chain"
	"github.com/chainclass/defisim/internal/journal"
	"github.com/chainclass/defisim/internal/ledger"
	"github.com/chainclass/defisim/internal/metrics"
	"github.com/chainclass/defisim/internal/orchestrator"
	"github.com/chainclass/defisim/internal/query"
	"github.com/chainclass/defisim/internal/report"
	"github.com/chainclass/defisim/internal/server"
	"github.com/chainclass/defisim/internal/stream"
	"github.com/chainclass/defisim/pkg/config"
	"github.com/chainclass/defisim/pkg/logger"
	"github.com/chainclass/defisim/pkg/secretstore"
	"github.com/chainclass/defisim/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	configPath := flag.String("config", getenv("DEFISIM_CONFIG", ""), "config file (.yaml or .json; empty uses env/defaults)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		logger.Errorf("init backend failed: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	closer := shutdown.NewManager()

	if cfg.DebugAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.DebugAddr); err != nil {
			logger.Errorf("start debug server failed: %v", err)
			os.Exit(1)
		}
		logger.Infof("debug server on %s (/debug/vars, /debug/pprof)", cfg.DebugAddr)
	}

	orch := orchestrator.New(backend, orchestrator.Config{
		MaxAttempts:    cfg.Orchestrator.MaxAttempts,
		ConfirmTimeout: cfg.Chain.ConfirmTimeout,
		RetryBase:      time.Duration(cfg.Orchestrator.RetryBaseMs) * time.Millisecond,
		RetryMax:       time.Duration(cfg.Orchestrator.RetryMaxMs) * time.Millisecond,
	})
	orch.Start(ctx)

	queries := query.NewService(backend, cfg.Orchestrator.StateReadTTL)
	orch.Subscribe(queries)

	var j *journal.Journal
	if cfg.JournalPath != "" {
		j, err = journal.Open(cfg.JournalPath)
		if err != nil {
			logger.Errorf("open journal failed: %v", err)
			os.Exit(1)
		}
		closer.OnShutdown(func(context.Context) { _ = j.Close() })
		orch.Subscribe(j)
	}

	hub := stream.NewHub()
	closer.OnShutdown(func(context.Context) { hub.Close() })
	orch.Subscribe(orchestrator.ObserverFunc(func(out orchestrator.ActionOutcome) {
		hub.Broadcast(report.NewPayload(out))
	}))

	var synth report.Synthesizer
	if cfg.Narrative.APIKey != "" {
		synth = report.NewGeminiClient(report.GeminiConfig{
			BaseURL: cfg.Narrative.BaseURL,
			APIKey:  cfg.Narrative.APIKey,
			Model:   cfg.Narrative.Model,
			Timeout: cfg.Narrative.Timeout,
		})
	} else {
		logger.Warn("no narrative api key configured, explanations use the local fallback")
	}
	reporter := report.NewReporter(synth, cfg.Narrative.Timeout)

	srv := server.New(orch, queries, reporter, j, hub)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	closer.OnShutdown(func(ctx context.Context) { _ = httpSrv.Shutdown(ctx) })

	go func() {
		logger.Infof("simulator listening on %s (backend: %s)", cfg.ListenAddr, cfg.Chain.Backend)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	closer.Shutdown(shutdownCtx)

	fmt.Println("server stopped")
}

func buildBackend(cfg *config.Config) (chain.Backend, error) {
	switch cfg.Chain.Backend {
	case config.BackendSim:
		lgr := ledger.New(common.HexToAddress(cfg.OwnerAddress))
		return chain.NewSim(lgr, chain.SimConfig{
			Latency: time.Duration(cfg.Chain.SimLatencyMs) * time.Millisecond,
		}), nil
	case config.BackendEthereum:
		keyHex, err := loadOperatorKey(cfg.SecretStorePath)
		if err != nil {
			return nil, err
		}
		return chain.NewClient(chain.ClientConfig{
			RPCURL:              cfg.Chain.RPCURL,
			ContractAddress:     common.HexToAddress(cfg.Chain.ContractAddress),
			ChainID:             big.NewInt(cfg.Chain.ChainID),
			PrivateKeyHex:       keyHex,
			ReceiptPollInterval: time.Duration(cfg.Chain.ReceiptPollMs) * time.Millisecond,
		})
	}
	return nil, fmt.Errorf("unknown chain backend %q", cfg.Chain.Backend)
}

func loadOperatorKey(storePath string) (string, error) {
	encKey, err := secretstore.ParseKey(os.Getenv("DEFISIM_SECRET_STORE_KEY"))
	if err != nil {
		return "", fmt.Errorf("parse secret store key: %w", err)
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          storePath,
		EncryptionKey: encKey,
		ReadOnly:      true,
	})
	if err != nil {
		return "", fmt.Errorf("open secret store: %w", err)
	}
	defer store.Close()

	keyHex, found, err := store.OperatorKeyHex()
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no operator key in %s, run key-init first", storePath)
	}
	return keyHex, nil
}
