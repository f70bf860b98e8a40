package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"chainmirror/internal/api"
	"chainmirror/internal/chain"
	"chainmirror/internal/config"
	"chainmirror/internal/decoder"
	"chainmirror/internal/retry"
	"chainmirror/internal/storage"
	"chainmirror/internal/syncer"
)

func main() {
	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"rpc_server", cfg.RPCServerURL,
		"contract", cfg.ContractAddress,
		"max_blocks_per_cycle", cfg.MaxBlocksPerCycle,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 3. Initialize storage backends
	kv, err := storage.NewRedisKV(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisNamespace)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer kv.Close()

	pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	if err := pg.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	stateStore := storage.NewSyncStateStore(kv)
	if err := stateStore.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize sync state: %v", err)
	}
	eventStore := storage.NewDualEventStore(kv, pg)
	slog.Info("Storage backends connected")

	// 4. Connect to the chain
	rpcClient, err := chain.Dial(ctx, cfg.RPCServerURL)
	if err != nil {
		log.Fatalf("Failed to connect to rpc endpoint: %v", err)
	}
	defer rpcClient.Close()

	strategy := retry.NewStrategy(retry.LoadConfig())
	fetcher := chain.NewFetcher(rpcClient, strategy, common.HexToAddress(cfg.ContractAddress))

	// 5. Build the decoder from the configured ABI, or the embedded one
	abiJSON := decoder.DefaultRegistryABI
	if cfg.ContractABIPath != "" {
		raw, err := os.ReadFile(cfg.ContractABIPath)
		if err != nil {
			log.Fatalf("Failed to read contract ABI: %v", err)
		}
		abiJSON = string(raw)
	}
	dec, err := decoder.New(abiJSON)
	if err != nil {
		log.Fatalf("Failed to parse contract ABI: %v", err)
	}

	// 6. Wire the orchestrator
	lease := storage.NewRedisLease(kv, cfg.LeaseTTL)
	sync := syncer.New(fetcher, dec, eventStore, stateStore, lease, cfg.MaxBlocksPerCycle, cfg.CycleDelay)

	// 7. Start the API server
	server := api.NewServer(cfg.APIPort, eventStore, stateStore, sync, map[string]api.Pinger{
		"redis":    kv,
		"postgres": pg,
	})
	server.Start()

	// 8. Optional full sync from a fixed block, then the periodic worker
	if cfg.StartBlock > 0 {
		if err := sync.PerformFullSync(ctx, cfg.StartBlock); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Initial full sync failed, continuing with periodic cycles", "error", err)
		}
	}

	go runWorker(ctx, sync, cfg.SyncInterval)

	// 9. Wait for shutdown
	<-ctx.Done()
	slog.Warn("Interrupt received, shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}

	slog.Info("Indexer stopped")
}

// runWorker runs one sync cycle per tick until the context is cancelled.
// A lease held elsewhere (e.g. a manual trigger) just skips the tick.
func runWorker(ctx context.Context, sync *syncer.Syncer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sync.RunCycle(ctx); err != nil {
				if errors.Is(err, storage.ErrLeaseHeld) {
					slog.Debug("Sync cycle skipped, lease held elsewhere")
					continue
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				slog.Error("Sync cycle failed", "error", err)
			}
		}
	}
}
