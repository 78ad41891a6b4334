package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"p9candles/internal/config"
	"p9candles/internal/coordinator"
	"p9candles/internal/metrics"
	"p9candles/internal/store"
	"p9candles/pkg/candle"
	"p9candles/pkg/transport"
)

// App is the coordinator-side client: it restores cursor/history from the
// store, follows the live stream, and persists every applied batch before
// advancing its cursor.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Registry
	store   store.Store
	coord   *coordinator.Coordinator
	key     candle.Key

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to YAML config file")
	flag.Parse()

	app := &App{}
	if err := app.initialize(*configPath); err != nil {
		fmt.Printf("failed to initialize client: %v\n", err)
		os.Exit(2)
	}

	lastApplied, err := app.start()
	if err != nil {
		fmt.Printf("failed to start client: %v\n", err)
		os.Exit(1)
	}

	go app.run(lastApplied)

	app.waitForShutdown()
	app.shutdown()
}

func (app *App) initialize(configPath string) error {
	app.ctx, app.cancel = context.WithCancel(context.Background())

	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logCfg.OutputPaths = []string{"stdout"}
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	app.logger = logger

	loader := config.NewLoader()
	cfg, err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnvOverrides(cfg, os.Getenv)
	app.cfg = cfg

	if cfg.Metrics.Enabled {
		app.metrics = metrics.NewRegistry(app.logger)
	}

	mode, ok := store.ParseStorageMode(cfg.Storage.Mode)
	if !ok {
		return fmt.Errorf("unrecognized storage mode %q", cfg.Storage.Mode)
	}
	s, err := store.New(store.Config{
		Mode: mode,
		Redis: store.RedisOptions{
			Addr:     cfg.RedisAddress(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		},
		DiskPath: cfg.Disk.Path,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	app.store = s

	app.key = candle.Key{SourceID: cfg.Live.SourceID, Symbol: cfg.Live.Symbol, Interval: cfg.Live.Interval}
	return nil
}

// start restores the session cursor/history and constructs the
// Coordinator, returning the sequence the caller should resume at.
func (app *App) start() (uint64, error) {
	lastApplied, _, err := coordinator.Restore(app.store, app.key)
	if err != nil {
		return 0, fmt.Errorf("restore session: %w", err)
	}

	coordCfg := coordinator.Config{
		Key:        app.key,
		IntervalMs: transport.ParseIntervalMs(app.key.Interval, app.logger),
		PubURL:     app.cfg.Live.LivePub,
		ReqURL:     app.cfg.Live.ChunkRep,
	}
	app.coord = coordinator.New(coordCfg, app.logger, app.metrics)

	if app.metrics != nil {
		if err := app.metrics.Start(app.cfg.Metrics.Addr); err != nil {
			return 0, fmt.Errorf("start metrics server: %w", err)
		}
	}

	app.logger.Info("client started",
		zap.String("source", app.key.SourceID), zap.String("symbol", app.key.Symbol),
		zap.Uint64("resume_at", lastApplied+1))
	return lastApplied, nil
}

// run drives the Coordinator and persists every applied batch, advancing
// the cursor only after the write succeeds.
func (app *App) run(lastApplied uint64) {
	go app.coord.Run(app.ctx, lastApplied)

	for ev := range app.coord.Events() {
		switch e := ev.(type) {
		case coordinator.CandleBatchEvent:
			if err := coordinator.PersistApplied(app.store, app.key, e.StartSequence, e.Candles); err != nil {
				app.logger.Error("failed to persist applied batch", zap.Error(err),
					zap.Uint64("start_sequence", e.StartSequence), zap.Int("count", len(e.Candles)))
				continue
			}
			app.logger.Debug("persisted candle batch",
				zap.Uint64("start_sequence", e.StartSequence), zap.Int("count", len(e.Candles)))
		case coordinator.StatusEvent:
			app.logger.Info("coordinator status changed", zap.String("status", e.Status.String()))
		case coordinator.ErrorEvent:
			app.logger.Warn("coordinator reported error", zap.Error(e.Err))
		}
	}
}

func (app *App) waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	app.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
}

func (app *App) shutdown() {
	app.cancel()
	time.Sleep(100 * time.Millisecond) // let the event-drain goroutine observe ctx.Done and exit
	if app.metrics != nil {
		app.metrics.Stop()
	}
	if err := app.store.Close(); err != nil {
		app.logger.Warn("error closing store", zap.Error(err))
	}
	app.logger.Info("client shutdown complete")
}
