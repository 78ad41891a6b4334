package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"p9candles/internal/config"
	"p9candles/internal/metrics"
	"p9candles/internal/simulator"
	"p9candles/internal/supervisor"
	"p9candles/pkg/candle"
	"p9candles/pkg/transport"
)

// App wires the replay/fault-injection service together: load config,
// bind PUB and REP endpoints, drive the publish ticker under supervision,
// wait for a shutdown signal.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Registry
	supervisor *supervisor.Supervisor
	sim        *simulator.Simulator
	key        candle.Key

	pubServer *http.Server
	repServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to YAML config file")
	flag.Parse()

	app := &App{}
	if err := app.initialize(*configPath); err != nil {
		fmt.Printf("failed to initialize simulator: %v\n", err)
		os.Exit(2)
	}

	if err := app.start(); err != nil {
		fmt.Printf("failed to start simulator: %v\n", err)
		os.Exit(1)
	}

	app.waitForShutdown()

	if err := app.shutdown(); err != nil {
		fmt.Printf("error during shutdown: %v\n", err)
		os.Exit(1)
	}
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

	key := candle.Key{SourceID: cfg.Live.SourceID, Symbol: cfg.Live.Symbol, Interval: cfg.Live.Interval}
	app.key = key
	simCfg := simulator.Config{
		Key:         key,
		IntervalMs:  transport.ParseIntervalMs(cfg.Live.Interval, app.logger),
		TickMs:      cfg.Simulator.TickMs,
		JitterMs:    cfg.Simulator.JitterMs,
		BatchSize:   cfg.Simulator.BatchSize,
		DropPercent: cfg.Simulator.DropPercent,
		GapEvery:    cfg.Simulator.GapEvery,
		Seed:        cfg.Simulator.Seed,
		StartPrice:  100,
		StartTsMs:   time.Now().UnixMilli(),
	}
	app.sim = simulator.New(simCfg, app.logger, app.metrics)
	app.supervisor = supervisor.NewSupervisor(app.logger)

	app.logger.Info("simulator initialized",
		zap.String("source", key.SourceID), zap.String("symbol", key.Symbol), zap.String("interval", key.Interval))
	return nil
}

func (app *App) start() error {
	pubAddr, pubPath, err := listenAddrAndPath(app.cfg.Live.LivePub)
	if err != nil {
		return fmt.Errorf("parse live_pub: %w", err)
	}
	repAddr, repPath, err := listenAddrAndPath(app.cfg.Live.ChunkRep)
	if err != nil {
		return fmt.Errorf("parse chunk_rep: %w", err)
	}

	pubHandler, repHandler := app.sim.Handlers()
	pubMux := http.NewServeMux()
	pubMux.Handle(pubPath, pubHandler)
	repMux := http.NewServeMux()
	repMux.Handle(repPath, repHandler)

	app.pubServer = &http.Server{Addr: pubAddr, Handler: pubMux}
	app.repServer = &http.Server{Addr: repAddr, Handler: repMux}

	if err := app.supervisor.AddWorker(supervisor.WorkerConfig{
		Name:           "simulator-publish",
		StreamKey:      app.key,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}, func(ctx context.Context) error {
		app.sim.Run(ctx)
		return nil
	}); err != nil {
		return err
	}

	if err := app.supervisor.AddWorker(supervisor.WorkerConfig{
		Name:           "simulator-listeners",
		StreamKey:      app.key,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}, app.runListeners); err != nil {
		return err
	}

	if app.metrics != nil {
		if err := app.metrics.Start(app.cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	if err := app.supervisor.Start(); err != nil {
		return err
	}

	app.logger.Info("simulator started",
		zap.String("pub_addr", pubAddr), zap.String("rep_addr", repAddr))
	return nil
}

func (app *App) runListeners(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		if err := app.pubServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("pub server: %w", err)
		}
	}()
	go func() {
		if err := app.repServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("rep server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.pubServer.Shutdown(shutdownCtx)
		app.repServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (app *App) waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	app.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
}

func (app *App) shutdown() error {
	app.cancel()
	if err := app.supervisor.Stop(); err != nil {
		app.logger.Warn("error stopping supervisor", zap.Error(err))
	}
	if app.metrics != nil {
		app.metrics.Stop()
	}
	app.logger.Info("simulator shutdown complete")
	return nil
}

// listenAddrAndPath splits a "ws://host:port/path" config value into the
// address to bind (host:port) and the path to mount the handler at.
func listenAddrAndPath(raw string) (addr, path string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.Host, u.Path, nil
}
