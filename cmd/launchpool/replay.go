package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"launchpool/internal/amm"
	"launchpool/internal/config"
	"launchpool/internal/engine"
	"launchpool/internal/ledger"
	"launchpool/internal/model"
	"launchpool/internal/replay"
	"launchpool/internal/storage"
	"launchpool/internal/storage/postgres"
)

const replayStateName = "launchpool"

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	engineCfg, err := buildEngineConfig(cfg.Engine)
	if err != nil {
		return err
	}
	start, err := config.ParseTimestamp(cfg.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start-time: %w", err)
	}

	ops, err := replay.ReadOperations(cfg.In)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := amm.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	clock := ledger.NewManualClock(time.Unix(int64(start), 0).UTC(), 0)
	eng, err := engine.New(engineCfg, clock, logger, metrics)
	if err != nil {
		return err
	}

	jsonl := storage.NewJsonlStorage(storage.JsonlPaths{
		Logs:     cfg.Out,
		Results:  cfg.Results,
		Snapshot: cfg.Snapshot,
	})
	var sink storage.Storage = jsonl
	var checkpoint replay.CheckpointStore = replay.NewFileCheckpoint(cfg.Checkpoint, cfg.CheckpointEnabled)
	loadSnapshot := func(context.Context) (model.Snapshot, bool, error) {
		return storage.LoadSnapshot(cfg.Snapshot)
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sink = storage.Multi{jsonl, store}
		if cfg.CheckpointEnabled {
			checkpoint = replay.NewTableCheckpoint(store, replayStateName)
			loadSnapshot = store.LatestSnapshot
		}
	}

	runner := replay.NewRunner(replay.RunConfig{
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		LoadSnapshot: loadSnapshot,
	}, eng, sink, checkpoint, logger.Named("replay"))

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.Int("operations", len(ops)),
		zap.String("out", cfg.Out),
		zap.String("results", cfg.Results),
		zap.String("snapshot", cfg.Snapshot),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		summary, err := runner.Run(gctx, ops)
		if err != nil {
			return err
		}
		logger.Info("replay complete",
			zap.Int("applied", summary.Applied),
			zap.Int("rejected", summary.Rejected),
			zap.Int("skipped", summary.Skipped),
			zap.Int("logs", summary.Logs),
			zap.Uint64("last_seq", summary.LastSeq),
		)
		return nil
	})
	if srv != nil {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}
