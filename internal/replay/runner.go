// Package replay applies operation scripts to an engine in batches,
// persisting results, events and snapshots as it goes.
package replay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"launchpool/internal/model"
	"launchpool/internal/storage"
)

// Engine is the state machine a Runner drives.
type Engine interface {
	Apply(op model.Operation) model.OpResult
	Drain() []model.LogRecord
	Snapshot() model.Snapshot
	Restore(snap model.Snapshot) error
}

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	// LoadSnapshot returns the state to resume from when a checkpoint exists.
	LoadSnapshot func(ctx context.Context) (model.Snapshot, bool, error)
}

// Summary counts what a run did.
type Summary struct {
	Applied  int
	Rejected int
	Skipped  int
	Logs     int
	LastSeq  uint64
}

// Runner feeds operations to the engine and writes what it produces.
type Runner struct {
	cfg        RunConfig
	engine     Engine
	storage    storage.Storage
	checkpoint CheckpointStore
	logger     *zap.Logger
	retry      retryPolicy
	seen       map[uint64]struct{}
}

// NewRunner builds a Runner with its dependencies. checkpoint may be nil.
func NewRunner(cfg RunConfig, engine Engine, sink storage.Storage, checkpoint CheckpointStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		engine:     engine,
		storage:    sink,
		checkpoint: checkpoint,
		logger:     logger,
		retry:      retryPolicy{maxRetries: cfg.MaxRetries, baseDelay: cfg.RetryBackoff, logger: logger},
		seen:       make(map[uint64]struct{}),
	}
}

// Run applies ops in order, resuming after the last checkpointed operation.
func (r *Runner) Run(ctx context.Context, ops []model.Operation) (Summary, error) {
	var summary Summary
	if r.engine == nil {
		return summary, fmt.Errorf("engine is nil")
	}
	if r.storage == nil {
		return summary, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return summary, fmt.Errorf("batch size must be greater than zero")
	}

	var last uint64
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return summary, err
		}
		if ok {
			snapSeq, err := r.resume(ctx)
			if err != nil {
				return summary, err
			}
			last = cp.LastAppliedSeq
			if snapSeq > last {
				r.logger.Warn("snapshot is ahead of checkpoint",
					zap.Uint64("checkpoint", last),
					zap.Uint64("snapshot", snapSeq),
				)
				last = snapSeq
			}
			r.logger.Info("resume from checkpoint", zap.Uint64("last_applied", last))
		} else if r.cfg.LoadSnapshot != nil {
			// A snapshot without a checkpoint means the first batch was
			// persisted but the checkpoint write never landed.
			snap, found, err := r.cfg.LoadSnapshot(ctx)
			if err != nil {
				return summary, fmt.Errorf("load snapshot: %w", err)
			}
			if found && snap.LastAppliedSeq > 0 {
				if err := r.engine.Restore(snap); err != nil {
					return summary, err
				}
				last = snap.LastAppliedSeq
				r.logger.Warn("resume from snapshot without checkpoint", zap.Uint64("last_applied", last))
			}
		}
	}

	pending := make([]model.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Seq <= last {
			continue
		}
		if r.isDuplicate(op) {
			summary.Skipped++
			r.logger.Warn("duplicate operation skipped", zap.Uint64("seq", op.Seq), zap.String("op", op.Op))
			continue
		}
		pending = append(pending, op)
	}
	if len(pending) == 0 {
		r.logger.Info("nothing to apply", zap.Uint64("last_applied", last))
		summary.LastSeq = last
		return summary, nil
	}

	spans, err := SplitRange(0, uint64(len(pending)-1), r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}

	for _, span := range spans {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		batch := pending[span.From : span.To+1]
		results := make([]model.OpResult, 0, len(batch))
		for _, op := range batch {
			result := r.engine.Apply(op)
			if result.OK {
				summary.Applied++
			} else {
				summary.Rejected++
			}
			results = append(results, result)
		}
		logs := r.engine.Drain()
		summary.Logs += len(logs)
		lastSeq := batch[len(batch)-1].Seq

		if err := r.flush(ctx, results, logs, lastSeq); err != nil {
			return summary, err
		}
		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, lastSeq); err != nil {
				return summary, err
			}
		}
		summary.LastSeq = lastSeq

		r.logger.Info("batch complete",
			zap.Int("ops", len(batch)),
			zap.Int("logs", len(logs)),
			zap.Uint64("from_seq", batch[0].Seq),
			zap.Uint64("to_seq", lastSeq),
		)
	}

	return summary, nil
}

func (r *Runner) flush(ctx context.Context, results []model.OpResult, logs []model.LogRecord, lastSeq uint64) error {
	if err := r.retry.do(ctx, "results", func(ctx context.Context) error {
		return r.storage.PutResults(ctx, results)
	}); err != nil {
		return fmt.Errorf("store results: %w", err)
	}
	if err := r.retry.do(ctx, "logs", func(ctx context.Context) error {
		return r.storage.PutLogBatch(ctx, logs)
	}); err != nil {
		return fmt.Errorf("store logs: %w", err)
	}
	snap := r.engine.Snapshot()
	snap.LastAppliedSeq = lastSeq
	if err := r.retry.do(ctx, "snapshot", func(ctx context.Context) error {
		return r.storage.PutSnapshot(ctx, snap)
	}); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// resume restores the saved snapshot and returns the last operation it covers.
func (r *Runner) resume(ctx context.Context) (uint64, error) {
	if r.cfg.LoadSnapshot == nil {
		return 0, fmt.Errorf("checkpoint found but no snapshot source configured")
	}
	snap, ok, err := r.cfg.LoadSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("checkpoint found but snapshot is missing")
	}
	if err := r.engine.Restore(snap); err != nil {
		return 0, err
	}
	return snap.LastAppliedSeq, nil
}

func (r *Runner) isDuplicate(op model.Operation) bool {
	if _, ok := r.seen[op.Seq]; ok {
		return true
	}
	r.seen[op.Seq] = struct{}{}
	return false
}
