package storage

import (
	"context"

	"launchpool/internal/model"
)

// Storage defines a sink for replay output.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
	PutResults(ctx context.Context, results []model.OpResult) error
	PutSnapshot(ctx context.Context, snap model.Snapshot) error
}

// Multi writes to every sink in order and stops at the first failure.
type Multi []Storage

func (m Multi) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	for _, s := range m {
		if err := s.PutLogBatch(ctx, logs); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) PutResults(ctx context.Context, results []model.OpResult) error {
	for _, s := range m {
		if err := s.PutResults(ctx, results); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) PutSnapshot(ctx context.Context, snap model.Snapshot) error {
	for _, s := range m {
		if err := s.PutSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}
