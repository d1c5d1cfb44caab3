package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"launchpool/internal/storage"
)

// Checkpoint tracks the last applied operation.
type Checkpoint struct {
	LastAppliedSeq uint64 `json:"last_applied_seq"`
	UpdatedAt      string `json:"updated_at"`
}

// CheckpointStore persists replay progress.
type CheckpointStore interface {
	Load(ctx context.Context) (Checkpoint, bool, error)
	Save(ctx context.Context, lastApplied uint64) error
}

// FileCheckpoint keeps the checkpoint in a JSON file.
type FileCheckpoint struct {
	path    string
	enabled bool
}

func NewFileCheckpoint(path string, enabled bool) *FileCheckpoint {
	return &FileCheckpoint{path: path, enabled: enabled}
}

func (c *FileCheckpoint) Load(context.Context) (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}

	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return Checkpoint{}, false, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp, true, nil
}

func (c *FileCheckpoint) Save(_ context.Context, lastApplied uint64) error {
	if !c.enabled {
		return nil
	}
	cp := Checkpoint{
		LastAppliedSeq: lastApplied,
		UpdatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := storage.WriteJSONFile(c.path, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// StateStore is a named progress table, such as the Postgres replay_state table.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, seq uint64) error
}

// TableCheckpoint stores progress under name in a StateStore.
type TableCheckpoint struct {
	store StateStore
	name  string
}

func NewTableCheckpoint(store StateStore, name string) *TableCheckpoint {
	return &TableCheckpoint{store: store, name: name}
}

func (c *TableCheckpoint) Load(ctx context.Context) (Checkpoint, bool, error) {
	seq, ok, err := c.store.LoadState(ctx, c.name)
	if err != nil || !ok {
		return Checkpoint{}, ok, err
	}
	return Checkpoint{LastAppliedSeq: seq}, true, nil
}

func (c *TableCheckpoint) Save(ctx context.Context, lastApplied uint64) error {
	return c.store.SaveState(ctx, c.name, lastApplied)
}
