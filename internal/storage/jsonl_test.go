package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"launchpool/internal/model"
)

func TestJsonlStorageAppendsBatches(t *testing.T) {
	dir := t.TempDir()
	paths := JsonlPaths{
		Logs:     filepath.Join(dir, "out", "logs.jsonl"),
		Results:  filepath.Join(dir, "out", "results.jsonl"),
		Snapshot: filepath.Join(dir, "out", "snapshot.json"),
	}
	store := NewJsonlStorage(paths)
	ctx := context.Background()

	require.NoError(t, store.PutLogBatch(ctx, []model.LogRecord{{TxIndex: 1}, {TxIndex: 2}}))
	require.NoError(t, store.PutLogBatch(ctx, []model.LogRecord{{TxIndex: 3}}))
	require.NoError(t, store.PutLogBatch(ctx, nil))
	require.NoError(t, store.PutResults(ctx, []model.OpResult{{Seq: 1, Op: "deposit", OK: true}}))

	var logs []model.LogRecord
	require.NoError(t, ScanJSONL(paths.Logs, func(line []byte) error {
		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return err
		}
		logs = append(logs, record)
		return nil
	}))
	require.Len(t, logs, 3)
	require.Equal(t, uint64(3), logs[2].TxIndex)

	lines := 0
	require.NoError(t, ScanJSONL(paths.Results, func([]byte) error {
		lines++
		return nil
	}))
	require.Equal(t, 1, lines)
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewJsonlStorage(JsonlPaths{Snapshot: path})

	_, ok, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.False(t, ok)

	first := model.Snapshot{Round: 1, TxIndex: 4, FeeTo: "0x00000000000000000000000000000000000000b0"}
	second := model.Snapshot{
		Round:               2,
		TxIndex:             9,
		Balances:            []model.BalanceEntry{{Asset: "0xa", Holder: "0xb", Amount: "10"}},
		GraduationThreshold: "50000",
	}
	require.NoError(t, store.PutSnapshot(context.Background(), first))
	require.NoError(t, store.PutSnapshot(context.Background(), second))

	got, ok, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second, got)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, _, err = LoadSnapshot(path)
	require.Error(t, err)
}

func TestJsonlStorageSkipsUnsetPaths(t *testing.T) {
	store := NewJsonlStorage(JsonlPaths{})
	ctx := context.Background()
	require.NoError(t, store.PutLogBatch(ctx, []model.LogRecord{{TxIndex: 1}}))
	require.NoError(t, store.PutResults(ctx, []model.OpResult{{Seq: 1}}))
	require.NoError(t, store.PutSnapshot(ctx, model.Snapshot{}))
}

func TestJSONLWriterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typed.jsonl")

	for i := 0; i < 2; i++ {
		w, err := NewJSONLWriter(path, false)
		require.NoError(t, err)
		require.NoError(t, w.Write(map[string]int{"n": i}))
		require.NoError(t, w.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\"n\":1}\n", string(data))
}

func TestScanJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("  {\"a\":1}\n\n\t\n{\"a\":2}  \n"), 0o644))

	var lines []string
	require.NoError(t, ScanJSONL(path, func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	}))
	require.Equal(t, []string{`{"a":1}`, `{"a":2}`}, lines)

	stop := errors.New("stop")
	require.ErrorIs(t, ScanJSONL(path, func([]byte) error { return stop }), stop)

	require.Error(t, ScanJSONL(filepath.Join(t.TempDir(), "missing.jsonl"), func([]byte) error { return nil }))
}

type recordingSink struct {
	name  string
	calls *[]string
	err   error
}

func (s recordingSink) PutLogBatch(context.Context, []model.LogRecord) error {
	*s.calls = append(*s.calls, s.name+":logs")
	return s.err
}

func (s recordingSink) PutResults(context.Context, []model.OpResult) error {
	*s.calls = append(*s.calls, s.name+":results")
	return s.err
}

func (s recordingSink) PutSnapshot(context.Context, model.Snapshot) error {
	*s.calls = append(*s.calls, s.name+":snapshot")
	return s.err
}

func TestMultiStopsAtFirstFailure(t *testing.T) {
	var calls []string
	failure := errors.New("down")
	multi := Multi{
		recordingSink{name: "a", calls: &calls},
		recordingSink{name: "b", calls: &calls, err: failure},
		recordingSink{name: "c", calls: &calls},
	}
	ctx := context.Background()

	require.ErrorIs(t, multi.PutLogBatch(ctx, nil), failure)
	require.ErrorIs(t, multi.PutResults(ctx, nil), failure)
	require.ErrorIs(t, multi.PutSnapshot(ctx, model.Snapshot{}), failure)
	require.Equal(t, []string{
		"a:logs", "b:logs",
		"a:results", "b:results",
		"a:snapshot", "b:snapshot",
	}, calls)
}
