package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"launchpool/internal/model"
)

// JsonlPaths names the files a JsonlStorage writes. Empty paths are skipped.
type JsonlPaths struct {
	Logs     string
	Results  string
	Snapshot string
}

// JsonlStorage appends logs and results as JSON lines and keeps the latest
// snapshot in a single JSON file.
type JsonlStorage struct {
	paths JsonlPaths
	mu    sync.Mutex
}

func NewJsonlStorage(paths JsonlPaths) *JsonlStorage {
	return &JsonlStorage{paths: paths}
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JsonlStorage) PutLogBatch(_ context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 || s.paths.Logs == "" {
		return nil
	}
	values := make([]interface{}, 0, len(logs))
	for _, record := range logs {
		values = append(values, record)
	}
	return s.appendLines(s.paths.Logs, values)
}

// PutResults appends operation results as JSON lines.
func (s *JsonlStorage) PutResults(_ context.Context, results []model.OpResult) error {
	if len(results) == 0 || s.paths.Results == "" {
		return nil
	}
	values := make([]interface{}, 0, len(results))
	for _, result := range results {
		values = append(values, result)
	}
	return s.appendLines(s.paths.Results, values)
}

// PutSnapshot replaces the snapshot file atomically.
func (s *JsonlStorage) PutSnapshot(_ context.Context, snap model.Snapshot) error {
	if s.paths.Snapshot == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteJSONFile(s.paths.Snapshot, snap)
}

func (s *JsonlStorage) appendLines(path string, values []interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := NewJSONLWriter(path, true)
	if err != nil {
		return err
	}
	for _, value := range values {
		if err := w.Write(value); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// LoadSnapshot reads a snapshot file written by PutSnapshot.
func LoadSnapshot(path string) (model.Snapshot, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

// WriteJSONFile writes value to path through a temporary file and rename.
func WriteJSONFile(path string, value interface{}) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ScanJSONL calls fn for every non-empty line of the file at path.
func ScanJSONL(path string, fn func(line []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}

// JSONLWriter writes one JSON value per line.
type JSONLWriter struct {
	file   *os.File
	writer *bufio.Writer
}

// NewJSONLWriter opens path for appending or truncating.
func NewJSONLWriter(path string, appendMode bool) (*JSONLWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return &JSONLWriter{file: file, writer: bufio.NewWriter(file)}, nil
}

func (w *JSONLWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	return w.file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	return nil
}
