package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/workforge/flowengine/internal/execution"
)

// FilesystemStore is the default State Persistence backend: one JSON file
// per execution under Directory, written atomically via a temp sibling
// file, fsync, and rename.
type FilesystemStore struct {
	dir    string
	logger *zap.Logger
}

// NewFilesystemStore builds a FilesystemStore rooted at dir. The directory
// is created on first Save if absent — its absence is never an error on
// its own.
func NewFilesystemStore(dir string, logger *zap.Logger) *FilesystemStore {
	return &FilesystemStore{dir: dir, logger: logger.With(zap.String("component", "persistence_fs"))}
}

func (s *FilesystemStore) path(executionID string) string {
	return filepath.Join(s.dir, executionID+".json")
}

// Save writes exec's current snapshot atomically. Writes are best-effort
// from the scheduler's perspective: callers log failures but never block
// on them.
func (s *FilesystemStore) Save(ctx context.Context, exec *execution.Execution) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating persistence directory: %w", err)
	}

	data, err := marshal(exec)
	if err != nil {
		return fmt.Errorf("marshaling execution snapshot: %w", err)
	}

	final := s.path(exec.ExecutionID)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening temp snapshot file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temp snapshot file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsyncing temp snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp snapshot file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	return nil
}

// Delete removes executionID's snapshot file, if any.
func (s *FilesystemStore) Delete(ctx context.Context, executionID string) error {
	err := os.Remove(s.path(executionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing snapshot file: %w", err)
	}
	return nil
}

// LoadAll reads every snapshot under Directory. A missing directory is not
// an error.
func (s *FilesystemStore) LoadAll(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading persistence directory: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping corrupt snapshot", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
