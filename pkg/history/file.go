package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/newtron-network/skilletloader/pkg/util"
)

// FileStore keeps one JSON file per run in a directory.
type FileStore struct {
	Dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(runID string) string {
	return filepath.Join(s.Dir, runID+".json")
}

// Save writes the record atomically through a temp file.
func (s *FileStore) Save(_ context.Context, rec *Record) error {
	if rec.RunID == "" || strings.ContainsAny(rec.RunID, `/\`) {
		return fmt.Errorf("invalid run id %q", rec.RunID)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", rec.RunID, err)
	}
	tmp := s.path(rec.RunID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write run %s: %w", rec.RunID, err)
	}
	if err := os.Rename(tmp, s.path(rec.RunID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write run %s: %w", rec.RunID, err)
	}
	return nil
}

// Get reads one record.
func (s *FileStore) Get(_ context.Context, runID string) (*Record, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("run %s: %w", runID, util.ErrNotFound)
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse run %s: %w", runID, err)
	}
	return &rec, nil
}

// List reads every record in the directory. Unreadable files are skipped
// with a warning.
func (s *FileStore) List(ctx context.Context, limit int) ([]*Record, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*.json"))
	if err != nil {
		return nil, err
	}
	var records []*Record
	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), ".json")
		rec, err := s.Get(ctx, id)
		if err != nil {
			util.Warnf("Skipping history file %s: %v", m, err)
			continue
		}
		records = append(records, rec)
	}
	sortNewestFirst(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func sortNewestFirst(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Started.After(records[j].Started)
	})
}
