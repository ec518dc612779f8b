// Package history keeps a record of every skillet run so that runs can be
// listed and inspected after the fact. Two stores are provided: JSON files
// on the local disk and a Redis hash per run indexed by a sorted set.
package history

import (
	"context"
	"time"

	"github.com/newtron-network/skilletloader/pkg/skillet"
)

// Record is the persisted summary of one run.
type Record struct {
	RunID     string         `json:"run_id"`
	Skillet   string         `json:"skillet"`
	Device    string         `json:"device"`
	DryRun    bool           `json:"dry_run,omitempty"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Started   time.Time      `json:"started"`
	Finished  time.Time      `json:"finished"`
	Committed bool           `json:"committed,omitempty"`
	Steps     []skillet.Step `json:"steps"`
	Context   map[string]any `json:"context,omitempty"`
}

// NewRecord builds a record from a finished run.
func NewRecord(res *skillet.Result) *Record {
	r := &Record{
		RunID:     res.RunID,
		Skillet:   res.Skillet,
		Device:    res.Device,
		DryRun:    res.DryRun,
		Status:    string(res.Status),
		Started:   res.Started,
		Finished:  res.Finished,
		Committed: res.Committed,
		Steps:     append([]skillet.Step(nil), res.Steps...),
		Context:   res.Context.Clone(),
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
		r.ErrorKind = res.ErrorKind()
	}
	return r
}

// Duration returns how long the run took.
func (r *Record) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Store persists run records.
type Store interface {
	// Save writes rec, replacing any record with the same run id.
	Save(ctx context.Context, rec *Record) error

	// Get returns one record. A missing record wraps util.ErrNotFound.
	Get(ctx context.Context, runID string) (*Record, error)

	// List returns records newest first. limit <= 0 returns all of them.
	List(ctx context.Context, limit int) ([]*Record, error)
}
