package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/skilletloader/pkg/skillet"
	"github.com/newtron-network/skilletloader/pkg/util"
)

func sampleRecord(id string, started time.Time) *Record {
	return &Record{
		RunID:    id,
		Skillet:  "base_config",
		Device:   "fw1",
		Status:   "success",
		Started:  started,
		Finished: started.Add(3 * time.Second),
		Steps: []skillet.Step{
			{Snippet: "address", Status: skillet.StepCaptured, Command: "set", XPath: "/config/a", Duration: time.Second},
			{Snippet: "facts", Status: skillet.StepSkipped},
		},
		Context: map[string]any{"hostname": "fw1", "zones": []any{"trust", "untrust"}},
	}
}

func TestNewRecord(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := &skillet.Result{
		RunID:    "r1",
		Skillet:  "base_config",
		Device:   "fw1",
		Status:   skillet.RunFailure,
		Err:      &util.CommitError{Device: "fw1", Detail: "locked"},
		Steps:    []skillet.Step{{Snippet: "a", Status: skillet.StepCaptured}},
		Context:  skillet.Context{"x": "1"},
		Started:  started,
		Finished: started.Add(2 * time.Second),
	}
	rec := NewRecord(res)

	if rec.Status != "failure" {
		t.Errorf("Status = %q, want %q", rec.Status, "failure")
	}
	if rec.ErrorKind != "CommitError" {
		t.Errorf("ErrorKind = %q, want %q", rec.ErrorKind, "CommitError")
	}
	if rec.Error == "" {
		t.Error("Error should be set")
	}
	if rec.Duration() != 2*time.Second {
		t.Errorf("Duration() = %v, want 2s", rec.Duration())
	}

	// The record owns its steps and context.
	res.Steps[0].Status = skillet.StepFailed
	res.Context["x"] = "2"
	if rec.Steps[0].Status != skillet.StepCaptured || rec.Context["x"] != "1" {
		t.Error("NewRecord should copy steps and context")
	}
}

func TestNewRecordSuccess(t *testing.T) {
	rec := NewRecord(&skillet.Result{RunID: "r2", Status: skillet.RunSuccess})
	if rec.Error != "" || rec.ErrorKind != "" {
		t.Errorf("Error = %q, ErrorKind = %q, want empty", rec.Error, rec.ErrorKind)
	}
	if rec.Duration() != 0 {
		t.Errorf("Duration() = %v, want 0 for unfinished run", rec.Duration())
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "mid"} {
		started := base.Add(time.Duration([]int{0, 2, 1}[i]) * time.Hour)
		if err := store.Save(ctx, sampleRecord(id, started)); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	t.Run("get", func(t *testing.T) {
		got, err := store.Get(ctx, "old")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if diff := cmp.Diff(sampleRecord("old", base), got); diff != "" {
			t.Errorf("Get() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		if !errors.Is(err, util.ErrNotFound) {
			t.Errorf("Get(nope) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		recs, err := store.List(ctx, 0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		var ids []string
		for _, r := range recs {
			ids = append(ids, r.RunID)
		}
		if diff := cmp.Diff([]string{"new", "mid", "old"}, ids); diff != "" {
			t.Errorf("List() ids mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("list limit", func(t *testing.T) {
		recs, err := store.List(ctx, 2)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(recs) != 2 || recs[0].RunID != "new" {
			t.Errorf("List(2) returned %d records", len(recs))
		}
	})

	t.Run("corrupt file skipped", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(store.Dir, "bad.json"), []byte("{"), 0644); err != nil {
			t.Fatal(err)
		}
		recs, err := store.List(ctx, 0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(recs) != 3 {
			t.Errorf("List() = %d records, want 3", len(recs))
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		rec := sampleRecord("mid", base.Add(time.Hour))
		rec.Committed = true
		if err := store.Save(ctx, rec); err != nil {
			t.Fatal(err)
		}
		got, _ := store.Get(ctx, "mid")
		if !got.Committed {
			t.Error("Save() should replace the record")
		}
	})
}

func TestFileStoreRejectsBadID(t *testing.T) {
	store := &FileStore{Dir: t.TempDir()}
	for _, id := range []string{"", "../escape", `a\b`} {
		if err := store.Save(context.Background(), &Record{RunID: id}); err == nil {
			t.Errorf("Save(%q) should fail", id)
		}
	}
}

func TestRedisFieldsRoundTrip(t *testing.T) {
	want := sampleRecord("r9", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	want.DryRun = true
	want.Error = "boom"
	want.ErrorKind = "DeviceOperationError"

	fields, err := recordFields(want)
	if err != nil {
		t.Fatalf("recordFields() error = %v", err)
	}
	vals := make(map[string]string, len(fields))
	for k, v := range fields {
		vals[k] = v.(string)
	}
	got, err := parseRecord("r9", vals)
	if err != nil {
		t.Fatalf("parseRecord() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRecordBadTime(t *testing.T) {
	if _, err := parseRecord("r", map[string]string{"started": "yesterday"}); err == nil {
		t.Error("parseRecord() should reject a malformed time")
	}
}
