package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEvent_New(t *testing.T) {
	event := NewEvent("run-1", "fw1", EventTypeDispatch)

	if event.RunID != "run-1" {
		t.Errorf("RunID = %q, want %q", event.RunID, "run-1")
	}
	if event.Device != "fw1" {
		t.Errorf("Device = %q, want %q", event.Device, "fw1")
	}
	if event.Operation != EventTypeDispatch {
		t.Errorf("Operation = %q, want %q", event.Operation, EventTypeDispatch)
	}
	if event.ID == "" {
		t.Error("ID should not be empty")
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if other := NewEvent("run-1", "fw1", EventTypeDispatch); other.ID == event.ID {
		t.Error("event IDs should be unique")
	}
}

func TestEvent_Chaining(t *testing.T) {
	event := NewEvent("run-1", "fw1", EventTypeDispatch).
		WithUser("alice").
		WithSkillet("baseline").
		WithSnippet("hostname").
		WithCommand("set", "/config/devices/entry/deviceconfig/system").
		WithParts(3).
		WithSuccess().
		WithDuration(time.Second).
		WithDryRun(true)

	if event.User != "alice" {
		t.Errorf("User = %q", event.User)
	}
	if event.Skillet != "baseline" || event.Snippet != "hostname" {
		t.Errorf("Skillet/Snippet = %q/%q", event.Skillet, event.Snippet)
	}
	if event.Command != "set" || event.XPath == "" {
		t.Errorf("Command/XPath = %q/%q", event.Command, event.XPath)
	}
	if event.Parts != 3 {
		t.Errorf("Parts = %d, want 3", event.Parts)
	}
	if !event.Success {
		t.Error("Success should be true")
	}
	if event.Duration != time.Second {
		t.Errorf("Duration = %v", event.Duration)
	}
	if !event.DryRun {
		t.Error("DryRun should be true")
	}
}

func TestEvent_WithError(t *testing.T) {
	event := NewEvent("run-1", "fw1", EventTypeCommit).
		WithError(errors.New("test error"))

	if event.Success {
		t.Error("Success should be false")
	}
	if event.Error != "test error" {
		t.Errorf("Error = %q", event.Error)
	}

	event2 := NewEvent("run-1", "fw1", EventTypeCommit).WithError(nil)
	if event2.Success {
		t.Error("Success should be false even with nil error")
	}
	if event2.Error != "" {
		t.Errorf("Error should be empty with nil error, got %q", event2.Error)
	}
}

func newTestLogger(t *testing.T, rotation RotationConfig) (*FileLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(logPath, rotation)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, logPath
}

func TestFileLogger_Basic(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	event := NewEvent("run-1", "fw1", EventTypeDispatch).
		WithSkillet("baseline").
		WithSnippet("hostname").
		WithSuccess()

	if err := logger.Log(event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Snippet != "hostname" {
		t.Errorf("Snippet = %q, want %q", events[0].Snippet, "hostname")
	}
	if events[0].Device != "fw1" {
		t.Errorf("Device = %q, want %q", events[0].Device, "fw1")
	}
}

func TestFileLogger_QueryFilters(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	events := []*Event{
		NewEvent("run-1", "fw1", EventTypeDispatch).WithSkillet("baseline").WithSnippet("a").WithSuccess(),
		NewEvent("run-1", "fw1", EventTypeSkip).WithSkillet("baseline").WithSnippet("b").WithSuccess(),
		NewEvent("run-1", "fw1", EventTypeCommit).WithSkillet("baseline").WithError(errors.New("failed")),
		NewEvent("run-2", "fw2", EventTypeDispatch).WithSkillet("nat").WithSnippet("a").WithSuccess(),
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by run", Filter{RunID: "run-1"}, 3},
		{"by device", Filter{Device: "fw2"}, 1},
		{"by skillet", Filter{Skillet: "baseline"}, 3},
		{"by snippet", Filter{Snippet: "a"}, 2},
		{"by operation", Filter{Operation: EventTypeDispatch}, 2},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"offset", Filter{Offset: 3}, 1},
		{"offset beyond events", Filter{Offset: 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("Query(%+v) = %d events, want %d", tt.filter, len(results), tt.want)
			}
		})
	}
}

func TestFileLogger_QueryTimeFilter(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})
	logger.Log(NewEvent("run-1", "fw1", EventTypeRun).WithSuccess())

	results, _ := logger.Query(Filter{
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	})
	if len(results) != 1 {
		t.Errorf("Expected 1 event in time range, got %d", len(results))
	}

	results, _ = logger.Query(Filter{StartTime: time.Now().Add(time.Hour)})
	if len(results) != 0 {
		t.Errorf("Expected 0 events after start time, got %d", len(results))
	}

	results, _ = logger.Query(Filter{EndTime: time.Now().Add(-time.Hour)})
	if len(results) != 0 {
		t.Errorf("Expected 0 events before end time, got %d", len(results))
	}
}

func TestFileLogger_CreatesDirectories(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "audit.log")
	logger, err := NewFileLogger(logPath, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger should create directories: %v", err)
	}
	logger.Close()
}

func TestFileLogger_OpenError(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	if err := os.Mkdir(logPath, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if _, err := NewFileLogger(logPath, RotationConfig{}); err == nil {
		t.Error("NewFileLogger should fail when log path is a directory")
	}
}

func TestFileLogger_QueryMalformedJSON(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	content := `{"run_id":"run-1","device":"fw1","operation":"commit","success":true}
invalid json line
{"run_id":"run-2","device":"fw2","operation":"commit","success":true}
`
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test data: %v", err)
	}

	logger, err := NewFileLogger(logPath, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	results, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 valid events (skipping malformed), got %d", len(results))
	}
}

func TestFileLogger_RotationWithCleanup(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{
		MaxSize:    50,
		MaxBackups: 2,
	})

	for i := 0; i < 10; i++ {
		if err := logger.Log(NewEvent("run-1", "fw1", EventTypeDispatch)); err != nil {
			t.Fatalf("Log failed on iteration %d: %v", i, err)
		}
	}

	matches, err := filepath.Glob(logPath + ".*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) == 0 {
		t.Error("Expected rotation to create backup files")
	}
	if len(matches) > 2 {
		t.Errorf("Expected at most 2 backup files, got %d", len(matches))
	}
}

func TestDefaultLogger(t *testing.T) {
	SetDefaultLogger(nil)

	if err := Log(NewEvent("run-1", "fw1", EventTypeRun)); err != nil {
		t.Errorf("Log with nil default should not error: %v", err)
	}
	results, err := Query(Filter{})
	if err != nil {
		t.Errorf("Query with nil default should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 results, got %d", len(results))
	}

	logger, _ := newTestLogger(t, RotationConfig{})
	SetDefaultLogger(logger)
	defer SetDefaultLogger(nil)

	if err := Log(NewEvent("run-1", "fw1", EventTypeRun).WithSuccess()); err != nil {
		t.Errorf("Log failed: %v", err)
	}
	results, err = Query(Filter{})
	if err != nil {
		t.Errorf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected 1 result, got %d", len(results))
	}
}

func TestFileLogger_QueryNewestFirst(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})
	for _, snippet := range []string{"first", "second", "third"} {
		logger.Log(NewEvent("run-1", "fw1", EventTypeDispatch).WithSnippet(snippet))
	}

	results, err := logger.Query(Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	var got []string
	for _, e := range results {
		got = append(got, e.Snippet)
	}
	want := []string{"third", "second"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Query(Limit: 2) = %v, want %v", got, want)
	}
}

func TestFileLogger_QuerySpansBackups(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{MaxSize: 50})

	for i := 0; i < 5; i++ {
		if err := logger.Log(NewEvent("run-1", "fw1", EventTypeDispatch).WithSnippet(fmt.Sprintf("s%d", i))); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	matches, _ := filepath.Glob(logPath + ".*")
	if len(matches) == 0 {
		t.Fatal("Expected backup files")
	}

	results, err := logger.Query(Filter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("Query = %d events, want 5", len(results))
	}
	if results[0].Snippet != "s4" || results[4].Snippet != "s0" {
		t.Errorf("order = %s..%s, want s4..s0", results[0].Snippet, results[4].Snippet)
	}
}

func TestFilter_Match(t *testing.T) {
	event := NewEvent("run-1", "fw1", EventTypeDispatch).WithSkillet("baseline").WithSnippet("a").WithSuccess()

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"all fields", Filter{RunID: "run-1", Device: "fw1", Skillet: "baseline", Snippet: "a", Operation: EventTypeDispatch}, true},
		{"other device", Filter{Device: "fw2"}, false},
		{"other operation", Filter{Operation: EventTypeCommit}, false},
		{"failure only", Filter{FailureOnly: true}, false},
		{"limit ignored", Filter{Limit: 1, Offset: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(event); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
