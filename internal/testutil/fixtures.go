// Package testutil provides shared test helpers. The Redis helpers are only
// built for integration tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteSkillet writes a meta file and its snippet files into dir and returns
// the meta file path.
func WriteSkillet(t *testing.T, dir, metaName, meta string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, metaName)
	if err := os.WriteFile(path, []byte(meta), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", p, err)
		}
	}
	return path
}

// Must fails the test on err and returns val otherwise.
func Must[T any](t *testing.T, val T, err error) T {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return val
}
