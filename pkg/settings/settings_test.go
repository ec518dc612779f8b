package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSettings_Defaults(t *testing.T) {
	s := &Settings{}

	if got := s.GetPort(); got != 443 {
		t.Errorf("GetPort() default = %d, want 443", got)
	}
	if got := s.GetHistoryBackend(); got != BackendFile {
		t.Errorf("GetHistoryBackend() default = %q, want %q", got, BackendFile)
	}
	if got := s.GetRedisAddr(); got != "127.0.0.1:6379" {
		t.Errorf("GetRedisAddr() default = %q", got)
	}
	if got := filepath.Base(s.GetHistoryDir()); got != "history" {
		t.Errorf("GetHistoryDir() default = %q", s.GetHistoryDir())
	}
	if got := filepath.Base(s.GetAuditLog()); got != "audit.log" {
		t.Errorf("GetAuditLog() default = %q", s.GetAuditLog())
	}
	if s.GetPollInterval() != 0 || s.GetPollTimeout() != 0 {
		t.Error("poll durations should default to 0")
	}
}

func TestSettings_Set(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr bool
		check   func(s *Settings) bool
	}{
		{key: "default_host", value: "fw1.example.com", check: func(s *Settings) bool { return s.DefaultHost == "fw1.example.com" }},
		{key: "default_port", value: "8443", check: func(s *Settings) bool { return s.GetPort() == 8443 }},
		{key: "default_port", value: "abc", wantErr: true},
		{key: "default_port", value: "-1", wantErr: true},
		{key: "insecure", value: "true", check: func(s *Settings) bool { return s.Insecure }},
		{key: "insecure", value: "maybe", wantErr: true},
		{key: "history_backend", value: "redis", check: func(s *Settings) bool { return s.GetHistoryBackend() == BackendRedis }},
		{key: "history_backend", value: "sqlite", wantErr: true},
		{key: "redis_db", value: "3", check: func(s *Settings) bool { return s.RedisDB == 3 }},
		{key: "split_threshold", value: "5000", check: func(s *Settings) bool { return s.SplitThreshold == 5000 }},
		{key: "poll_interval", value: "2s", check: func(s *Settings) bool { return s.GetPollInterval() == 2*time.Second }},
		{key: "poll_timeout", value: "soon", wantErr: true},
		{key: "no_such_key", value: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			s := &Settings{}
			err := s.Set(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(s) {
				t.Errorf("Set(%q, %q) did not apply: %+v", tt.key, tt.value, s)
			}
			if err == nil {
				got, _ := s.Get(tt.key)
				if got != tt.value {
					t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.value)
				}
			}
		})
	}
}

func TestSettings_SetEmptyResets(t *testing.T) {
	s := &Settings{DefaultPort: 8443, Insecure: true, PollTimeout: "1m"}
	for _, key := range []string{"default_port", "insecure", "poll_timeout"} {
		if err := s.Set(key, ""); err != nil {
			t.Fatalf("Set(%q, \"\") error = %v", key, err)
		}
	}
	if s.DefaultPort != 0 || s.Insecure || s.PollTimeout != "" {
		t.Errorf("Set with empty value should reset, got %+v", s)
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	if len(keys) != 12 {
		t.Errorf("Keys() = %d keys, want 12", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Errorf("Keys() not sorted: %v", keys)
		}
	}
	if _, err := (&Settings{}).Get("bogus"); err == nil || !strings.Contains(err.Error(), "default_host") {
		t.Errorf("Get(bogus) error = %v, want list of valid keys", err)
	}
}

func TestSettings_Clear(t *testing.T) {
	s := &Settings{
		DefaultHost:    "fw1",
		DefaultPort:    8443,
		HistoryBackend: BackendRedis,
		AuditLog:       "/tmp/audit.log",
	}

	s.Clear()

	if *s != (Settings{}) {
		t.Error("Clear() should reset all fields to empty")
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	original := &Settings{
		DefaultHost:    "fw1",
		DefaultPort:    8443,
		APIKeyFile:     "/etc/skilletloader/key",
		Insecure:       true,
		HistoryBackend: BackendRedis,
		RedisAddr:      "10.0.0.5:6379",
		RedisDB:        2,
		SplitThreshold: 8000,
		PollInterval:   "5s",
	}

	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if *loaded != *original {
		t.Errorf("LoadFrom() = %+v, want %+v", loaded, original)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("settings file mode = %o, want 600", perm)
	}
}

func TestSettings_LoadNonExistent(t *testing.T) {
	s, err := LoadFrom("/nonexistent/path/settings.json")
	if err != nil {
		t.Fatalf("LoadFrom() non-existent should not error: %v", err)
	}
	if s == nil {
		t.Fatal("LoadFrom() should return non-nil Settings")
	}
	if s.DefaultHost != "" {
		t.Error("LoadFrom() non-existent should return empty settings")
	}
}

func TestSettings_LoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("invalid json {"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() with invalid JSON should error")
	}
}

func TestSettings_SaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "nested", "settings.json")

	s := &Settings{DefaultHost: "test"}
	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() should create directories: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("SaveTo() should have created the file")
	}
}

func TestLoadSave_Home(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() with non-existent file should not error: %v", err)
	}
	if s.DefaultHost != "" {
		t.Error("Load() with non-existent file should return empty settings")
	}

	s.DefaultHost = "saved-host"
	if err := s.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	expectedPath := filepath.Join(os.Getenv("HOME"), ".skilletloader", "settings.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Save() did not create file at %s", expectedPath)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() after Save() failed: %v", err)
	}
	if loaded.DefaultHost != "saved-host" {
		t.Errorf("After Save(), DefaultHost = %q, want %q", loaded.DefaultHost, "saved-host")
	}
}

func TestDefaultSettingsPath_NoHome(t *testing.T) {
	t.Setenv("HOME", "")

	if path := DefaultSettingsPath(); path != "skilletloader_settings.json" {
		t.Errorf("DefaultSettingsPath() with no HOME = %q, want %q", path, "skilletloader_settings.json")
	}
	if dir := DefaultDir(); dir != ".skilletloader" {
		t.Errorf("DefaultDir() with no HOME = %q, want %q", dir, ".skilletloader")
	}
}

func TestLoadFrom_ReadError(t *testing.T) {
	// A directory where the file should be causes a read error
	dirAsFile := filepath.Join(t.TempDir(), "settings.json")
	if err := os.Mkdir(dirAsFile, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	if _, err := LoadFrom(dirAsFile); err == nil {
		t.Error("LoadFrom() should error when path is a directory")
	}
}

func TestSaveTo_MkdirError(t *testing.T) {
	blockingFile := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blockingFile, []byte("blocking"), 0644); err != nil {
		t.Fatalf("Failed to create blocking file: %v", err)
	}

	s := &Settings{DefaultHost: "test"}
	if err := s.SaveTo(filepath.Join(blockingFile, "sub", "settings.json")); err == nil {
		t.Error("SaveTo() should error when directory creation fails")
	}
}
