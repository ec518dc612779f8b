// Package settings manages persistent user settings for the skilletloader
// CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// History backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Settings holds persistent user preferences
type Settings struct {
	// DefaultHost is the device to use when --host is not specified
	DefaultHost string `json:"default_host,omitempty"`
	DefaultPort int    `json:"default_port,omitempty"`

	// APIKeyFile holds the device API key. Flags and the environment win.
	APIKeyFile string `json:"api_key_file,omitempty"`

	// Insecure skips TLS certificate verification
	Insecure bool `json:"insecure,omitempty"`

	HistoryBackend string `json:"history_backend,omitempty"`
	HistoryDir     string `json:"history_dir,omitempty"`
	RedisAddr      string `json:"redis_addr,omitempty"`
	RedisDB        int    `json:"redis_db,omitempty"`

	AuditLog string `json:"audit_log,omitempty"`

	// SplitThreshold overrides the payload size above which element
	// payloads are split into per-entry requests
	SplitThreshold int `json:"split_threshold,omitempty"`

	// PollInterval and PollTimeout are durations ("10s", "5m") used for job
	// and readiness polling
	PollInterval string `json:"poll_interval,omitempty"`
	PollTimeout  string `json:"poll_timeout,omitempty"`
}

// DefaultDir returns the per-user state directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".skilletloader"
	}
	return filepath.Join(home, ".skilletloader")
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "skilletloader_settings.json"
	}
	return filepath.Join(home, ".skilletloader", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// The file may name a key file, keep it private
	return os.WriteFile(path, data, 0600)
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}

// GetPort returns the device port (with fallback)
func (s *Settings) GetPort() int {
	if s.DefaultPort > 0 {
		return s.DefaultPort
	}
	return 443
}

// GetHistoryBackend returns the history backend (with fallback)
func (s *Settings) GetHistoryBackend() string {
	if s.HistoryBackend != "" {
		return s.HistoryBackend
	}
	return BackendFile
}

// GetHistoryDir returns the file history directory (with fallback)
func (s *Settings) GetHistoryDir() string {
	if s.HistoryDir != "" {
		return s.HistoryDir
	}
	return filepath.Join(DefaultDir(), "history")
}

// GetRedisAddr returns the Redis address for the redis backend
func (s *Settings) GetRedisAddr() string {
	if s.RedisAddr != "" {
		return s.RedisAddr
	}
	return "127.0.0.1:6379"
}

// GetAuditLog returns the audit log path (with fallback)
func (s *Settings) GetAuditLog() string {
	if s.AuditLog != "" {
		return s.AuditLog
	}
	return filepath.Join(DefaultDir(), "audit.log")
}

// GetPollInterval returns the poll interval, or 0 when unset or invalid.
func (s *Settings) GetPollInterval() time.Duration {
	return parseDuration(s.PollInterval)
}

// GetPollTimeout returns the poll timeout, or 0 when unset or invalid.
func (s *Settings) GetPollTimeout() time.Duration {
	return parseDuration(s.PollTimeout)
}

func parseDuration(v string) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// field binds a settings key to its string form.
type field struct {
	get func(s *Settings) string
	set func(s *Settings, v string) error
}

func stringField(p func(s *Settings) *string) field {
	return field{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error { *p(s) = v; return nil },
	}
}

func intField(p func(s *Settings) *int) field {
	return field{
		get: func(s *Settings) string {
			if *p(s) == 0 {
				return ""
			}
			return strconv.Itoa(*p(s))
		},
		set: func(s *Settings, v string) error {
			if v == "" {
				*p(s) = 0
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("expected a non-negative integer, got %q", v)
			}
			*p(s) = n
			return nil
		},
	}
}

func durationField(p func(s *Settings) *string) field {
	return field{
		get: func(s *Settings) string { return *p(s) },
		set: func(s *Settings, v string) error {
			if v != "" {
				if d, err := time.ParseDuration(v); err != nil || d < 0 {
					return fmt.Errorf("expected a duration such as 10s, got %q", v)
				}
			}
			*p(s) = v
			return nil
		},
	}
}

var fields = map[string]field{
	"default_host": stringField(func(s *Settings) *string { return &s.DefaultHost }),
	"default_port": intField(func(s *Settings) *int { return &s.DefaultPort }),
	"api_key_file": stringField(func(s *Settings) *string { return &s.APIKeyFile }),
	"insecure": {
		get: func(s *Settings) string {
			if !s.Insecure {
				return ""
			}
			return "true"
		},
		set: func(s *Settings, v string) error {
			if v == "" {
				s.Insecure = false
				return nil
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("expected true or false, got %q", v)
			}
			s.Insecure = b
			return nil
		},
	},
	"history_backend": {
		get: func(s *Settings) string { return s.HistoryBackend },
		set: func(s *Settings, v string) error {
			switch v {
			case "", BackendFile, BackendRedis:
				s.HistoryBackend = v
				return nil
			}
			return fmt.Errorf("expected %s or %s, got %q", BackendFile, BackendRedis, v)
		},
	},
	"history_dir":     stringField(func(s *Settings) *string { return &s.HistoryDir }),
	"redis_addr":      stringField(func(s *Settings) *string { return &s.RedisAddr }),
	"redis_db":        intField(func(s *Settings) *int { return &s.RedisDB }),
	"audit_log":       stringField(func(s *Settings) *string { return &s.AuditLog }),
	"split_threshold": intField(func(s *Settings) *int { return &s.SplitThreshold }),
	"poll_interval":   durationField(func(s *Settings) *string { return &s.PollInterval }),
	"poll_timeout":    durationField(func(s *Settings) *string { return &s.PollTimeout }),
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the stored value of key, "" when unset.
func (s *Settings) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown setting %q (valid: %v)", key, Keys())
	}
	return f.get(s), nil
}

// Set parses and stores value under key. An empty value resets the key.
func (s *Settings) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (valid: %v)", key, Keys())
	}
	if err := f.set(s, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
