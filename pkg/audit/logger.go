package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newtron-network/skilletloader/pkg/util"
)

// Logger defines the interface for audit logging backends
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// FileLogger appends audit events to a JSON-lines file. When the file
// exceeds RotationConfig.MaxSize it is renamed with a timestamp suffix and a
// new file is started; queries read the backups as well.
type FileLogger struct {
	path     string
	rotation RotationConfig

	mu   sync.RWMutex
	file *os.File
	size int64
}

// RotationConfig configures log file rotation
type RotationConfig struct {
	MaxSize    int64 // Max file size in bytes before rotation
	MaxBackups int   // Max number of old files to retain
}

// backupSuffix sorts lexically in time order.
const backupSuffix = "20060102-150405.000000000"

// NewFileLogger opens (or creates) the log at path.
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	l := &FileLogger{path: path, rotation: rotation}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("opening audit log: %w", err)
	}
	l.file = file
	l.size = info.Size()
	return nil
}

// Log appends one event, rotating first when the file is full.
func (l *FileLogger) Log(event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotation.MaxSize > 0 && l.size >= l.rotation.MaxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotating audit log: %w", err)
		}
	}
	n, err := l.file.Write(line)
	l.size += int64(n)
	return err
}

// Query returns the events matching filter, newest first. Offset and Limit
// apply after filtering.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	files := append(l.backups(), l.path)
	var events []*Event
	for _, path := range files {
		matched, err := readEvents(path, filter)
		if err != nil {
			return nil, err
		}
		events = append(events, matched...)
	}

	// Files are read oldest first and appended in order
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(events) {
			return []*Event{}, nil
		}
		events = events[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(events) {
		events = events[:filter.Limit]
	}
	if events == nil {
		events = []*Event{}
	}
	return events, nil
}

func readEvents(path string, filter Filter) ([]*Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []*Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			util.Warnf("audit: skipping malformed entry at %s:%d: %v", filepath.Base(path), lineNum, err)
			continue
		}
		if filter.Match(&event) {
			events = append(events, &event)
		}
	}
	return events, scanner.Err()
}

// Close closes the log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	rotated := l.path + "." + time.Now().Format(backupSuffix)
	if err := os.Rename(l.path, rotated); err != nil {
		return err
	}
	if err := l.open(); err != nil {
		return err
	}
	if l.rotation.MaxBackups > 0 {
		backups := l.backups()
		for len(backups) > l.rotation.MaxBackups {
			os.Remove(backups[0])
			backups = backups[1:]
		}
	}
	return nil
}

// backups lists rotated files, oldest first.
func (l *FileLogger) backups() []string {
	matches, err := filepath.Glob(l.path + ".*")
	if err != nil {
		return nil
	}
	prefix := l.path + "."
	out := matches[:0]
	for _, m := range matches {
		if _, err := time.Parse(backupSuffix, strings.TrimPrefix(m, prefix)); err == nil {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

var defaultLogger atomic.Pointer[Logger]

// SetDefaultLogger sets the logger used by Log and Query. nil disables
// auditing.
func SetDefaultLogger(logger Logger) {
	if logger == nil {
		defaultLogger.Store(nil)
		return
	}
	defaultLogger.Store(&logger)
}

func getDefaultLogger() Logger {
	if p := defaultLogger.Load(); p != nil {
		return *p
	}
	return nil
}

// Log records event with the default logger. Without one it does nothing.
// Write failures are logged and returned.
func Log(event *Event) error {
	l := getDefaultLogger()
	if l == nil {
		return nil
	}
	if err := l.Log(event); err != nil {
		util.Warnf("audit: %v", err)
		return err
	}
	return nil
}

// Query queries events from the default logger
func Query(filter Filter) ([]*Event, error) {
	l := getDefaultLogger()
	if l == nil {
		return []*Event{}, nil
	}
	return l.Query(filter)
}
