package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const currentLogName = "audit.log"

// FileLogger appends audit events as newline-delimited JSON to
// <basePath>/audit.log, rotating by size when configured.
type FileLogger struct {
	eventLogger
	basePath string
	rotate   bool
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	size    int64
	encoder *json.Encoder
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Base directory for audit logs
	Rotate   bool   // Enable log rotation
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/paperstack/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	logger.eventLogger = eventLogger{sink: logger}

	if logger.maxSize <= 0 {
		logger.maxSize = 100 * 1024 * 1024
	}
	if logger.maxFiles <= 0 {
		logger.maxFiles = 10
	}

	if err := logger.open(); err != nil {
		return nil, err
	}
	return logger, nil
}

// open opens the current log file for appending. Caller holds mu
// (or is the constructor).
func (l *FileLogger) open() error {
	name := filepath.Join(l.basePath, currentLogName)
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit log file: %w", err)
	}

	l.file = file
	l.size = info.Size()
	l.encoder = json.NewEncoder(file)
	return nil
}

// rotateLocked renames the current file aside and opens a fresh one.
func (l *FileLogger) rotateLocked() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	current := filepath.Join(l.basePath, currentLogName)
	rotated := filepath.Join(l.basePath,
		fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02-15-04-05.000000000")))
	if err := os.Rename(current, rotated); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	l.pruneRotated()
	return l.open()
}

// pruneRotated drops the oldest rotated files beyond maxFiles. The
// timestamp in the name sorts lexically, so name order is age order.
func (l *FileLogger) pruneRotated() {
	files, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil || len(files) <= l.maxFiles {
		return
	}

	sort.Strings(files)
	for _, file := range files[:len(files)-l.maxFiles] {
		if err := os.Remove(file); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", file, err)
		}
	}
}

// Log appends an audit event to the current file
func (l *FileLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotate && l.size >= l.maxSize {
		if err := l.rotateLocked(); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	if info, err := l.file.Stat(); err == nil {
		l.size = info.Size()
	}
	return nil
}

// Close closes the file logger
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

// ReadLogs reads up to count events from the current log file.
// A count of zero or less reads everything.
func (l *FileLogger) ReadLogs(count int) ([]*AuditEvent, error) {
	file, err := os.Open(filepath.Join(l.basePath, currentLogName))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*AuditEvent
	decoder := json.NewDecoder(file)
	for {
		var event AuditEvent
		if err := decoder.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, &event)
		if count > 0 && len(events) >= count {
			break
		}
	}
	return events, nil
}
