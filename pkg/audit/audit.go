// Package audit records every command executed against a device as a
// JSON-lines trail, so operators can reconstruct who ran what, where, and
// through which path.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/switchyard-net/switchyard/pkg/util"
)

// Event is one executed (or attempted) device command.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user"`
	Device    string        `json:"device"`
	Host      string        `json:"host,omitempty"`
	Command   string        `json:"command"`
	Query     string        `json:"query,omitempty"` // the raw reference the device was resolved from
	Jump      string        `json:"jump,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	OutputLen int           `json:"output_len"`
	Duration  time.Duration `json:"duration"`
}

// Filter selects events from the trail.
type Filter struct {
	Device      string
	User        string
	Since       time.Time
	Until       time.Time
	FailureOnly bool
	Limit       int
}

// Logger is the audit trail backend.
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// Nop discards all events, for runs with auditing disabled.
type Nop struct{}

func (Nop) Log(*Event) error               { return nil }
func (Nop) Query(Filter) ([]*Event, error) { return nil, nil }
func (Nop) Close() error                   { return nil }

// FileLogger appends events to a JSON-lines file.
type FileLogger struct {
	path    string
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

func NewFileLogger(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &FileLogger{path: path, file: file, encoder: json.NewEncoder(file)}, nil
}

// NewEvent stamps identity and time onto an event skeleton.
func NewEvent(user, device, command string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		User:      user,
		Device:    device,
		Command:   command,
	}
}

func (l *FileLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.encoder.Encode(event)
}

func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Event{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []*Event
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			util.Warnf("audit: skipping malformed entry at line %d: %v", line, err)
			continue
		}
		if matches(&event, filter) {
			events = append(events, &event)
		}
	}
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, scanner.Err()
}

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

func matches(event *Event, filter Filter) bool {
	if filter.Device != "" && event.Device != filter.Device {
		return false
	}
	if filter.User != "" && event.User != filter.User {
		return false
	}
	if !filter.Since.IsZero() && event.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && event.Timestamp.After(filter.Until) {
		return false
	}
	if filter.FailureOnly && event.Success {
		return false
	}
	return true
}
