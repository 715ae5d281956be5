// Package eventlog appends workflow events to daily JSONL files.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"openswe/pkg/workflow"
)

// maxLineSize bounds a single event line when reading; code changes can be large.
const maxLineSize = 16 * 1024 * 1024

// Writer appends events to events-YYYY-MM-DD.jsonl under logDir, switching files
// when the UTC date changes.
type Writer struct {
	currentFile *os.File
	now         func() time.Time
	logDir      string
	currentDate string
	mu          sync.Mutex
}

// NewWriter creates the log directory and opens today's file.
func NewWriter(logDir string) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	writer := &Writer{
		logDir: logDir,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := writer.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}

	return writer, nil
}

// HandleEvent implements workflow.EventSink.
func (w *Writer) HandleEvent(_ context.Context, ev *workflow.Event) error {
	return w.WriteEvent(ev)
}

// WriteEvent writes one event as a JSON line and syncs the file.
func (w *Writer) WriteEvent(ev *workflow.Event) error {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	if w.currentFile == nil {
		return fmt.Errorf("event log is closed")
	}

	if _, err := w.currentFile.Write(append(jsonData, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	return nil
}

func (w *Writer) rotateIfNeeded() error {
	newDate := w.now().Format("2006-01-02")

	if w.currentFile == nil && w.currentDate != "" {
		// Closed.
		return nil
	}
	if w.currentFile == nil || w.currentDate != newDate {
		return w.rotate(newDate)
	}

	return nil
}

func (w *Writer) rotate(newDate string) error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
		w.currentFile = nil
	}

	path := filepath.Join(w.logDir, fileName(newDate))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentDate = newDate

	return nil
}

// Close closes the current log file. Later writes fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		if err != nil {
			return fmt.Errorf("failed to close event log file: %w", err)
		}
	}

	return nil
}

// GetCurrentLogFile returns the path of the currently active log file.
func (w *Writer) GetCurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}

	return filepath.Join(w.logDir, fileName(w.currentDate))
}

func fileName(date string) string {
	return fmt.Sprintf("events-%s.jsonl", date)
}

// ReadEvents parses every event in a log file. Blank lines are ignored.
func ReadEvents(logFilePath string) ([]workflow.Event, error) {
	file, err := os.Open(logFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	events := []workflow.Event{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var ev workflow.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("failed to parse event on line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file: %w", err)
	}

	return events, nil
}

// ListLogFiles returns all event log files in the log directory, oldest first.
func ListLogFiles(logDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(logDir, "events-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}
	sort.Strings(files)

	return files, nil
}
