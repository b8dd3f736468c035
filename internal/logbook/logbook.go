// Package logbook keeps a human-readable journey of negotiation runs: when a
// run started, which stages reported, and how it ended. The dashboard shows
// its tail.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one parsed logbook line.
type Entry struct {
	Time    time.Time
	Level   Level
	RunID   string
	Message string
}

// Logbook appends run entries to a plain text file.
type Logbook struct {
	path  string
	mu    sync.Mutex
	clock func() time.Time
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure dir: %w", err)
	}
	return &Logbook{path: path, clock: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry. runID may be empty for entries outside a run.
func (l *Logbook) Append(level Level, runID, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	run := strings.TrimSpace(runID)
	if run == "" {
		run = "-"
	}
	message = strings.Join(strings.Fields(message), " ")
	line := fmt.Sprintf("%s %-5s %s %s\n",
		l.clock().UTC().Format(time.RFC3339),
		string(level),
		run,
		message,
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Tail returns up to maxLines of the most recent entries plus the total
// number of lines in the logbook.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total == 0 {
		return nil, 0
	}
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Parse splits a logbook line into its fields.
func Parse(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Entry{}, false
	}
	entry := Entry{
		Time:    ts,
		Level:   Level(fields[1]),
		Message: strings.Join(fields[3:], " "),
	}
	if fields[2] != "-" {
		entry.RunID = fields[2]
	}
	return entry, true
}

// Run scopes logbook writes to one negotiation run.
type Run struct {
	book  *Logbook
	runID string
}

// ForRun returns a writer that tags every entry with runID.
func (l *Logbook) ForRun(runID string) Run {
	return Run{book: l, runID: runID}
}

// Info appends an informational entry.
func (r Run) Info(format string, args ...any) {
	r.book.Append(LevelInfo, r.runID, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (r Run) Warn(format string, args ...any) {
	r.book.Append(LevelWarn, r.runID, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (r Run) Error(format string, args ...any) {
	r.book.Append(LevelError, r.runID, fmt.Sprintf(format, args...))
}

// Info appends an informational entry outside any run.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, "", fmt.Sprintf(format, args...))
}

// Warn appends a warning entry outside any run.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, "", fmt.Sprintf(format, args...))
}

// Error appends an error entry outside any run.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, "", fmt.Sprintf(format, args...))
}
