// Package logbook keeps the journey log: one line for every step a working
// directory goes through, so a student can see what was created, fetched,
// compiled and uploaded across runs.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level represents the severity of an entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one parsed line of the logbook.
type Entry struct {
	Time    time.Time
	Level   Level
	Subject string
	Message string
}

// Logbook appends entries to a text file.
type Logbook struct {
	path string
	now  func() time.Time
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure dir: %w", err)
	}
	return &Logbook{path: path, now: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry. Subject names the working directory or
// flow the entry is about. Write failures are dropped.
func (l *Logbook) Append(level Level, subject, message string) {
	if l == nil {
		return
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "-"
	}
	line := fmt.Sprintf("%s %-5s %s %s\n",
		l.now().UTC().Format(time.RFC3339),
		string(level),
		strings.ReplaceAll(subject, " ", "_"),
		strings.TrimSpace(message),
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Info appends an informational entry.
func (l *Logbook) Info(subject, format string, args ...any) {
	l.Append(LevelInfo, subject, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(subject, format string, args ...any) {
	l.Append(LevelWarn, subject, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(subject, format string, args ...any) {
	l.Append(LevelError, subject, fmt.Sprintf(format, args...))
}

// Tail returns up to maxLines of the most recent entries, oldest first.
// Lines that do not parse are skipped.
func (l *Logbook) Tail(maxLines int) []Entry {
	if l == nil || maxLines <= 0 {
		return nil
	}
	file, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if entry, ok := ParseLine(scanner.Text()); ok {
			entries = append(entries, entry)
		}
	}
	if len(entries) > maxLines {
		entries = entries[len(entries)-maxLines:]
	}
	return entries
}

// ParseLine reads a line written by Append.
func ParseLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Entry{}, false
	}
	entry := Entry{Time: ts, Level: Level(fields[1]), Subject: fields[2]}
	if len(fields) > 3 {
		entry.Message = strings.Join(fields[3:], " ")
	}
	return entry, true
}
