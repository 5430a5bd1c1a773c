// Package history persists the interaction log: one record per question with
// the statement that was run, its result and the answer shown to the user.
//
// The log is a JSON array in a single file. Every change rewrites the file
// through a temp file and rename, so a crash never leaves a half-written log.
// Records are trimmed to the newest max entries on append.
package history

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the outcome of a recorded turn.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Record is one question and what came of it.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	Result    string    `json:"result"`
	Answer    string    `json:"answer"`
	Status    Status    `json:"status"`
}

// Failed reports whether the turn ended in a gate or model failure.
func (r Record) Failed() bool { return r.Status == StatusFailed }

// Stats summarizes the log.
type Stats struct {
	Total      int
	Successful int
	Failed     int
}

// SuccessRate returns the share of successful turns in percent.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total) * 100
}

// Store is a file-backed interaction log. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	path    string
	max     int
	records []Record
}

// Open loads the log at path, keeping at most max records. A missing file
// is an empty log. A file that is not valid JSON is set aside with a
// ".corrupt" suffix and the log starts empty.
func Open(path string, max int) (*Store, error) {
	if max <= 0 {
		return nil, fmt.Errorf("history size must be positive, got %d", max)
	}
	s := &Store{path: path, max: max}

	data, err := os.ReadFile(path)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read history: %w", err)
	}

	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &s.records); err != nil {
			zap.L().Warn("history file unreadable, starting empty", zap.String("path", path), zap.Error(err))
			_ = os.Rename(path, path+".corrupt")
			s.records = nil
		}
	}
	s.trim()
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Append adds rec, trims the log and writes it out. A missing ID or
// timestamp is filled in.
func (s *Store) Append(rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusSuccess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	s.trim()
	return s.save()
}

// Recent returns the newest n records, oldest first. n <= 0 returns all.
func (s *Store) Recent(n int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && n < len(s.records) {
		start = len(s.records) - n
	}
	out := make([]Record, len(s.records)-start)
	copy(out, s.records[start:])
	return out
}

// Search returns records whose question, answer or SQL contains keyword,
// ignoring case, oldest first.
func (s *Store) Search(keyword string) []Record {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	if kw == "" {
		return out
	}
	for _, r := range s.records {
		if strings.Contains(strings.ToLower(r.Question), kw) ||
			strings.Contains(strings.ToLower(r.Answer), kw) ||
			strings.Contains(strings.ToLower(r.SQL), kw) {
			out = append(out, r)
		}
	}
	return out
}

// Stats counts successful and failed turns.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.records)}
	for _, r := range s.records {
		if r.Failed() {
			st.Failed++
		} else {
			st.Successful++
		}
	}
	return st
}

// Clear removes every record and writes the empty log.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return s.save()
}

func (s *Store) trim() {
	if len(s.records) > s.max {
		s.records = append([]Record(nil), s.records[len(s.records)-s.max:]...)
	}
}

// save writes the log atomically. Callers hold s.mu.
func (s *Store) save() error {
	records := s.records
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

// Truncate shortens s to at most n runes. n <= 0 returns s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Ellipsis shortens s to n runes and appends "..." when it was cut.
func Ellipsis(s string, n int) string {
	t := Truncate(s, n)
	if t != s {
		return t + "..."
	}
	return t
}
