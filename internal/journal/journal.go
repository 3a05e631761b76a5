// Package journal records store operations in an append-only JSONL file.
//
// The journal is the only place where a cleared store differs from one that
// became empty through deletes: both have an empty collection, but only the
// former has a "clear" entry.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Op names a store operation.
type Op string

// Operations recorded by the store.
const (
	OpLoad   Op = "load"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpClear  Op = "clear"
)

// Entry is one journal line.
type Entry struct {
	Time    time.Time `json:"time"`
	Op      Op        `json:"op"`
	ID      string    `json:"id,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Count   int       `json:"count"`
	Err     string    `json:"err,omitempty"`
}

// Journal handles storage and in-memory caching of entries in JSONL format.
type Journal struct {
	path string
	mu   sync.RWMutex

	entries []Entry
}

// Open creates a Journal and loads all entries from the file.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	j := &Journal{path: path}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			j.entries = []Entry{}
			return nil
		}
		return fmt.Errorf("failed to open journal %s: %w", j.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("failed to unmarshal entry in %s: %w", j.path, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read journal %s: %w", j.path, err)
	}
	j.entries = entries
	return nil
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// All returns an iterator over all entries, oldest first.
func (j *Journal) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		j.mu.RLock()
		defer j.mu.RUnlock()
		for _, e := range j.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Record appends e and persists it. A zero Time is set to now.
func (j *Journal) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: journal is not secret
	if err != nil {
		return fmt.Errorf("failed to open journal for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	j.entries = append(j.entries, e)
	return nil
}
