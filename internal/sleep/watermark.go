package sleep

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Watermarks records, per scope, how many turns have already been
// consolidated so a later run only sees newer activity.
type Watermarks struct {
	path string

	mu     sync.Mutex
	marks  map[string]int
	loaded bool
}

// NewWatermarks keeps marks in the JSON file at path, or in memory only
// when path is empty.
func NewWatermarks(path string) *Watermarks {
	return &Watermarks{path: path, marks: make(map[string]int)}
}

// Get returns the number of consolidated turns of scopeID.
func (w *Watermarks) Get(scopeID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.load(); err != nil {
		return 0, err
	}
	return w.marks[scopeID], nil
}

// Set records n consolidated turns for scopeID.
func (w *Watermarks) Set(scopeID string, n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.load(); err != nil {
		return err
	}
	prev, had := w.marks[scopeID]
	w.marks[scopeID] = n
	if err := w.save(); err != nil {
		if had {
			w.marks[scopeID] = prev
		} else {
			delete(w.marks, scopeID)
		}
		return err
	}
	return nil
}

func (w *Watermarks) load() error {
	if w.loaded || w.path == "" {
		return nil
	}
	data, err := os.ReadFile(w.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read watermarks: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &w.marks); err != nil {
			return fmt.Errorf("parse watermarks %s: %w", w.path, err)
		}
	}
	w.loaded = true
	return nil
}

func (w *Watermarks) save() error {
	if w.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(w.marks, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("write watermarks: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write watermarks: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write watermarks: %w", err)
	}
	return nil
}
