package config

import (
	"path/filepath"
	"time"
)

// Layout is the on-disk layout for one agent identity.
type Layout struct {
	Dir string
}

// Layout returns the layout rooted at <root>/<agent>.
func (c Config) Layout() Layout {
	return Layout{Dir: filepath.Join(c.Root, c.Agent)}
}

// MemoryFile is the long-term, human-readable fact file.
func (l Layout) MemoryFile() string { return filepath.Join(l.Dir, "MEMORY.md") }

// DailyDir holds one append-only log per day.
func (l Layout) DailyDir() string { return filepath.Join(l.Dir, "memory") }

// DailyLog returns the log file for the day of t (local date).
func (l Layout) DailyLog(t time.Time) string {
	return filepath.Join(l.DailyDir(), t.Format("2006-01-02")+".md")
}

// StoreDir holds one JSON collection per persisted memory type.
func (l Layout) StoreDir() string { return filepath.Join(l.Dir, "store") }

// StoreFile returns the collection file for a memory type name.
func (l Layout) StoreFile(kind string) string {
	return filepath.Join(l.StoreDir(), kind+".json")
}

// IndexPath is the embedded database file.
func (l Layout) IndexPath() string { return filepath.Join(l.Dir, "index.sqlite") }

// ConversationsDir holds JSONL transcripts.
func (l Layout) ConversationsDir() string { return filepath.Join(l.Dir, "conversations") }
