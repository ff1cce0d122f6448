package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
)

// Mirror appends human-readable copies of memories to the long-term fact
// file and the daily logs. Appends to one file are serialized through the
// shared Locks registry.
type Mirror struct {
	layout config.Layout
	locks  *Locks
}

// NewMirror creates a Mirror over layout.
func NewMirror(layout config.Layout, locks *Locks) *Mirror {
	if locks == nil {
		locks = NewLocks()
	}
	return &Mirror{layout: layout, locks: locks}
}

// AppendFact adds a "- fact" line to MEMORY.md.
func (m *Mirror) AppendFact(fact string) error {
	return m.append(m.layout.MemoryFile(), "# Memory\n\n", "- "+oneLine(fact)+"\n")
}

// AppendEvent adds a timestamped line to the daily log of ts.
func (m *Mirror) AppendEvent(ts time.Time, event string) error {
	return m.append(m.layout.DailyLog(ts), dailyHeader(ts), fmt.Sprintf("- %s %s\n", ts.Format("15:04"), oneLine(event)))
}

// AppendSection adds a "## title" section with one bullet per line to the
// daily log of ts.
func (m *Mirror) AppendSection(ts time.Time, title string, lines []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## %s\n\n", title)
	for _, l := range lines {
		fmt.Fprintf(&b, "- %s\n", oneLine(l))
	}
	return m.append(m.layout.DailyLog(ts), dailyHeader(ts), b.String())
}

func (m *Mirror) append(path, header, text string) error {
	mu := m.locks.For(path)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		text = header + text
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func dailyHeader(ts time.Time) string {
	return "# " + ts.Format("2006-01-02") + "\n\n"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
