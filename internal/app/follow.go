package app

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/manager"
	"github.com/zuckermanai/zuckerman-sub001/internal/sleep"
)

// followTask is the scheduler name of the transcript follower.
const followTask = "conversation-follow"

// follower tails <dir>/<scope>.jsonl transcripts and queues every new user
// turn for extraction, with the turns before it as recent context.
type follower struct {
	dir     string
	source  sleep.TranscriptSource
	submit  func(manager.Message) bool
	context int
	log     *zap.Logger

	mu   sync.Mutex
	seen map[string]int // turns already handled per scope
}

func newFollower(dir string, contextTurns int, submit func(manager.Message) bool, log *zap.Logger) *follower {
	return &follower{
		dir:     dir,
		source:  sleep.TranscriptSource{Dir: dir},
		submit:  submit,
		context: contextTurns,
		log:     log.Named("follow"),
		seen:    map[string]int{},
	}
}

// prime marks every turn already on disk as handled, so old conversations
// are not extracted again after a restart.
func (f *follower) prime(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, scope := range f.scopes() {
		turns, err := f.source.Recent(ctx, scope)
		if err != nil {
			f.log.Warn("read transcript failed", zap.String("scope", scope), zap.Error(err))
			continue
		}
		f.seen[scope] = len(turns)
	}
}

// poll queues the user turns appended since the last poll and returns how
// many were queued. When the queue is full the rest of that transcript
// waits for the next poll.
func (f *follower) poll(ctx context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	queued := 0
	for _, scope := range f.scopes() {
		if ctx.Err() != nil {
			break
		}
		turns, err := f.source.Recent(ctx, scope)
		if err != nil {
			f.log.Warn("read transcript failed", zap.String("scope", scope), zap.Error(err))
			continue
		}
		next := f.seen[scope]
		if next > len(turns) {
			// rewritten transcript
			next = 0
		}
		for ; next < len(turns); next++ {
			t := turns[next]
			if t.Role != "user" {
				continue
			}
			msg := manager.Message{Content: t.Content, ScopeID: scope, RecentContext: recentContext(turns[:next], f.context)}
			if !f.submit(msg) {
				break
			}
			queued++
		}
		f.seen[scope] = next
	}
	if queued > 0 {
		f.log.Debug("queued transcript turns", zap.Int("count", queued))
	}
	return queued
}

func (f *follower) scopes() []string {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.jsonl"))
	if err != nil {
		return nil
	}
	scopes := make([]string, 0, len(matches))
	for _, path := range matches {
		if scope := strings.TrimSuffix(filepath.Base(path), ".jsonl"); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

// recentContext joins the last n turns, one "role: text" line each.
func recentContext(turns []sleep.Turn, n int) string {
	if n <= 0 {
		return ""
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.String()
	}
	return strings.Join(lines, "\n")
}
