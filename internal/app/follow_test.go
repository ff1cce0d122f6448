package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/manager"
)

// writeTranscript appends role/content pairs to a JSONL transcript.
func writeTranscript(t *testing.T, path string, pairs ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	enc := json.NewEncoder(f)
	for i := 0; i+1 < len(pairs); i += 2 {
		require.NoError(t, enc.Encode(map[string]string{"role": pairs[i], "content": pairs[i+1]}))
	}
}

type submitted struct {
	msgs []manager.Message
	full bool
}

func (s *submitted) submit(m manager.Message) bool {
	if s.full {
		return false
	}
	s.msgs = append(s.msgs, m)
	return true
}

func TestFollower_QueuesOnlyNewUserTurns(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	old := filepath.Join(dir, "old.jsonl")
	writeTranscript(t, old, "user", "before", "assistant", "noted")

	sub := &submitted{}
	f := newFollower(dir, 2, sub.submit, zap.NewNop())
	f.prime(ctx)
	assert.Zero(t, f.poll(ctx))

	writeTranscript(t, old, "user", "I use vim", "assistant", "ok", "user", "and tmux")
	writeTranscript(t, filepath.Join(dir, "new.jsonl"), "user", "first words")

	assert.Equal(t, 3, f.poll(ctx))
	require.Len(t, sub.msgs, 3)
	byContent := map[string]manager.Message{}
	for _, m := range sub.msgs {
		byContent[m.Content] = m
	}
	assert.Equal(t, "old", byContent["I use vim"].ScopeID)
	assert.Equal(t, "user: before\nassistant: noted", byContent["I use vim"].RecentContext)
	assert.Equal(t, "user: I use vim\nassistant: ok", byContent["and tmux"].RecentContext)
	assert.Equal(t, "new", byContent["first words"].ScopeID)
	assert.Empty(t, byContent["first words"].RecentContext)

	assert.Zero(t, f.poll(ctx), "nothing new")
}

func TestFollower_FullQueueRetriesNextPoll(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	sub := &submitted{full: true}
	f := newFollower(dir, 0, sub.submit, zap.NewNop())
	f.prime(ctx)

	writeTranscript(t, filepath.Join(dir, "chat.jsonl"), "user", "remember my birthday is in May")
	assert.Zero(t, f.poll(ctx))

	sub.full = false
	assert.Equal(t, 1, f.poll(ctx))
	require.Len(t, sub.msgs, 1)
	assert.Equal(t, "remember my birthday is in May", sub.msgs[0].Content)
}

func TestFollower_RewrittenTranscriptStartsOver(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	path := filepath.Join(dir, "chat.jsonl")
	writeTranscript(t, path, "user", "a", "user", "b", "user", "c")

	sub := &submitted{}
	f := newFollower(dir, 0, sub.submit, zap.NewNop())
	f.prime(ctx)

	require.NoError(t, os.Remove(path))
	writeTranscript(t, path, "user", "fresh start")
	assert.Equal(t, 1, f.poll(ctx))
	assert.Equal(t, "fresh start", sub.msgs[0].Content)
}
