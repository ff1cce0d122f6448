package syncer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/embedding"
	"github.com/zuckermanai/zuckerman-sub001/internal/index"
	"github.com/zuckermanai/zuckerman-sub001/internal/metrics"
	"github.com/zuckermanai/zuckerman-sub001/internal/scheduler"
)

func testConfig(t *testing.T, sources ...string) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Root = t.TempDir()
	if len(sources) > 0 {
		cfg.Sources = sources
	}
	return cfg
}

func openIndex(t *testing.T, cfg config.Config) *index.Index {
	t.Helper()
	idx, err := index.Open(cfg.Layout().IndexPath(), index.Options{Embedder: embedding.NewHashEmbedder("hash-test", 64)})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func appendTo(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func message(role, text string) string {
	return fmt.Sprintf(`{"role":%q,"content":%q}`+"\n", role, text)
}

func TestSync_MemoryFiles(t *testing.T) {
	cfg := testConfig(t)
	l := cfg.Layout()
	idx := openIndex(t, cfg)
	s := New(idx, cfg, zap.NewNop(), nil)
	defer s.Close()
	ctx := context.Background()

	write(t, l.MemoryFile(), "- User prefers dark mode\n")
	write(t, filepath.Join(l.DailyDir(), "2024-01-01.md"), "- 09:00 standup\n")
	write(t, filepath.Join(l.DailyDir(), "projects", "atlas.md"), "Atlas launch in May\n")
	write(t, filepath.Join(l.DailyDir(), "notes.txt"), "ignored\n")

	rep, err := s.Sync(ctx, ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Indexed)
	assert.Equal(t, 0, rep.Failed)

	rep, err = s.Sync(ctx, ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Indexed)
	assert.Equal(t, 3, rep.Unchanged)

	require.NoError(t, os.Remove(filepath.Join(l.DailyDir(), "projects", "atlas.md")))
	rep, err = s.Sync(ctx, ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Removed)

	files, err := idx.Files(ctx, config.SourceMemory)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSync_TranscriptDeltaGating(t *testing.T) {
	cfg := testConfig(t, config.SourceMemory, config.SourceConversations)
	cfg.Sync.Conversations = config.ConversationDeltaConfig{DeltaBytes: 1 << 20, DeltaMessages: 3}
	idx := openIndex(t, cfg)
	s := New(idx, cfg, nil, nil)
	defer s.Close()
	ctx := context.Background()

	path := filepath.Join(cfg.Layout().ConversationsDir(), "chat-1.jsonl")
	write(t, path, message("user", "hello there")+message("assistant", "hi"))

	rep, err := s.Sync(ctx, ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Indexed, "first sight always indexes")

	appendTo(t, path, message("user", "one more"))
	rep, err = s.Sync(ctx, ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Deferred)

	appendTo(t, path, message("assistant", "sure")+message("user", "and another"))
	rep, err = s.Sync(ctx, ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Indexed)

	rec, err := idx.File(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 5, rec.Messages)
}

func TestSync_DisabledSourceIsRemoved(t *testing.T) {
	cfg := testConfig(t, config.SourceMemory, config.SourceConversations)
	idx := openIndex(t, cfg)
	path := filepath.Join(cfg.Layout().ConversationsDir(), "c.jsonl")
	write(t, path, message("user", "remember this"))

	s := New(idx, cfg, nil, nil)
	_, err := s.Sync(context.Background(), ReasonManual)
	require.NoError(t, err)
	s.Close()

	cfg.Sources = []string{config.SourceMemory}
	s = New(idx, cfg, nil, nil)
	defer s.Close()
	rep, err := s.Sync(context.Background(), ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Removed)
}

// blockingIndexer blocks every Files call until release is closed.
type blockingIndexer struct {
	entered chan struct{}
	release chan struct{}
	passes  atomic.Int64
}

func (b *blockingIndexer) UpsertFile(context.Context, string, string) (*index.UpsertResult, error) {
	return &index.UpsertResult{}, nil
}

func (b *blockingIndexer) UpsertDocument(context.Context, index.Document) (*index.UpsertResult, error) {
	return &index.UpsertResult{}, nil
}

func (b *blockingIndexer) RemoveFile(context.Context, string) (bool, error) { return false, nil }

func (b *blockingIndexer) File(context.Context, string) (*index.FileRecord, error) { return nil, nil }

func (b *blockingIndexer) Files(context.Context, string) ([]index.FileRecord, error) {
	if b.passes.Add(1) == 1 {
		close(b.entered)
	}
	<-b.release
	return nil, nil
}

func TestSync_CoalescesRequests(t *testing.T) {
	idx := &blockingIndexer{entered: make(chan struct{}), release: make(chan struct{})}
	m := metrics.New()
	s := New(idx, testConfig(t), nil, m)
	defer s.Close()

	s.RequestSync(ReasonManual)
	<-idx.entered
	for range 5 {
		s.RequestSync(ReasonSearch)
	}
	followUp := make(chan error, 1)
	go func() {
		_, err := s.Sync(context.Background(), ReasonManual)
		followUp <- err
	}()

	// give the joining Sync call time to attach to the pending pass
	time.Sleep(20 * time.Millisecond)
	close(idx.release)
	require.NoError(t, <-followUp)

	assert.Equal(t, int64(2), idx.passes.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SyncPasses))
}

func TestTriggers_RespectToggles(t *testing.T) {
	idx := &blockingIndexer{entered: make(chan struct{}), release: make(chan struct{})}
	close(idx.release)
	cfg := testConfig(t)
	cfg.Sync.OnSearch = false
	cfg.Sync.OnConversationStart = true
	s := New(idx, cfg, nil, nil)
	defer s.Close()

	s.OnSearch()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(0), idx.passes.Load())

	s.OnConversationStart()
	require.Eventually(t, func() bool { return idx.passes.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWatch_DebouncesBursts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.WatchDebounceMs = 100
	idx := openIndex(t, cfg)
	m := metrics.New()
	s := New(idx, cfg, nil, m)
	defer s.Close()
	require.NoError(t, s.Watch())

	for i := range 5 {
		write(t, filepath.Join(cfg.Layout().DailyDir(), fmt.Sprintf("2024-01-0%d.md", i+1)), "entry\n")
	}

	require.Eventually(t, func() bool {
		files, err := idx.Files(context.Background(), "")
		return err == nil && len(files) == 5
	}, 5*time.Second, 20*time.Millisecond)
	assert.Less(t, testutil.ToFloat64(m.SyncPasses), 5.0)
	require.NoError(t, s.StopWatch())
}

func TestScheduleInterval(t *testing.T) {
	sched, err := scheduler.New(nil)
	require.NoError(t, err)
	defer sched.Stop()

	cfg := testConfig(t)
	s := New(&blockingIndexer{}, cfg, nil, nil)
	require.NoError(t, s.ScheduleInterval(sched))
	assert.Empty(t, sched.Tasks())

	cfg.Sync.IntervalMinutes = 5
	s = New(&blockingIndexer{}, cfg, nil, nil)
	require.NoError(t, s.ScheduleInterval(sched))
	assert.Equal(t, []string{"sync-interval"}, sched.Tasks())
}

func TestTranscriptText(t *testing.T) {
	data := strings.Join([]string{
		`{"role":"user","content":"What is   the plan?"}`,
		`not json`,
		``,
		`{"role":"assistant","content":[{"type":"text","text":"Ship it"},{"type":"tool_use","text":""}]}`,
		`{"type":"message","message":{"role":"user","content":"ok"}}`,
		`{"type":"session","id":"abc"}`,
	}, "\n")

	text, n, err := TranscriptText([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "user: What is the plan?\nassistant: Ship it\nuser: ok\n", text)
}

func TestTranscriptText_OverlongLineFails(t *testing.T) {
	huge := `{"role":"user","content":"` + strings.Repeat("x", maxTranscriptLine) + `"}`
	data := message("user", "first") + huge + "\n" + message("user", "after")

	_, _, err := TranscriptText([]byte(data))
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestSync_OverlongTranscriptCountsAsFailed(t *testing.T) {
	cfg := testConfig(t, config.SourceMemory, config.SourceConversations)
	idx := openIndex(t, cfg)
	s := New(idx, cfg, nil, nil)
	defer s.Close()

	path := filepath.Join(cfg.Layout().ConversationsDir(), "big.jsonl")
	write(t, path, message("user", "hi")+`{"role":"user","content":"`+strings.Repeat("y", maxTranscriptLine)+`"}`+"\n")

	rep, err := s.Sync(context.Background(), ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 0, rep.Indexed)
}
