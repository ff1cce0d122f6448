package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/embedding"
	"github.com/zuckermanai/zuckerman-sub001/internal/llm"
	"github.com/zuckermanai/zuckerman-sub001/internal/manager"
	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Root = t.TempDir()
	cfg.Sync.Watch = false
	cfg.Query.MinScore = 0
	return cfg.Resolve()
}

func TestApp_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	canned := &llm.Canned{Default: &llm.ExtractionResponse{HasImportantInfo: true, Memories: []llm.Candidate{
		{Type: llm.KindPreference, Content: "User prefers dark mode", Importance: 0.9},
	}}}
	a, err := New(cfg, Options{Embedder: embedding.NewHashEmbedder("", 0), LLM: canned})
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Index)
	ctx := context.Background()

	a.Manager.OnNewMessage(ctx, manager.Message{Content: "I like dark mode please"})
	require.Len(t, a.Manager.GetSemanticMemories(), 1)

	rep, err := a.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Indexed, "MEMORY.md mirror is indexed")

	res, err := a.Manager.RetrieveMemories(ctx, manager.RetrieveParams{Query: "dark mode"})
	require.NoError(t, err)
	types := map[string]int{}
	for _, it := range res.Items {
		types[it.Type]++
	}
	assert.Equal(t, 1, types["semantic"])
	assert.Equal(t, 1, types[manager.ItemTypeIndex])
}

func TestApp_DegradesWithoutIndex(t *testing.T) {
	cfg := testConfig(t)
	// a directory where the database file should be
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Layout().IndexPath(), "x"), 0o755))

	a, err := New(cfg, Options{Embedder: embedding.NewHashEmbedder("", 0), LLM: &llm.Canned{}})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Index)
	assert.Nil(t, a.Syncer)

	_, err = a.Manager.AddSemanticMemory(memory.SemanticInput{Fact: "still works"})
	require.NoError(t, err)
	res, err := a.Manager.RetrieveMemories(context.Background(), manager.RetrieveParams{Query: "works"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)

	_, err = a.Sync(context.Background())
	assert.Error(t, err)
}

func TestApp_StartRegistersTasks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.IntervalMinutes = 10
	a, err := New(cfg, Options{Embedder: embedding.NewHashEmbedder("", 0), LLM: &llm.Canned{}})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Start(context.Background()))
	assert.ElementsMatch(t, []string{"working-sweep", followTask, "sync-interval"}, a.Scheduler.Tasks())
}

func TestApp_DisabledSkipsIndex(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false
	a, err := New(cfg, Options{LLM: &llm.Canned{}})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Index)
	assert.NotNil(t, a.Manager)
}

func TestApp_StartExtractsFollowedTurns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extract.Interval = 20 * time.Millisecond
	canned := &llm.Canned{Default: &llm.ExtractionResponse{HasImportantInfo: true, Memories: []llm.Candidate{
		{Type: llm.KindFact, Content: "User lives in Lisbon", Importance: 0.8},
	}}}
	a, err := New(cfg, Options{Embedder: embedding.NewHashEmbedder("", 0), LLM: canned})
	require.NoError(t, err)
	defer a.Close()

	dir := a.Layout.ConversationsDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeTranscript(t, filepath.Join(dir, "old.jsonl"), "user", "this was said before start")

	require.NoError(t, a.Start(context.Background()))
	writeTranscript(t, filepath.Join(dir, "chat.jsonl"),
		"user", "hello there",
		"assistant", "hi, how can I help",
		"user", "I moved to Lisbon last year")

	require.Eventually(t, func() bool {
		return len(a.Manager.GetSemanticMemories()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	var got []string
	for _, req := range canned.Requests() {
		got = append(got, req.Message)
	}
	assert.ElementsMatch(t, []string{"hello there", "I moved to Lisbon last year"}, got)
}
