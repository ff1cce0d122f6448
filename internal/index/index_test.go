package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuckermanai/zuckerman-sub001/internal/chunker"
	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/embedding"
)

type failingEmbedder struct {
	*embedding.HashEmbedder
	poison string
}

func (f failingEmbedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	if f.poison == "" || strings.Contains(text, f.poison) {
		return nil, &embedding.ProviderError{Provider: "test", Err: errors.New("boom")}
	}
	return f.HashEmbedder.Embed(ctx, text)
}

func newTestIndex(t *testing.T, opts Options) *Index {
	t.Helper()
	if opts.Embedder == nil {
		opts.Embedder = embedding.NewHashEmbedder("hash-test", 64)
	}
	idx, err := Open(filepath.Join(t.TempDir(), "index.sqlite"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func hybridOptions() QueryOptions {
	return QueryOptionsFrom(config.Defaults().Query)
}

func TestUpsertFile_UnchangedIsNoop(t *testing.T) {
	idx := newTestIndex(t, Options{})
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "MEMORY.md", "- User prefers dark mode\n")

	res, err := idx.UpsertFile(ctx, path, config.SourceMemory)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.Chunks)

	res, err = idx.UpsertFile(ctx, path, config.SourceMemory)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	require.NoError(t, os.WriteFile(path, []byte("- User prefers light mode\n- Lives in Lisbon\n"), 0o644))
	res, err = idx.UpsertFile(ctx, path, config.SourceMemory)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, map[string]int{config.SourceMemory: 1}, st.Sources)

	rec, err := idx.File(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ContentHash("- User prefers light mode\n- Lives in Lisbon\n"), rec.Hash)
}

func TestUpsertDocument_ReplacesChunks(t *testing.T) {
	idx := newTestIndex(t, Options{Chunking: chunker.Options{Tokens: 4, Overlap: 1}})
	ctx := context.Background()

	res, err := idx.UpsertDocument(ctx, Document{Path: "doc", Source: "memory", Text: "one two three four five six seven"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Chunks)

	res, err = idx.UpsertDocument(ctx, Document{Path: "doc", Source: "memory", Text: "short"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Chunks)

	// old chunk text is gone from the text index too
	results, err := idx.Query(ctx, "seven", QueryOptions{MaxResults: 5, MinScore: 0.5, Hybrid: config.HybridConfig{Enabled: true, TextWeight: 1}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpsertDocument_ConcurrentNewPath(t *testing.T) {
	idx := newTestIndex(t, Options{Chunking: chunker.Options{Tokens: 4, Overlap: 0}})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = idx.UpsertDocument(ctx, Document{Path: "new", Source: "memory", Text: fmt.Sprintf("writer %d was here", i)})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, 1, st.Chunks)
}

func TestUpsertDocument_SkipsFailedChunks(t *testing.T) {
	emb := failingEmbedder{HashEmbedder: embedding.NewHashEmbedder("hash-test", 64), poison: "poison"}
	idx := newTestIndex(t, Options{Embedder: emb, Chunking: chunker.Options{Tokens: 4, Overlap: 0}})
	ctx := context.Background()

	res, err := idx.UpsertDocument(ctx, Document{Path: "doc", Source: "memory", Text: "alpha beta gamma delta poison one two three"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 1, res.Skipped)

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Chunks)
	assert.Equal(t, 1, st.EmbeddedChunks)
	assert.Equal(t, 64, st.Dims)
}

func TestRemoveFile(t *testing.T) {
	idx := newTestIndex(t, Options{})
	ctx := context.Background()
	_, err := idx.UpsertDocument(ctx, Document{Path: "a", Source: "memory", Text: "remember the milk"})
	require.NoError(t, err)

	removed, err := idx.RemoveFile(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = idx.RemoveFile(ctx, "a")
	require.NoError(t, err)
	assert.False(t, removed)

	files, err := idx.Files(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, files)
	results, err := idx.Query(ctx, "milk", hybridOptions())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func seed(t *testing.T, idx *Index) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]string{
		"prefs.md": "User prefers dark mode in the editor.",
		"tax.md":   "Quarterly tax filing is due in April.",
		"trip.md":  "Flight to Lisbon departs Friday morning.",
	}
	for path, text := range docs {
		_, err := idx.UpsertDocument(ctx, Document{Path: path, Source: config.SourceMemory, Text: text, MTime: time.Unix(100, 0)})
		require.NoError(t, err)
	}
}

func TestQuery_Hybrid(t *testing.T) {
	idx := newTestIndex(t, Options{})
	seed(t, idx)

	results, err := idx.Query(context.Background(), "dark mode", hybridOptions())
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "prefs.md", results[0].Path)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.35)
	}
}

func TestQuery_MaxResultsAndSources(t *testing.T) {
	idx := newTestIndex(t, Options{})
	seed(t, idx)
	ctx := context.Background()

	opts := hybridOptions()
	opts.MinScore = 0
	opts.MaxResults = 2
	results, err := idx.Query(ctx, "dark mode tax Lisbon", opts)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	opts.Sources = []string{config.SourceConversations}
	results, err = idx.Query(ctx, "dark mode", opts)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuery_EmbeddingFailureFallsBackToText(t *testing.T) {
	idx := newTestIndex(t, Options{Embedder: failingEmbedder{HashEmbedder: embedding.NewHashEmbedder("hash-test", 64)}})
	seed(t, idx)
	ctx := context.Background()

	results, err := idx.Query(ctx, "tax filing", hybridOptions())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tax.md", results[0].Path)
	assert.Equal(t, 0.0, results[0].VectorScore)

	opts := hybridOptions()
	opts.Hybrid.Enabled = false
	results, err = idx.Query(ctx, "tax filing", opts)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuery_VectorOnlyOverFetch(t *testing.T) {
	idx := newTestIndex(t, Options{})
	seed(t, idx)

	opts := hybridOptions()
	opts.Hybrid.Enabled = false
	opts.MinScore = 0
	opts.MaxResults = 1
	opts.Hybrid.CandidateMultiplier = 3
	results, err := idx.Query(context.Background(), "Lisbon flight", opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "trip.md", results[0].Path)
	assert.Equal(t, 0.0, results[0].TextScore)
}

func TestCombineScore(t *testing.T) {
	assert.InDelta(t, 0.71, CombineScore(0.8, 0.5, 0.7, 0.3), 1e-9)
	assert.InDelta(t, 0.8, CombineScore(0.8, 0.5, 1, 0), 1e-9)
}

func TestNormalizeScores(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, NormalizeScores([]float64{2, 4, 6}))
	assert.Equal(t, []float64{1, 1}, NormalizeScores([]float64{3, 3}))
	assert.Empty(t, NormalizeScores(nil))
}

func TestSortResults_TieBreaks(t *testing.T) {
	older, newer := time.Unix(100, 0), time.Unix(200, 0)
	results := []Result{
		{Path: "b", Score: 0.5, MTime: older},
		{Path: "a", Score: 0.5, MTime: older, Ordinal: 1},
		{Path: "a", Score: 0.5, MTime: older, Ordinal: 0},
		{Path: "z", Score: 0.5, MTime: newer},
		{Path: "y", Score: 0.9, MTime: older},
	}
	SortResults(results)

	var got []string
	for _, r := range results {
		got = append(got, r.Path)
	}
	assert.Equal(t, []string{"y", "z", "a", "a", "b"}, got)
	assert.Equal(t, 0, results[2].Ordinal)
}

func TestFtsQuery(t *testing.T) {
	assert.Equal(t, `"dark" OR "mode"`, ftsQuery(`Dark "mode" dark`))
	assert.Equal(t, "", ftsQuery(`*** ()`))
}

func TestOpen_FingerprintChangeResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	emb := embedding.NewHashEmbedder("hash-test", 64)
	ctx := context.Background()

	idx, err := Open(path, Options{Embedder: emb, Provider: "local"})
	require.NoError(t, err)
	_, err = idx.UpsertDocument(ctx, Document{Path: "a", Source: "memory", Text: "hello world"})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	idx, err = Open(path, Options{Embedder: emb, Provider: "local"})
	require.NoError(t, err)
	files, err := idx.Files(ctx, "")
	require.NoError(t, err)
	assert.Len(t, files, 1)
	require.NoError(t, idx.Close())

	idx, err = Open(path, Options{Embedder: emb, Provider: "local", Chunking: chunker.Options{Tokens: 100, Overlap: 10}})
	require.NoError(t, err)
	defer idx.Close()
	files, err = idx.Files(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestOpen_InitError(t *testing.T) {
	dir := t.TempDir()
	blocker := writeFile(t, dir, "not-a-dir", "x")
	_, err := Open(filepath.Join(blocker, "index.sqlite"), Options{})
	var ie *InitError
	assert.ErrorAs(t, err, &ie)
}

func TestEmbeddingCache_PrunesLeastRecentlyUsed(t *testing.T) {
	idx := newTestIndex(t, Options{CacheMaxEntries: 2})
	ctx := context.Background()
	clock := time.Unix(1000, 0)
	idx.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	require.NoError(t, idx.PutEmbedding(ctx, "a", "m", embedding.Vector{1}))
	require.NoError(t, idx.PutEmbedding(ctx, "b", "m", embedding.Vector{2}))
	_, ok, err := idx.GetEmbedding(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, idx.PutEmbedding(ctx, "c", "m", embedding.Vector{3}))

	_, ok, _ = idx.GetEmbedding(ctx, "b")
	assert.False(t, ok)
	v, ok, _ := idx.GetEmbedding(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, embedding.Vector{1}, v)

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.CacheEntries)
}

func TestOpen_CacheWrapsEmbedder(t *testing.T) {
	emb := embedding.NewHashEmbedder("hash-test", 64)
	idx := newTestIndex(t, Options{Embedder: emb, Cache: true, CacheMaxEntries: 10})
	ctx := context.Background()

	for range 3 {
		_, err := idx.UpsertDocument(ctx, Document{Path: "a", Source: "memory", Text: "same words", Hash: distinctHash()})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), emb.Calls())

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CacheEntries)
}

var hashSeq int

// distinctHash forces a new hash so every upsert re-chunks.
func distinctHash() string {
	hashSeq++
	return strings.Repeat("x", hashSeq)
}
