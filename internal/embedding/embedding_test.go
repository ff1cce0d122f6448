package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/metrics"
)

type countingEmbedder struct {
	model string
	delay time.Duration
	err   error
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return nil, c.err
	}
	return Vector{float32(len(text)) / 3, 0.1, -0.7}, nil
}

func (c *countingEmbedder) Dims() int     { return 3 }
func (c *countingEmbedder) Model() string { return c.model }

type mapStore struct {
	mu sync.Mutex
	m  map[string]Vector
}

func (s *mapStore) GetEmbedding(_ context.Context, key string) (Vector, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *mapStore) PutEmbedding(_ context.Context, key, _ string, v Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = v
	return nil
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), tt.delta)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	v := Vector{0, 1.5, -2.25, float32(math.Inf(1)), math.SmallestNonzeroFloat32}
	assert.Equal(t, v, Decode(Encode(v)))
	assert.Len(t, Encode(v), 20)
}

func TestCachedEmbedder_Deterministic(t *testing.T) {
	provider := &countingEmbedder{model: "model-x"}
	m := metrics.New()
	c, err := NewCachedEmbedder(provider, 10, nil, m, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	first, err := c.GetEmbedding(ctx, "hello", "model-x")
	require.NoError(t, err)
	second, err := c.GetEmbedding(ctx, "hello", "model-x")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, math.Float32bits(first[i]), math.Float32bits(second[i]))
	}
	assert.Equal(t, int64(1), provider.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingCacheMisses))
}

func TestCachedEmbedder_ConcurrentMissesCollapse(t *testing.T) {
	provider := &countingEmbedder{model: "m", delay: 30 * time.Millisecond}
	c, err := NewCachedEmbedder(provider, 10, nil, nil, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Embed(context.Background(), "same text")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestCachedEmbedder_EvictsLeastRecentlyUsed(t *testing.T) {
	provider := &countingEmbedder{model: "m"}
	c, err := NewCachedEmbedder(provider, 2, nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "a", "c"} {
		_, err := c.Embed(ctx, text)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(3), provider.calls.Load())

	// "a" was touched after "b", so "b" was evicted
	_, _ = c.Embed(ctx, "a")
	assert.Equal(t, int64(3), provider.calls.Load())
	_, _ = c.Embed(ctx, "b")
	assert.Equal(t, int64(4), provider.calls.Load())
}

func TestCachedEmbedder_PersistentStore(t *testing.T) {
	store := &mapStore{m: map[string]Vector{}}
	ctx := context.Background()

	p1 := &countingEmbedder{model: "m"}
	c1, err := NewCachedEmbedder(p1, 10, store, nil, nil)
	require.NoError(t, err)
	want, err := c1.Embed(ctx, "persist me")
	require.NoError(t, err)

	p2 := &countingEmbedder{model: "m"}
	c2, err := NewCachedEmbedder(p2, 10, store, nil, nil)
	require.NoError(t, err)
	got, err := c2.Embed(ctx, "persist me")
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, int64(0), p2.calls.Load())
}

func TestCachedEmbedder_ProviderError(t *testing.T) {
	cause := &ProviderError{Provider: "m", Status: 401, Err: errors.New("bad key")}
	provider := &countingEmbedder{model: "m", err: cause}
	m := metrics.New()
	c, err := NewCachedEmbedder(provider, 10, nil, m, nil)
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "x")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 401, pe.Status)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingErrors))
}

func TestCachedEmbedder_OtherModelMisses(t *testing.T) {
	c, err := NewCachedEmbedder(&countingEmbedder{model: "m"}, 10, nil, nil, nil)
	require.NoError(t, err)
	_, err = c.GetEmbedding(context.Background(), "x", "other")
	assert.Error(t, err)
}

type fakeBatchProvider struct {
	mu       sync.Mutex
	sizes    []int
	failures int
	block    bool
}

func (f *fakeBatchProvider) Embed(ctx context.Context, text string) (Vector, error) {
	vs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (f *fakeBatchProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	f.mu.Lock()
	f.sizes = append(f.sizes, len(texts))
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, &ProviderError{Provider: "fake", Status: 503, Err: errors.New("unavailable")}
	}
	out := make([]Vector, len(texts))
	for i, t := range texts {
		out[i] = Vector{float32(len(t))}
	}
	return out, nil
}

func (f *fakeBatchProvider) Dims() int     { return 1 }
func (f *fakeBatchProvider) Model() string { return "fake" }

func TestBatcher_CollectsConcurrentRequests(t *testing.T) {
	provider := &fakeBatchProvider{}
	b := NewBatcher(provider, BatchOptions{Wait: time.Second, MaxSize: 5, Timeout: 5 * time.Second})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	results := make([]Vector, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := b.Embed(context.Background(), text)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{5}, provider.sizes)
	for i, text := range texts {
		assert.Equal(t, Vector{float32(len(text))}, results[i])
	}
}

func TestBatcher_FlushesAfterWait(t *testing.T) {
	provider := &fakeBatchProvider{}
	b := NewBatcher(provider, BatchOptions{Wait: 10 * time.Millisecond, MaxSize: 100, Timeout: time.Second})
	v, err := b.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, Vector{3}, v)
}

func TestBatcher_Retries(t *testing.T) {
	provider := &fakeBatchProvider{failures: 1}
	b := NewBatcher(provider, BatchOptions{Wait: time.Millisecond, MaxSize: 1, Timeout: 5 * time.Second, Retries: 1})
	v, err := b.Embed(context.Background(), "ab")
	require.NoError(t, err)
	assert.Equal(t, Vector{2}, v)
	assert.Len(t, provider.sizes, 2)
}

func TestBatcher_TimesOut(t *testing.T) {
	provider := &fakeBatchProvider{block: true}
	b := NewBatcher(provider, BatchOptions{Wait: time.Millisecond, MaxSize: 1, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := b.Embed(context.Background(), "never")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestOpenAIEmbedder_Batch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openaiEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		var data []item
		// answer out of order; the index field decides placement
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(len(req.Input[i]))}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "sk-test", "", 0, 0)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, []Vector{{1}, {3}}, vecs)
	assert.Equal(t, 1536, e.Dims())
}

func TestOpenAIEmbedder_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder(srv.URL, "", "m", 3, 0).Embed(context.Background(), "x")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.Status)
	assert.Contains(t, pe.Error(), "quota exceeded")
}

func TestGeminiEmbedder_Batch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/text-embedding-004:batchEmbedContents"), r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		var req geminiBatchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Requests, 2) {
			assert.Equal(t, "models/text-embedding-004", req.Requests[0].Model)
		}
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.5]},{"values":[0.25]}]}`))
	}))
	defer srv.Close()

	vecs, err := NewGeminiEmbedder(srv.URL, "g-key", "", 0).EmbedBatch(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, []Vector{{0.5}, {0.25}}, vecs)
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "all-minilm", 0)
	v, err := e.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, Vector{1, 2}, v)
	assert.Equal(t, 384, e.Dims())
}

func TestResolveProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg := config.Defaults()
	assert.Equal(t, config.ProviderLocal, ResolveProvider(cfg))

	t.Setenv("GEMINI_API_KEY", "g")
	assert.Equal(t, config.ProviderGemini, ResolveProvider(cfg))

	t.Setenv("OPENAI_API_KEY", "o")
	assert.Equal(t, config.ProviderOpenAI, ResolveProvider(cfg))

	cfg.Provider = config.ProviderLocal
	assert.Equal(t, config.ProviderLocal, ResolveProvider(cfg))
}

func TestNew_WrapsBatchProviders(t *testing.T) {
	cfg := config.Defaults()
	cfg.Provider = config.ProviderOpenAI
	cfg.Batch.Enabled = true
	e, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Batcher{}, e)

	cfg.Batch.Enabled = false
	e, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEmbedder{}, e)

	cfg.Provider = "bogus"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder("", 0)
	ctx := context.Background()
	q, _ := h.Embed(ctx, "dark mode preference")
	related, _ := h.Embed(ctx, "User prefers dark mode")
	unrelated, _ := h.Embed(ctx, "quarterly tax filing")

	assert.Greater(t, CosineSimilarity(q, related), CosineSimilarity(q, unrelated))
	again, _ := h.Embed(ctx, "dark mode preference")
	assert.Equal(t, q, again)
	assert.Equal(t, int64(4), h.Calls())
}
