package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
)

// httpTransport is shared by the HTTP providers: one client, one limiter.
type httpTransport struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
}

func newTransport(name string, requestsPerMinute int) httpTransport {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1)
	}
	return httpTransport{
		name:    name,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

func (t httpTransport) postJSON(ctx context.Context, endpoint string, headers map[string]string, in, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return &ProviderError{Provider: t.name, Err: err}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", t.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: t.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{Provider: t.name, Status: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(b)))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: t.name, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// --- Ollama Provider ---

// OllamaEmbedder uses a local Ollama instance for embeddings.
type OllamaEmbedder struct {
	httpTransport
	baseURL string
	model   string
	dims    int
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaEmbedder creates an embedder using Ollama's API.
// Default model: nomic-embed-text (768 dims), all-minilm (384 dims).
func NewOllamaEmbedder(baseURL, model string, requestsPerMinute int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	dims := 768
	if model == "all-minilm" {
		dims = 384
	}
	return &OllamaEmbedder{
		httpTransport: newTransport(config.ProviderLocal, requestsPerMinute),
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         model,
		dims:          dims,
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	var result ollamaResponse
	if err := e.postJSON(ctx, e.baseURL+"/api/embeddings", nil, ollamaRequest{Model: e.model, Prompt: text}, &result); err != nil {
		return nil, err
	}
	if len(result.Embedding) == 0 {
		return nil, &ProviderError{Provider: e.name, Err: fmt.Errorf("no embedding returned")}
	}
	return result.Embedding, nil
}

func (e *OllamaEmbedder) Dims() int     { return e.dims }
func (e *OllamaEmbedder) Model() string { return e.model }

// --- OpenAI-compatible Provider ---

// OpenAIEmbedder uses any OpenAI-compatible embedding API.
type OpenAIEmbedder struct {
	httpTransport
	baseURL string
	apiKey  string
	model   string
	dims    int
}

type openaiEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIEmbedder creates an embedder using an OpenAI-compatible API.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dims, requestsPerMinute int) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dims == 0 {
		dims = 1536
	}
	return &OpenAIEmbedder{
		httpTransport: newTransport(config.ProviderOpenAI, requestsPerMinute),
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		model:         model,
		dims:          dims,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	headers := map[string]string{}
	if e.apiKey != "" {
		headers["Authorization"] = "Bearer " + e.apiKey
	}
	var result openaiEmbedResponse
	if err := e.postJSON(ctx, e.baseURL+"/embeddings", headers, openaiEmbedRequest{Input: texts, Model: e.model}, &result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, &ProviderError{Provider: e.name, Err: fmt.Errorf("got %d embeddings for %d inputs", len(result.Data), len(texts))}
	}
	out := make([]Vector, len(texts))
	for i, d := range result.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dims() int     { return e.dims }
func (e *OpenAIEmbedder) Model() string { return e.model }

// --- Gemini Provider ---

// GeminiEmbedder uses the Gemini batchEmbedContents endpoint.
type GeminiEmbedder struct {
	httpTransport
	baseURL string
	apiKey  string
	model   string
	dims    int
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// NewGeminiEmbedder creates an embedder using the Gemini API.
func NewGeminiEmbedder(baseURL, apiKey, model string, requestsPerMinute int) *GeminiEmbedder {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{
		httpTransport: newTransport(config.ProviderGemini, requestsPerMinute),
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		model:         strings.TrimPrefix(model, "models/"),
		dims:          768,
	}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	req := geminiBatchRequest{Requests: make([]geminiEmbedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = geminiEmbedRequest{
			Model:   "models/" + e.model,
			Content: geminiContent{Parts: []geminiPart{{Text: t}}},
		}
	}
	endpoint := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", e.baseURL, e.model, url.QueryEscape(e.apiKey))
	var result geminiBatchResponse
	if err := e.postJSON(ctx, endpoint, nil, req, &result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, &ProviderError{Provider: e.name, Err: fmt.Errorf("got %d embeddings for %d inputs", len(result.Embeddings), len(texts))}
	}
	out := make([]Vector, len(texts))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

func (e *GeminiEmbedder) Dims() int     { return e.dims }
func (e *GeminiEmbedder) Model() string { return e.model }

// --- Factory ---

// ResolveProvider maps "auto" to a concrete provider: openai when an OpenAI
// key is available, gemini when a Gemini key is, local otherwise.
func ResolveProvider(cfg config.Config) string {
	if cfg.Provider != config.ProviderAuto && cfg.Provider != "" {
		return cfg.Provider
	}
	switch {
	case cfg.Remote.APIKey != "" || os.Getenv("OPENAI_API_KEY") != "":
		return config.ProviderOpenAI
	case os.Getenv("GEMINI_API_KEY") != "":
		return config.ProviderGemini
	default:
		return config.ProviderLocal
	}
}

// New creates the configured provider, wrapped in a Batcher when batching
// is enabled and the provider supports it. Callers add caching on top.
func New(cfg config.Config) (Embedder, error) {
	rpm := cfg.Batch.RequestsPerMinute
	var e Embedder
	switch provider := ResolveProvider(cfg); provider {
	case config.ProviderOpenAI:
		key := cfg.Remote.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		e = NewOpenAIEmbedder(cfg.Remote.BaseURL, key, cfg.Model, 0, rpm)
	case config.ProviderGemini:
		key := cfg.Remote.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		e = NewGeminiEmbedder(cfg.Remote.BaseURL, key, cfg.Model, rpm)
	case config.ProviderLocal:
		e = NewOllamaEmbedder(cfg.Remote.BaseURL, cfg.Model, rpm)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}

	if be, ok := e.(BatchEmbedder); ok && cfg.Batch.Enabled {
		return NewBatcher(be, BatchOptions{
			Wait:    cfg.Batch.Wait,
			MaxSize: cfg.Batch.MaxSize,
			Timeout: cfg.Batch.Timeout,
			Retries: cfg.Batch.Retries,
		}), nil
	}
	return e, nil
}
