package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

// HashEmbedder is a deterministic offline embedder. Each lowercased word is
// hashed into one of dims buckets with a hash-derived sign, so texts sharing
// words have positive cosine similarity. Used in tests and when no provider
// is reachable.
type HashEmbedder struct {
	model string
	dims  int
	calls atomic.Int64
}

// NewHashEmbedder returns a HashEmbedder (256 dims when dims <= 0).
func NewHashEmbedder(model string, dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	if model == "" {
		model = "hash"
	}
	return &HashEmbedder{model: model, dims: dims}
}

func (h *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	h.calls.Add(1)
	return h.vector(text), nil
}

func (h *HashEmbedder) EmbedBatch(_ context.Context, texts []string) ([]Vector, error) {
	h.calls.Add(1)
	out := make([]Vector, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) Dims() int     { return h.dims }
func (h *HashEmbedder) Model() string { return h.model }

// Calls reports how many Embed/EmbedBatch calls were served.
func (h *HashEmbedder) Calls() int64 { return h.calls.Load() }

func (h *HashEmbedder) vector(text string) Vector {
	v := make(Vector, h.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		f := fnv.New64a()
		f.Write([]byte(w))
		sum := f.Sum64()
		bucket := sum % uint64(h.dims)
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}
	return Normalize(v)
}
