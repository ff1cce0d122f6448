// Package llm is the port to the language model used for memory extraction
// and consolidation.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

// Kind tags an extracted memory candidate.
type Kind string

const (
	KindFact       Kind = "fact"
	KindPreference Kind = "preference"
	KindDecision   Kind = "decision"
	KindEvent      Kind = "event"
	KindLearning   Kind = "learning"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFact, KindPreference, KindDecision, KindEvent, KindLearning:
		return true
	}
	return false
}

type ExtractionRequest struct {
	Message       string `json:"message"`
	RecentContext string `json:"recentContext,omitempty"`
}

type Candidate struct {
	Type           Kind           `json:"type"`
	Content        string         `json:"content"`
	Importance     float64        `json:"importance"`
	StructuredData map[string]any `json:"structuredData,omitempty"`
}

type ExtractionResponse struct {
	HasImportantInfo bool        `json:"hasImportantInfo"`
	Memories         []Candidate `json:"memories"`
}

// Classifier decides whether a message holds durable information.
type Classifier interface {
	Classify(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error)
}

// Summarizer compresses text to roughly maxTokens tokens.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxTokens int) (string, error)
}

// Port is a model that can do both.
type Port interface {
	Classifier
	Summarizer
}

// ClassificationError wraps any failure of the model call or of decoding
// its answer.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string { return "classify: " + e.Err.Error() }
func (e *ClassificationError) Unwrap() error { return e.Err }

var errNoJSON = errors.New("no JSON object in model output")

// ParseExtraction decodes a model answer. Code fences and text around the
// outermost JSON object are ignored. The result is normalized.
func ParseExtraction(text string) (*ExtractionResponse, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errNoJSON
	}
	var resp ExtractionResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return Normalize(&resp), nil
}

// Normalize drops candidates with an unknown kind or empty content, clamps
// importance into [0,1], and clears HasImportantInfo when nothing is left.
func Normalize(resp *ExtractionResponse) *ExtractionResponse {
	if resp == nil {
		return &ExtractionResponse{}
	}
	out := &ExtractionResponse{HasImportantInfo: resp.HasImportantInfo}
	for _, c := range resp.Memories {
		c.Type = Kind(strings.ToLower(strings.TrimSpace(string(c.Type))))
		c.Content = strings.TrimSpace(c.Content)
		if !c.Type.Valid() || c.Content == "" {
			continue
		}
		c.Importance = model.Clamp01(c.Importance)
		out.Memories = append(out.Memories, c)
	}
	if len(out.Memories) == 0 {
		out.HasImportantInfo = false
	}
	return out
}
