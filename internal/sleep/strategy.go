package sleep

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zuckermanai/zuckerman-sub001/internal/chunker"
	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/llm"
)

// Strategy compresses recent turns into text for consolidation.
type Strategy interface {
	Name() string
	Compress(ctx context.Context, turns []Turn) (string, error)
}

// NewStrategy builds the named strategy. Strategies that need a model fall
// back to the sliding window when summarizer is nil.
func NewStrategy(name string, summarizer llm.Summarizer, keep, maxTokens int) (Strategy, error) {
	window := SlidingWindow{Keep: keep}
	switch name {
	case config.StrategySlidingWindow:
		return window, nil
	case config.StrategyImportance:
		return Importance{Keep: keep, MaxTokens: maxTokens}, nil
	case config.StrategyProgressive:
		if summarizer == nil {
			return window, nil
		}
		return Progressive{Summarizer: summarizer, Keep: keep, MaxTokens: maxTokens}, nil
	case config.StrategyHybrid:
		if summarizer == nil {
			return Importance{Keep: keep, MaxTokens: maxTokens}, nil
		}
		return Hybrid{
			Select:    Importance{Keep: keep, MaxTokens: maxTokens * 4},
			Summarize: Progressive{Summarizer: summarizer, Keep: keep / 2, MaxTokens: maxTokens},
			Fallback:  window,
		}, nil
	}
	return nil, fmt.Errorf("unknown sleep strategy %q", name)
}

// SlidingWindow keeps the last Keep turns verbatim.
type SlidingWindow struct {
	Keep int
}

func (SlidingWindow) Name() string { return config.StrategySlidingWindow }

func (s SlidingWindow) Compress(_ context.Context, turns []Turn) (string, error) {
	if s.Keep > 0 && len(turns) > s.Keep {
		turns = turns[len(turns)-s.Keep:]
	}
	return joinTurns(turns), nil
}

// Progressive summarizes everything but the last Keep turns and appends
// those verbatim.
type Progressive struct {
	Summarizer llm.Summarizer
	Keep       int
	MaxTokens  int
}

func (Progressive) Name() string { return config.StrategyProgressive }

func (p Progressive) Compress(ctx context.Context, turns []Turn) (string, error) {
	keep := min(max(p.Keep, 0), len(turns))
	older, recent := turns[:len(turns)-keep], turns[len(turns)-keep:]
	if len(older) == 0 {
		return joinTurns(recent), nil
	}
	summary, err := p.Summarizer.Summarize(ctx, joinTurns(older), p.MaxTokens)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Earlier: ")
	b.WriteString(strings.TrimSpace(summary))
	if len(recent) > 0 {
		b.WriteString("\n")
		b.WriteString(joinTurns(recent))
	}
	return b.String(), nil
}

var importanceWords = map[string]float64{
	"remember": 2, "important": 2, "always": 1.5, "never": 1.5,
	"prefer": 1.5, "prefers": 1.5, "like": 0.5, "love": 1, "hate": 1,
	"decided": 2, "decide": 1.5, "plan": 1, "deadline": 2, "tomorrow": 1,
	"birthday": 2, "meeting": 1, "name": 1, "allergic": 2, "address": 1.5,
	"remind": 2, "promise": 1.5, "must": 1, "need": 0.5,
}

// ScoreTurn weighs a turn by role, keywords and a small length bonus.
func ScoreTurn(t Turn) float64 {
	score := 0.5
	if t.Role == "user" {
		score = 1
	}
	for _, w := range strings.Fields(strings.ToLower(t.Content)) {
		score += importanceWords[strings.Trim(w, ".,!?;:\"'()")]
	}
	return score + min(float64(len(t.Content))/500, 1)
}

// Importance keeps the Keep highest-scoring turns in their original order,
// within a MaxTokens budget.
type Importance struct {
	Keep      int
	MaxTokens int
}

func (Importance) Name() string { return config.StrategyImportance }

func (s Importance) Compress(_ context.Context, turns []Turn) (string, error) {
	return joinTurns(s.Pick(turns)), nil
}

// Pick returns the selected turns.
func (s Importance) Pick(turns []Turn) []Turn {
	order := make([]int, len(turns))
	for i := range order {
		order[i] = i
	}
	// later turns win ties
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := ScoreTurn(turns[order[a]]), ScoreTurn(turns[order[b]])
		if sa != sb {
			return sa > sb
		}
		return order[a] > order[b]
	})

	tok := chunker.WordTokenizer{}
	picked := make([]bool, len(turns))
	n, used := 0, 0
	for _, i := range order {
		if s.Keep > 0 && n >= s.Keep {
			break
		}
		cost := chunker.Count(tok, turns[i].String())
		if s.MaxTokens > 0 && used+cost > s.MaxTokens && n > 0 {
			continue
		}
		picked[i] = true
		used += cost
		n++
	}
	var kept []Turn
	for i, t := range turns {
		if picked[i] {
			kept = append(kept, t)
		}
	}
	return kept
}

// Hybrid picks important turns, then summarizes them progressively. When
// summarizing fails it falls back to Fallback over all turns.
type Hybrid struct {
	Select    Importance
	Summarize Progressive
	Fallback  Strategy
}

func (Hybrid) Name() string { return config.StrategyHybrid }

func (h Hybrid) Compress(ctx context.Context, turns []Turn) (string, error) {
	out, err := h.Summarize.Compress(ctx, h.Select.Pick(turns))
	if err == nil {
		return out, nil
	}
	if h.Fallback == nil {
		return "", err
	}
	return h.Fallback.Compress(ctx, turns)
}
