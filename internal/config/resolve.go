package config

import (
	"math"
	"time"
)

// Resolve clamps every value into its valid range. It never fails: invalid
// values are replaced, not rejected.
func (c Config) Resolve() Config {
	d := Defaults()
	r := c

	if r.Agent == "" {
		r.Agent = d.Agent
	}
	r.Sources = resolveSources(r.Sources)

	switch r.Provider {
	case ProviderAuto, ProviderOpenAI, ProviderGemini, ProviderLocal:
	default:
		r.Provider = ProviderAuto
	}

	if r.Chunking.Tokens <= 0 {
		r.Chunking.Tokens = d.Chunking.Tokens
	}
	r.Chunking.Overlap = ClampOverlap(r.Chunking.Tokens, r.Chunking.Overlap)
	if r.Chunking.Tokenizer != TokenizerTiktoken {
		r.Chunking.Tokenizer = TokenizerWords
	}

	r.Sync.WatchDebounceMs = max(0, r.Sync.WatchDebounceMs)
	r.Sync.IntervalMinutes = max(0, r.Sync.IntervalMinutes)
	r.Sync.Conversations.DeltaBytes = max(0, r.Sync.Conversations.DeltaBytes)
	r.Sync.Conversations.DeltaMessages = max(0, r.Sync.Conversations.DeltaMessages)

	if r.Query.MaxResults <= 0 {
		r.Query.MaxResults = d.Query.MaxResults
	}
	r.Query.MinScore = clamp01(r.Query.MinScore)
	r.Query.Hybrid.VectorWeight, r.Query.Hybrid.TextWeight = ResolveWeights(r.Query.Hybrid.VectorWeight, r.Query.Hybrid.TextWeight)
	r.Query.Hybrid.CandidateMultiplier = min(max(1, r.Query.Hybrid.CandidateMultiplier), 20)

	if r.Cache.MaxEntries <= 0 {
		r.Cache.MaxEntries = d.Cache.MaxEntries
	}

	if r.Batch.Wait < 0 {
		r.Batch.Wait = 0
	}
	if r.Batch.MaxSize <= 0 {
		r.Batch.MaxSize = d.Batch.MaxSize
	}
	if r.Batch.Timeout <= 0 {
		r.Batch.Timeout = d.Batch.Timeout
	}
	r.Batch.Retries = min(max(0, r.Batch.Retries), 10)
	r.Batch.RequestsPerMinute = max(0, r.Batch.RequestsPerMinute)

	r.Store.CacheTTL = min(max(0, r.Store.CacheTTL), 10*time.Minute)

	if r.Working.TTL <= 0 {
		r.Working.TTL = d.Working.TTL
	}
	if r.Working.SweepInterval <= 0 {
		r.Working.SweepInterval = d.Working.SweepInterval
	}

	if r.Extract.Interval <= 0 {
		r.Extract.Interval = d.Extract.Interval
	}
	r.Extract.ContextTurns = max(0, r.Extract.ContextTurns)

	if r.Sleep.Threshold <= 0 || r.Sleep.Threshold > 1 {
		r.Sleep.Threshold = d.Sleep.Threshold
	}
	r.Sleep.Cooldown = max(0, r.Sleep.Cooldown)
	switch r.Sleep.Strategy {
	case StrategySlidingWindow, StrategyProgressive, StrategyImportance, StrategyHybrid:
	default:
		r.Sleep.Strategy = d.Sleep.Strategy
	}
	if r.Sleep.KeepRecent <= 0 {
		r.Sleep.KeepRecent = d.Sleep.KeepRecent
	}
	if r.Sleep.MaxTokens <= 0 {
		r.Sleep.MaxTokens = d.Sleep.MaxTokens
	}

	if r.LLM.Model == "" {
		r.LLM.Model = d.LLM.Model
	}
	if r.LLM.MaxTokens <= 0 {
		r.LLM.MaxTokens = d.LLM.MaxTokens
	}

	if r.Log.Level == "" {
		r.Log.Level = d.Log.Level
	}
	if r.Log.Format != "json" {
		r.Log.Format = "console"
	}
	return r
}

// ResolveWeights scales both weights to sum to 1, keeping their ratio.
// Negative, NaN and infinite weights count as zero. When both are zero the
// documented defaults are returned.
func ResolveWeights(vector, text float64) (float64, float64) {
	vector, text = nonNegative(vector), nonNegative(text)
	sum := vector + text
	if sum == 0 || math.IsInf(sum, 0) {
		return DefaultVectorWeight, DefaultTextWeight
	}
	return vector / sum, text / sum
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// ClampOverlap bounds overlap to [0, tokens-1].
func ClampOverlap(tokens, overlap int) int {
	if tokens <= 1 {
		return 0
	}
	return min(max(0, overlap), tokens-1)
}

func resolveSources(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range in {
		if (s == SourceMemory || s == SourceConversations) && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{SourceMemory}
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
