// Package config holds the memory subsystem configuration: defaults, file and
// environment loading, and resolution of out-of-range values.
package config

import "time"

// Source names accepted in Config.Sources.
const (
	SourceMemory        = "memory"
	SourceConversations = "conversations"
)

// Embedding provider names.
const (
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
)

// Tokenizer names for chunking.
const (
	TokenizerWords    = "words"
	TokenizerTiktoken = "tiktoken"
)

// Summarization strategies for the sleep pipeline.
const (
	StrategySlidingWindow = "sliding-window"
	StrategyProgressive   = "progressive"
	StrategyImportance    = "importance"
	StrategyHybrid        = "hybrid"
)

// Default hybrid weights, also used when both configured weights are zero.
const (
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3
)

// Config is the full configuration surface.
type Config struct {
	Root    string   `yaml:"root"`
	Agent   string   `yaml:"agent"`
	Enabled bool     `yaml:"enabled"`
	Sources []string `yaml:"sources"`

	Provider string       `yaml:"provider"`
	Model    string       `yaml:"model"`
	Remote   RemoteConfig `yaml:"remote"`

	Chunking ChunkingConfig `yaml:"chunking"`
	Sync     SyncConfig     `yaml:"sync"`
	Query    QueryConfig    `yaml:"query"`
	Cache    CacheConfig    `yaml:"cache"`
	Batch    BatchConfig    `yaml:"batch"`
	Store    StoreConfig    `yaml:"store"`
	Working  WorkingConfig  `yaml:"working"`
	Extract  ExtractConfig  `yaml:"extract"`
	Sleep    SleepConfig    `yaml:"sleep"`
	LLM      LLMConfig      `yaml:"llm"`
	Log      LogConfig      `yaml:"log"`
}

// RemoteConfig overrides the embedding endpoint.
type RemoteConfig struct {
	BaseURL string `yaml:"baseURL"`
	APIKey  string `yaml:"apiKey"`
}

// ChunkingConfig controls token-window chunking.
type ChunkingConfig struct {
	Tokens    int    `yaml:"tokens"`
	Overlap   int    `yaml:"overlap"`
	Tokenizer string `yaml:"tokenizer"`
}

// SyncConfig controls when the index is brought up to date.
type SyncConfig struct {
	OnConversationStart bool                    `yaml:"onConversationStart"`
	OnSearch            bool                    `yaml:"onSearch"`
	Watch               bool                    `yaml:"watch"`
	WatchDebounceMs     int                     `yaml:"watchDebounceMs"`
	IntervalMinutes     int                     `yaml:"intervalMinutes"`
	Conversations       ConversationDeltaConfig `yaml:"conversations"`
}

// ConversationDeltaConfig gates transcript re-indexing.
type ConversationDeltaConfig struct {
	DeltaBytes    int64 `yaml:"deltaBytes"`
	DeltaMessages int   `yaml:"deltaMessages"`
}

// QueryConfig controls hybrid search.
type QueryConfig struct {
	MaxResults int          `yaml:"maxResults"`
	MinScore   float64      `yaml:"minScore"`
	Hybrid     HybridConfig `yaml:"hybrid"`
}

// HybridConfig holds the fusion weights.
type HybridConfig struct {
	Enabled             bool    `yaml:"enabled"`
	VectorWeight        float64 `yaml:"vectorWeight"`
	TextWeight          float64 `yaml:"textWeight"`
	CandidateMultiplier int     `yaml:"candidateMultiplier"`
}

// CacheConfig bounds the embedding cache.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"maxEntries"`
}

// BatchConfig controls batched embedding requests.
type BatchConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Wait              time.Duration `yaml:"wait"`
	MaxSize           int           `yaml:"maxSize"`
	Timeout           time.Duration `yaml:"timeout"`
	Retries           int           `yaml:"retries"`
	RequestsPerMinute int           `yaml:"requestsPerMinute"`
}

// StoreConfig controls the typed-store read cache.
type StoreConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// WorkingConfig controls working memory expiry.
type WorkingConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// ExtractConfig controls how conversation transcripts feed extraction.
type ExtractConfig struct {
	Follow       bool          `yaml:"follow"`
	Interval     time.Duration `yaml:"interval"`
	ContextTurns int           `yaml:"contextTurns"`
}

// SleepConfig controls consolidation.
type SleepConfig struct {
	Threshold  float64       `yaml:"threshold"`
	Cooldown   time.Duration `yaml:"cooldown"`
	Strategy   string        `yaml:"strategy"`
	KeepRecent int           `yaml:"keepRecent"`
	MaxTokens  int           `yaml:"maxTokens"`
}

// LLMConfig selects the classification/summarization backend.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"apiKey"`
	MaxTokens int    `yaml:"maxTokens"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the documented default configuration.
func Defaults() Config {
	return Config{
		Agent:    "main",
		Enabled:  true,
		Sources:  []string{SourceMemory},
		Provider: ProviderAuto,
		Chunking: ChunkingConfig{Tokens: 400, Overlap: 80, Tokenizer: TokenizerWords},
		Sync: SyncConfig{
			OnConversationStart: true,
			OnSearch:            true,
			Watch:               true,
			WatchDebounceMs:     1500,
			IntervalMinutes:     0,
			Conversations:       ConversationDeltaConfig{DeltaBytes: 100000, DeltaMessages: 50},
		},
		Query: QueryConfig{
			MaxResults: 6,
			MinScore:   0.35,
			Hybrid: HybridConfig{
				Enabled:             true,
				VectorWeight:        DefaultVectorWeight,
				TextWeight:          DefaultTextWeight,
				CandidateMultiplier: 4,
			},
		},
		Cache: CacheConfig{Enabled: true, MaxEntries: 50000},
		Batch: BatchConfig{
			Enabled: true,
			Wait:    50 * time.Millisecond,
			MaxSize: 64,
			Timeout: 30 * time.Second,
			Retries: 2,
		},
		Store:   StoreConfig{CacheTTL: 30 * time.Second},
		Working: WorkingConfig{TTL: time.Hour, SweepInterval: time.Minute},
		Extract: ExtractConfig{Follow: true, Interval: 5 * time.Second, ContextTurns: 6},
		Sleep: SleepConfig{
			Threshold:  0.8,
			Cooldown:   5 * time.Minute,
			Strategy:   StrategyHybrid,
			KeepRecent: 20,
			MaxTokens:  2000,
		},
		LLM: LLMConfig{Provider: "anthropic", Model: "claude-3-5-haiku-latest", MaxTokens: 1024},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// HasSource reports whether name is an enabled source.
func (c Config) HasSource(name string) bool {
	for _, s := range c.Sources {
		if s == name {
			return true
		}
	}
	return false
}

// WatchDebounce returns the watch debounce as a duration.
func (c Config) WatchDebounce() time.Duration {
	return time.Duration(c.Sync.WatchDebounceMs) * time.Millisecond
}

// SyncInterval returns the polling interval, zero when disabled.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}
