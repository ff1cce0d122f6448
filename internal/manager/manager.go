// Package manager is the single entry point the agent loop talks to: it
// retrieves memories across stores and the index, and turns incoming
// messages and consolidation output into stored memories.
package manager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/index"
	"github.com/zuckermanai/zuckerman-sub001/internal/llm"
	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
	"github.com/zuckermanai/zuckerman-sub001/internal/metrics"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
	"github.com/zuckermanai/zuckerman-sub001/internal/scheduler"
)

const (
	DefaultLimit     = 10
	DefaultQueueSize = 64
)

// Searcher is the hybrid index as seen by retrieval.
type Searcher interface {
	Query(ctx context.Context, text string, opts index.QueryOptions) ([]index.Result, error)
}

// SearchHook is told about every search so it can schedule a sync.
type SearchHook interface {
	OnSearch()
}

// Options configures New. Only Stores is required.
type Options struct {
	Stores *memory.Stores
	// Index is nil when hybrid search is unavailable.
	Index Searcher
	// Sync is nil to skip sync-on-search.
	Sync SearchHook
	// Classifier is nil when extraction is disabled.
	Classifier llm.Classifier
	Query      config.QueryConfig
	QueueSize  int
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Manager coordinates the typed stores, the index and the LLM port.
type Manager struct {
	stores     *memory.Stores
	index      Searcher
	sync       SearchHook
	classifier llm.Classifier
	query      index.QueryOptions
	log        *zap.Logger
	metrics    *metrics.Metrics

	queue  chan Message
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Manager{
		stores:     opts.Stores,
		index:      opts.Index,
		sync:       opts.Sync,
		classifier: opts.Classifier,
		query:      index.QueryOptionsFrom(opts.Query),
		log:        opts.Logger.Named("manager"),
		metrics:    opts.Metrics,
		queue:      make(chan Message, opts.QueueSize),
	}
}

// Stores exposes the typed stores.
func (m *Manager) Stores() *memory.Stores { return m.stores }

// RetrieveParams selects memories. Empty Types means every type.
type RetrieveParams struct {
	Query   string
	Types   []model.Type
	ScopeID string
	Limit   int
	// NoIndex skips the hybrid index even when Query is set.
	NoIndex bool
}

// Item is one retrieved memory, from a typed store or the index.
type Item struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // a model.Type, or "index"
	Content   string    `json:"content"`
	ScopeID   string    `json:"scope_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Score     float64   `json:"score,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Record    any       `json:"record,omitempty"`
}

// ItemTypeIndex marks items that came from the hybrid index.
const ItemTypeIndex = "index"

type RetrieveResult struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// RetrieveMemories gathers matching memories from the requested stores, and
// from the index when a query is given, newest first. Failing sources are
// logged and skipped.
func (m *Manager) RetrieveMemories(ctx context.Context, p RetrieveParams) (*RetrieveResult, error) {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	types := p.Types
	if len(types) == 0 {
		types = model.AllTypes
	}

	withIndex := p.Query != "" && !p.NoIndex && m.index != nil
	parts := make([][]Item, len(types)+1)
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			parts[i] = m.fromStore(t, p)
			return nil
		})
	}
	if withIndex {
		if m.sync != nil {
			m.sync.OnSearch()
		}
		g.Go(func() error {
			items, err := m.fromIndex(gctx, p.Query)
			if err != nil {
				m.log.Warn("index query failed, skipping", zap.Error(err))
				return nil
			}
			parts[len(types)] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Item
	for _, part := range parts {
		all = append(all, part...)
	}
	SortItems(all)
	res := &RetrieveResult{Total: len(all), Items: all}
	if len(all) > p.Limit {
		res.Items = all[:p.Limit]
	}
	return res, nil
}

// SortItems orders items newest first, ties by id.
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})
}

func (m *Manager) fromStore(t model.Type, p RetrieveParams) []Item {
	s := m.stores
	var out []Item
	switch t {
	case model.TypeWorking:
		for _, r := range s.Working.Query(memory.WorkingFilter{ScopeID: p.ScopeID, Text: p.Query}) {
			out = append(out, item(r.Base, r.Text(), r.ScopeID, r))
		}
	case model.TypeEpisodic:
		for _, r := range s.Episodic.Query(memory.EpisodicFilter{ScopeID: p.ScopeID, Text: p.Query}) {
			out = append(out, item(r.Base, r.Text(), r.ScopeID, r))
		}
	case model.TypeSemantic:
		for _, r := range s.Semantic.Query(memory.SemanticFilter{Text: p.Query}) {
			out = append(out, item(r.Base, r.Text(), "", r))
		}
	case model.TypeProcedural:
		for _, r := range s.Procedural.Query(memory.ProceduralFilter{Text: p.Query}) {
			out = append(out, item(r.Base, r.Text(), "", r))
		}
	case model.TypeProspective:
		for _, r := range s.Prospective.Query(memory.ProspectiveFilter{Text: p.Query}) {
			out = append(out, item(r.Base, r.Text(), "", r))
		}
	case model.TypeEmotional:
		for _, r := range s.Emotional.Query(memory.EmotionalFilter{}) {
			if memory.Matches(r.Text(), p.Query) {
				out = append(out, item(r.Base, r.Text(), "", r))
			}
		}
	}
	return out
}

func item(b model.Base, content, scope string, rec any) Item {
	return Item{ID: b.ID, Type: string(b.Type), Content: content, ScopeID: scope, UpdatedAt: b.UpdatedAt, Record: rec}
}

func (m *Manager) fromIndex(ctx context.Context, q string) ([]Item, error) {
	results, err := m.index.Query(ctx, q, m.query)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(results))
	for _, r := range results {
		out = append(out, Item{
			ID:        r.ChunkID,
			Type:      ItemTypeIndex,
			Content:   r.Text,
			Path:      r.Path,
			Score:     r.Score,
			UpdatedAt: r.MTime,
			Record:    r,
		})
	}
	return out, nil
}

// Message is an incoming conversation turn.
type Message struct {
	Content       string
	ScopeID       string
	RecentContext string
}

// OnNewMessage extracts durable memories from msg and stores them.
// Failures are logged; nothing is returned to the caller.
func (m *Manager) OnNewMessage(ctx context.Context, msg Message) {
	if m.classifier == nil || strings.TrimSpace(msg.Content) == "" {
		m.metrics.Extractions.WithLabelValues("skipped").Inc()
		return
	}
	resp, err := m.classifier.Classify(ctx, llm.ExtractionRequest{Message: msg.Content, RecentContext: msg.RecentContext})
	if err != nil {
		m.metrics.Extractions.WithLabelValues("failed").Inc()
		m.log.Warn("extraction failed, message not remembered", zap.String("scope", msg.ScopeID), zap.Error(err))
		return
	}
	resp = llm.Normalize(resp)
	if !resp.HasImportantInfo {
		m.metrics.Extractions.WithLabelValues("empty").Inc()
		return
	}
	for _, c := range resp.Memories {
		if err := m.route(c, msg.ScopeID); err != nil {
			m.metrics.Extractions.WithLabelValues("store_failed").Inc()
			m.log.Warn("store extracted memory failed", zap.String("type", string(c.Type)), zap.Error(err))
			continue
		}
		m.metrics.Extractions.WithLabelValues("stored").Inc()
	}
}

func (m *Manager) route(c llm.Candidate, scopeID string) error {
	switch c.Type {
	case llm.KindFact, llm.KindPreference, llm.KindLearning:
		_, err := m.stores.Semantic.Add(memory.SemanticInput{
			Fact:       FactString(c.Content, c.StructuredData),
			Category:   string(c.Type),
			Confidence: c.Importance,
			Source:     "conversation",
		})
		return err
	case llm.KindDecision, llm.KindEvent:
		extra := map[string]any{"type": string(c.Type), "importance": c.Importance}
		for k, v := range c.StructuredData {
			extra[k] = v
		}
		_, err := m.stores.Episodic.Add(memory.EpisodicInput{
			Event:   c.Content,
			Context: model.EpisodicContext{What: string(c.Type), Extra: extra},
			ScopeID: scopeID,
		})
		return err
	}
	return fmt.Errorf("unroutable memory type %q", c.Type)
}

// FactString builds the stored fact for an extracted memory. A
// subject/predicate/object triple becomes one sentence; other structured
// fields are appended as sorted key: value pairs; without structured data
// the content is used as is.
func FactString(content string, data map[string]any) string {
	content = strings.TrimSpace(content)
	if len(data) == 0 {
		return content
	}
	subj, sok := stringField(data, "subject")
	pred, pok := stringField(data, "predicate")
	obj, ook := stringField(data, "object")
	if sok && pok && ook {
		return subj + " " + pred + " " + obj
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: %v", k, data[k]))
	}
	if content == "" {
		return strings.Join(pairs, "; ")
	}
	return content + " (" + strings.Join(pairs, "; ") + ")"
}

func stringField(data map[string]any, key string) (string, bool) {
	v, ok := data[key].(string)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// OnSleepEnded stores consolidation summaries as semantic memories and
// returns how many were stored. Individual failures are logged.
func (m *Manager) OnSleepEnded(ctx context.Context, summaries []model.Summary, scopeID string) int {
	source := "sleep"
	if scopeID != "" {
		source += ":" + scopeID
	}
	stored := 0
	for _, s := range summaries {
		if ctx.Err() != nil {
			break
		}
		if strings.TrimSpace(s.Content) == "" {
			continue
		}
		_, err := m.stores.Semantic.Add(memory.SemanticInput{
			Fact:       s.Content,
			Category:   s.Type,
			Confidence: s.Importance,
			Source:     source,
		})
		if err != nil {
			m.log.Warn("store consolidation summary failed", zap.Error(err))
			continue
		}
		stored++
	}
	return stored
}

// StartSweep registers the periodic working-memory expiry sweep.
func (m *Manager) StartSweep(sched *scheduler.Scheduler, interval time.Duration) error {
	return sched.Every("working-sweep", interval, func(context.Context) {
		if n := m.stores.Working.ClearExpired(); n > 0 {
			m.log.Debug("expired working memories cleared", zap.Int("count", n))
		}
	})
}
