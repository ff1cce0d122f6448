// Package memory implements the six typed memory stores. Persisted stores
// keep one JSON collection per type; working memory lives in process.
package memory

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

// Options configures Open.
type Options struct {
	Layout     config.Layout
	Cache      *ReadCache // nil for a private cache with DefaultCacheTTL
	Locks      *Locks     // nil for a private registry
	Logger     *zap.Logger
	Now        func() time.Time
	WorkingTTL time.Duration
	// NoMirror disables the MEMORY.md and daily log copies.
	NoMirror bool
}

// Stores groups the six typed stores of one agent.
type Stores struct {
	Working     *WorkingStore
	Episodic    *EpisodicStore
	Semantic    *SemanticStore
	Procedural  *ProceduralStore
	Prospective *ProspectiveStore
	Emotional   *EmotionalStore
	Mirror      *Mirror
}

// env is what every persisted store shares.
type env struct {
	layout config.Layout
	locks  *Locks
	cache  *ReadCache
	log    *zap.Logger
	now    func() time.Time
	mirror *Mirror
}

// Open creates the store directory and returns the stores.
func Open(opts Options) (*Stores, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Locks == nil {
		opts.Locks = NewLocks()
	}
	if opts.Cache == nil {
		opts.Cache = NewReadCache(DefaultCacheTTL, opts.Now)
	}
	if err := os.MkdirAll(opts.Layout.StoreDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	e := &env{
		layout: opts.Layout,
		locks:  opts.Locks,
		cache:  opts.Cache,
		log:    opts.Logger.Named("memory"),
		now:    opts.Now,
	}
	mirror := NewMirror(opts.Layout, opts.Locks)
	if !opts.NoMirror {
		e.mirror = mirror
	}
	return &Stores{
		Working:     NewWorkingStore(opts.WorkingTTL, opts.Now),
		Episodic:    &EpisodicStore{c: newCollection[model.EpisodicMemory](e.file(model.TypeEpisodic), model.TypeEpisodic, e), env: e},
		Semantic:    &SemanticStore{c: newCollection[model.SemanticMemory](e.file(model.TypeSemantic), model.TypeSemantic, e), env: e},
		Procedural:  &ProceduralStore{c: newCollection[model.ProceduralMemory](e.file(model.TypeProcedural), model.TypeProcedural, e)},
		Prospective: &ProspectiveStore{c: newCollection[model.ProspectiveMemory](e.file(model.TypeProspective), model.TypeProspective, e)},
		Emotional:   &EmotionalStore{c: newCollection[model.EmotionalMemory](e.file(model.TypeEmotional), model.TypeEmotional, e)},
		Mirror:      mirror,
	}, nil
}

func (e *env) file(kind model.Type) string {
	return e.layout.StoreFile(string(kind))
}
