// Package app wires the memory subsystem together from a resolved config.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/chunker"
	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/embedding"
	"github.com/zuckermanai/zuckerman-sub001/internal/index"
	"github.com/zuckermanai/zuckerman-sub001/internal/llm"
	"github.com/zuckermanai/zuckerman-sub001/internal/manager"
	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
	"github.com/zuckermanai/zuckerman-sub001/internal/metrics"
	"github.com/zuckermanai/zuckerman-sub001/internal/scheduler"
	"github.com/zuckermanai/zuckerman-sub001/internal/sleep"
	"github.com/zuckermanai/zuckerman-sub001/internal/syncer"
)

// Options overrides collaborators normally built from the config.
type Options struct {
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Embedder embedding.Embedder
	LLM      llm.Port
}

// App holds every component of one agent's memory.
type App struct {
	Config        config.Config
	Layout        config.Layout
	Log           *zap.Logger
	Metrics       *metrics.Metrics
	Stores        *memory.Stores
	Index         *index.Index   // nil when hybrid search is unavailable
	Syncer        *syncer.Syncer // nil without an index
	LLM           llm.Port       // nil when extraction is off
	Manager       *manager.Manager
	Consolidation *sleep.Pipeline
	Sleep         *sleep.Controller
	Scheduler     *scheduler.Scheduler
}

// New builds the App. Index and LLM failures degrade the App instead of
// failing it; only the typed stores are required.
func New(cfg config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	a := &App{Config: cfg, Layout: cfg.Layout(), Log: log, Metrics: m}

	stores, err := memory.Open(memory.Options{
		Layout:     a.Layout,
		Cache:      memory.NewReadCache(cfg.Store.CacheTTL, nil),
		Logger:     log,
		WorkingTTL: cfg.Working.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	a.Stores = stores

	if cfg.Enabled {
		a.openIndex(opts.Embedder)
	}

	a.LLM = opts.LLM
	if a.LLM == nil {
		port, err := llm.New(cfg.LLM)
		if err != nil {
			log.Warn("llm unavailable, extraction and model summaries disabled", zap.Error(err))
		} else if port != nil {
			a.LLM = port
		}
	}

	mopts := manager.Options{
		Stores:  stores,
		Query:   cfg.Query,
		Logger:  log,
		Metrics: m,
	}
	if a.Index != nil {
		mopts.Index = a.Index
		mopts.Sync = a.Syncer
	}
	if a.LLM != nil {
		mopts.Classifier = a.LLM
	}
	a.Manager = manager.New(mopts)

	var summarizer llm.Summarizer
	var classifier llm.Classifier
	if a.LLM != nil {
		summarizer, classifier = a.LLM, a.LLM
	}
	strategy, err := sleep.NewStrategy(cfg.Sleep.Strategy, summarizer, cfg.Sleep.KeepRecent, cfg.Sleep.MaxTokens)
	if err != nil {
		return nil, err
	}
	pipeline := sleep.NewPipeline(sleep.PipelineOptions{
		Source:     sleep.TranscriptSource{Dir: a.Layout.ConversationsDir()},
		Strategy:   strategy,
		Classifier: classifier,
		Mirror:     stores.Mirror,
		Sink:       a.Manager,
		Marks:      sleep.NewWatermarks(a.Layout.StoreFile("sleep-watermarks")),
		Logger:     log,
	})
	a.Consolidation = pipeline
	a.Sleep = sleep.NewController(pipeline, cfg.Sleep, log, m)

	a.Scheduler, err = scheduler.New(log)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openIndex(e embedding.Embedder) {
	if e == nil {
		var err error
		if e, err = embedding.New(a.Config); err != nil {
			a.Log.Warn("embedding provider unavailable, index is text-only", zap.Error(err))
			e = nil
		}
	}
	idx, err := index.Open(a.Layout.IndexPath(), index.Options{
		Embedder:        e,
		Provider:        embedding.ResolveProvider(a.Config),
		Chunking:        chunkOptions(a.Config.Chunking),
		Cache:           a.Config.Cache.Enabled,
		CacheMaxEntries: a.Config.Cache.MaxEntries,
		Logger:          a.Log,
		Metrics:         a.Metrics,
	})
	if err != nil {
		var ie *index.InitError
		if errors.As(err, &ie) {
			a.Log.Warn("hybrid search unavailable", zap.String("path", ie.Path), zap.Error(ie.Err))
		} else {
			a.Log.Warn("hybrid search unavailable", zap.Error(err))
		}
		return
	}
	a.Index = idx
	a.Syncer = syncer.New(idx, a.Config, a.Log, a.Metrics)
}

func chunkOptions(c config.ChunkingConfig) chunker.Options {
	opts := chunker.Options{Tokens: c.Tokens, Overlap: c.Overlap}
	if c.Tokenizer == config.TokenizerTiktoken {
		opts.Tokenizer = chunker.NewTiktokenTokenizer("")
	}
	return opts.Resolve()
}

// Start launches the background work: extraction and consolidation
// workers, the transcript follower, the file watcher, and the scheduled
// tasks.
func (a *App) Start(ctx context.Context) error {
	a.Manager.Start(ctx)
	a.Sleep.Start(ctx)
	if err := a.Manager.StartSweep(a.Scheduler, a.Config.Working.SweepInterval); err != nil {
		return err
	}
	if a.LLM != nil && a.Config.Extract.Follow {
		f := newFollower(a.Layout.ConversationsDir(), a.Config.Extract.ContextTurns, a.Manager.Submit, a.Log)
		f.prime(ctx)
		if err := a.Scheduler.Every(followTask, a.Config.Extract.Interval, func(ctx context.Context) { f.poll(ctx) }); err != nil {
			return err
		}
	}
	if a.Syncer != nil {
		if err := a.Syncer.ScheduleInterval(a.Scheduler); err != nil {
			return err
		}
		if err := a.Syncer.Watch(); err != nil {
			a.Log.Warn("file watch unavailable", zap.Error(err))
		}
		a.Syncer.OnConversationStart()
	}
	a.Scheduler.Start()
	return nil
}

// Sync runs one sync pass, or does nothing without an index.
func (a *App) Sync(ctx context.Context) (syncer.Report, error) {
	if a.Syncer == nil {
		return syncer.Report{}, errors.New("hybrid search unavailable")
	}
	return a.Syncer.Sync(ctx, syncer.ReasonManual)
}

// Close stops everything started and releases the index.
func (a *App) Close() error {
	var errs []error
	if a.Scheduler != nil {
		errs = append(errs, a.Scheduler.Stop())
	}
	if a.Manager != nil {
		a.Manager.Stop()
	}
	if a.Sleep != nil {
		a.Sleep.Stop()
	}
	if a.Syncer != nil {
		errs = append(errs, a.Syncer.Close())
	}
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	return errors.Join(errs...)
}
