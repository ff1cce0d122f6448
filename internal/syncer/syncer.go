// Package syncer keeps the hybrid index in step with the memory files and
// conversation transcripts on disk.
package syncer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/index"
	"github.com/zuckermanai/zuckerman-sub001/internal/metrics"
	"github.com/zuckermanai/zuckerman-sub001/internal/scheduler"
)

// Reason says why a sync pass ran.
type Reason string

const (
	ReasonManual            Reason = "manual"
	ReasonConversationStart Reason = "conversation-start"
	ReasonSearch            Reason = "search"
	ReasonWatch             Reason = "watch"
	ReasonInterval          Reason = "interval"
)

// Indexer is the part of the index the syncer drives.
type Indexer interface {
	UpsertFile(ctx context.Context, path, source string) (*index.UpsertResult, error)
	UpsertDocument(ctx context.Context, doc index.Document) (*index.UpsertResult, error)
	RemoveFile(ctx context.Context, path string) (bool, error)
	File(ctx context.Context, path string) (*index.FileRecord, error)
	Files(ctx context.Context, source string) ([]index.FileRecord, error)
}

// Report summarizes one sync pass.
type Report struct {
	Reason    Reason        `json:"reason"`
	Indexed   int           `json:"indexed"`
	Unchanged int           `json:"unchanged"`
	Deferred  int           `json:"deferred"` // transcripts below the delta thresholds
	Removed   int           `json:"removed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

type pass struct {
	reason Reason
	done   chan struct{}
	report Report
	err    error
}

// Syncer runs sync passes. Passes never overlap: requests made while a pass
// runs are folded into a single follow-up pass.
type Syncer struct {
	idx     Indexer
	cfg     config.Config
	layout  config.Layout
	log     *zap.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *pass
	next    *pass

	watchMu  sync.Mutex
	watcher  *fsnotify.Watcher
	debounce *time.Timer
	watchWG  sync.WaitGroup
}

// New creates a Syncer for the layout and sources of cfg.
func New(idx Indexer, cfg config.Config, log *zap.Logger, m *metrics.Metrics) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		idx:     idx,
		cfg:     cfg,
		layout:  cfg.Layout(),
		log:     log.Named("sync"),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Sync runs a pass (or joins the pending follow-up) and waits for it.
func (s *Syncer) Sync(ctx context.Context, reason Reason) (Report, error) {
	p := s.schedule(reason)
	select {
	case <-p.done:
		return p.report, p.err
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// RequestSync schedules a pass without waiting for it.
func (s *Syncer) RequestSync(reason Reason) {
	s.schedule(reason)
}

// OnConversationStart requests a pass when configured to.
func (s *Syncer) OnConversationStart() {
	if s.cfg.Sync.OnConversationStart {
		s.RequestSync(ReasonConversationStart)
	}
}

// OnSearch requests a pass when configured to. It never blocks the search.
func (s *Syncer) OnSearch() {
	if s.cfg.Sync.OnSearch {
		s.RequestSync(ReasonSearch)
	}
}

// ScheduleInterval registers the periodic pass when intervalMinutes > 0.
func (s *Syncer) ScheduleInterval(sched *scheduler.Scheduler) error {
	interval := s.cfg.SyncInterval()
	if interval <= 0 {
		return nil
	}
	return sched.Every("sync-interval", interval, func(ctx context.Context) {
		if _, err := s.Sync(ctx, ReasonInterval); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("interval sync failed", zap.Error(err))
		}
	})
}

func (s *Syncer) schedule(reason Reason) *pass {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		s.current = &pass{reason: reason, done: make(chan struct{})}
		go s.loop()
		return s.current
	}
	if s.next == nil {
		s.next = &pass{reason: reason, done: make(chan struct{})}
	}
	return s.next
}

func (s *Syncer) loop() {
	for {
		s.mu.Lock()
		p := s.current
		s.mu.Unlock()

		p.report, p.err = s.run(s.ctx, p.reason)
		close(p.done)

		s.mu.Lock()
		s.current, s.next = s.next, nil
		if s.current == nil {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

func (s *Syncer) run(ctx context.Context, reason Reason) (Report, error) {
	start := time.Now()
	rep := Report{Reason: reason}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	files, err := s.discover()
	if err != nil {
		return rep, err
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.path] = true
		outcome, err := s.syncFile(ctx, f)
		if err != nil {
			rep.Failed++
			s.metrics.SyncFiles.WithLabelValues("failed").Inc()
			s.log.Warn("sync file failed", zap.String("path", f.path), zap.Error(err))
			continue
		}
		switch outcome {
		case outcomeIndexed:
			rep.Indexed++
		case outcomeUnchanged:
			rep.Unchanged++
		case outcomeDeferred:
			rep.Deferred++
		}
		s.metrics.SyncFiles.WithLabelValues(string(outcome)).Inc()
	}

	indexed, err := s.idx.Files(ctx, "")
	if err != nil {
		return rep, err
	}
	for _, rec := range indexed {
		if seen[rec.Path] {
			continue
		}
		if _, err := os.Stat(rec.Path); err == nil && s.cfg.HasSource(rec.Source) {
			continue
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if _, err := s.idx.RemoveFile(ctx, rec.Path); err != nil {
			rep.Failed++
			s.log.Warn("remove stale file failed", zap.String("path", rec.Path), zap.Error(err))
			continue
		}
		rep.Removed++
		s.metrics.SyncFiles.WithLabelValues("removed").Inc()
	}

	rep.Duration = time.Since(start)
	s.metrics.SyncPasses.Inc()
	s.log.Debug("sync pass done",
		zap.String("reason", string(reason)),
		zap.Int("indexed", rep.Indexed), zap.Int("unchanged", rep.Unchanged),
		zap.Int("deferred", rep.Deferred), zap.Int("removed", rep.Removed),
		zap.Int("failed", rep.Failed), zap.Duration("took", rep.Duration))
	return rep, nil
}

type outcome string

const (
	outcomeIndexed   outcome = "indexed"
	outcomeUnchanged outcome = "unchanged"
	outcomeDeferred  outcome = "deferred"
)

func (s *Syncer) syncFile(ctx context.Context, f sourceFile) (outcome, error) {
	if f.source == config.SourceConversations {
		return s.syncTranscript(ctx, f.path)
	}
	res, err := s.idx.UpsertFile(ctx, f.path, f.source)
	if err != nil {
		return "", err
	}
	if res.Changed {
		return outcomeIndexed, nil
	}
	return outcomeUnchanged, nil
}

// syncTranscript re-indexes a transcript only once enough new bytes or
// messages have accumulated since it was last indexed.
func (s *Syncer) syncTranscript(ctx context.Context, path string) (outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	rec, err := s.idx.File(ctx, path)
	if err != nil {
		return "", err
	}
	if rec != nil && rec.Size == info.Size() && rec.MTime.Equal(info.ModTime()) {
		return outcomeUnchanged, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, messages, err := TranscriptText(data)
	if err != nil {
		return "", err
	}

	if rec != nil {
		deltaBytes := info.Size() - rec.Size
		deltaMessages := messages - rec.Messages
		th := s.cfg.Sync.Conversations
		if deltaBytes >= 0 && deltaBytes < th.DeltaBytes && deltaMessages < th.DeltaMessages {
			return outcomeDeferred, nil
		}
	}

	res, err := s.idx.UpsertDocument(ctx, index.Document{
		Path:     path,
		Source:   config.SourceConversations,
		Text:     text,
		MTime:    info.ModTime(),
		Size:     info.Size(),
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if res.Changed {
		return outcomeIndexed, nil
	}
	return outcomeUnchanged, nil
}

// Close stops watching and cancels any running pass.
func (s *Syncer) Close() error {
	err := s.StopWatch()
	s.cancel()
	return err
}
