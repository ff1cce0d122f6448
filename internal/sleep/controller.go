package sleep

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/config"
	"github.com/zuckermanai/zuckerman-sub001/internal/metrics"
	"github.com/zuckermanai/zuckerman-sub001/internal/scheduler"
)

// DefaultQueueSize bounds pending consolidation requests.
const DefaultQueueSize = 16

// Controller decides when a scope consolidates and runs the pipeline in the
// background, at most once per scope at a time.
type Controller struct {
	pipeline  *Pipeline
	threshold float64
	cooldown  time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
	running map[string]bool
	last    map[string]*Result

	requests chan string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewController(p *Pipeline, cfg config.SleepConfig, log *zap.Logger, m *metrics.Metrics) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Controller{
		pipeline:  p,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		log:       log.Named("sleep"),
		metrics:   m,
		now:       p.now,
		lastRun:   make(map[string]time.Time),
		running:   make(map[string]bool),
		last:      make(map[string]*Result),
		requests:  make(chan string, DefaultQueueSize),
	}
}

// Report records context usage for scopeID and queues a run when one is
// due. It never blocks and reports whether a run was queued.
func (c *Controller) Report(scopeID string, used, window int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running[scopeID] {
		return false
	}
	if !ShouldSleep(Usage{Used: used, Window: window}, c.threshold, c.lastRun[scopeID], c.now(), c.cooldown) {
		return false
	}
	select {
	case c.requests <- scopeID:
		c.running[scopeID] = true
		return true
	default:
		c.log.Warn("sleep queue full, skipping", zap.String("scope", scopeID))
		return false
	}
}

// RunNow consolidates scopeID synchronously, ignoring usage and cooldown.
// It returns nil when a run for the scope is already in progress.
func (c *Controller) RunNow(ctx context.Context, scopeID string) *Result {
	c.mu.Lock()
	if c.running[scopeID] {
		c.mu.Unlock()
		return nil
	}
	c.running[scopeID] = true
	c.mu.Unlock()
	return c.run(ctx, scopeID)
}

// LastResult returns the most recent run of scopeID.
func (c *Controller) LastResult(scopeID string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.last[scopeID]
	return r, ok
}

// Start runs the background worker until Stop.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case scope := <-c.requests:
				c.run(ctx, scope)
			}
		}
	}()
}

// Stop halts the worker and waits for the run in progress.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

// UsageFunc reports current context usage per scope.
type UsageFunc func(ctx context.Context) map[string]Usage

// Schedule polls usage every interval and reports it.
func (c *Controller) Schedule(sched *scheduler.Scheduler, interval time.Duration, usage UsageFunc) error {
	return sched.Every("sleep-check", interval, func(ctx context.Context) {
		for scope, u := range usage(ctx) {
			c.Report(scope, u.Used, u.Window)
		}
	})
}

func (c *Controller) run(ctx context.Context, scopeID string) *Result {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.SleepRuns.WithLabelValues("panic").Inc()
			c.log.Error("consolidation panicked", zap.String("scope", scopeID), zap.Any("panic", r))
			c.mu.Lock()
			c.running[scopeID] = false
			c.lastRun[scopeID] = c.now()
			c.mu.Unlock()
		}
	}()

	res := c.pipeline.Run(ctx, scopeID)
	outcome := "ok"
	switch {
	case res.Turns == 0 && !res.Failed():
		outcome = "empty"
	case res.Failed():
		outcome = "partial"
		c.log.Warn("consolidation incomplete",
			zap.String("scope", scopeID), zap.String("phase", string(res.FailedPhase)), zap.Error(res.Err))
	default:
		c.log.Info("consolidation done",
			zap.String("scope", scopeID), zap.Int("turns", res.Turns), zap.Int("stored", res.Stored))
	}
	c.metrics.SleepRuns.WithLabelValues(outcome).Inc()

	c.mu.Lock()
	c.running[scopeID] = false
	c.lastRun[scopeID] = c.now()
	c.last[scopeID] = res
	c.mu.Unlock()
	return res
}
