package sleep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/llm"
	"github.com/zuckermanai/zuckerman-sub001/internal/memory"
	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

// Phase names a pipeline step.
type Phase string

const (
	PhaseProcess     Phase = "process"
	PhaseSummarize   Phase = "summarize"
	PhaseConsolidate Phase = "consolidate"
	PhaseSave        Phase = "save"
)

// SummaryType is used for the single summary stored when no classifier is
// configured.
const SummaryType = "summary"

// Sink receives the consolidated summaries.
type Sink interface {
	OnSleepEnded(ctx context.Context, summaries []model.Summary, scopeID string) int
}

// Result keeps the output of every phase that finished.
type Result struct {
	ScopeID     string          `json:"scope_id"`
	Strategy    string          `json:"strategy"`
	Started     time.Time       `json:"started"`
	Finished    time.Time       `json:"finished"`
	Turns       int             `json:"turns"`
	Compressed  string          `json:"compressed,omitempty"`
	Summaries   []model.Summary `json:"summaries,omitempty"`
	Stored      int             `json:"stored"`
	Logged      bool            `json:"logged"`
	FailedPhase Phase           `json:"failed_phase,omitempty"`
	Err         error           `json:"-"`
}

// Failed reports whether any phase failed.
func (r *Result) Failed() bool { return r.FailedPhase != "" }

func (r *Result) fail(p Phase, err error) {
	if r.FailedPhase == "" {
		r.FailedPhase = p
		r.Err = fmt.Errorf("%s: %w", p, err)
	}
}

// PipelineOptions configures NewPipeline. Source, Strategy and Mirror are
// required.
type PipelineOptions struct {
	Source     ActivitySource
	Strategy   Strategy
	Classifier llm.Classifier
	Mirror     *memory.Mirror
	Sink       Sink
	// Marks tracks consolidated turns; nil keeps them in memory.
	Marks  *Watermarks
	Logger *zap.Logger
	Now    func() time.Time
}

// Pipeline runs Process → Summarize → Consolidate → Save for one scope.
type Pipeline struct {
	source     ActivitySource
	strategy   Strategy
	classifier llm.Classifier
	mirror     *memory.Mirror
	sink       Sink
	marks      *Watermarks
	log        *zap.Logger
	now        func() time.Time
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Marks == nil {
		opts.Marks = NewWatermarks("")
	}
	return &Pipeline{
		source:     opts.Source,
		strategy:   opts.Strategy,
		classifier: opts.Classifier,
		mirror:     opts.Mirror,
		sink:       opts.Sink,
		marks:      opts.Marks,
		log:        opts.Logger.Named("sleep"),
		now:        opts.Now,
	}
}

// Run consolidates scopeID. A failing phase stops the phases after it,
// except Save, which still writes whatever was produced.
func (p *Pipeline) Run(ctx context.Context, scopeID string) *Result {
	res := &Result{ScopeID: scopeID, Strategy: p.strategy.Name(), Started: p.now()}
	defer func() { res.Finished = p.now() }()

	turns, total, err := p.pending(ctx, scopeID)
	if err != nil {
		res.fail(PhaseProcess, err)
		return res
	}
	res.Turns = len(turns)
	if len(turns) == 0 {
		return res
	}

	if res.Compressed, err = p.strategy.Compress(ctx, turns); err != nil {
		res.fail(PhaseSummarize, err)
	} else if res.Summaries, err = p.consolidate(ctx, res.Compressed); err != nil {
		res.fail(PhaseConsolidate, err)
	}

	p.save(ctx, res)
	if !res.Failed() {
		if err := p.marks.Set(scopeID, total); err != nil {
			res.fail(PhaseSave, err)
			p.log.Warn("record consolidated turns failed", zap.String("scope", scopeID), zap.Error(err))
		}
	}
	return res
}

// Pending returns the turns of scopeID not yet consolidated.
func (p *Pipeline) Pending(ctx context.Context, scopeID string) ([]Turn, error) {
	turns, _, err := p.pending(ctx, scopeID)
	return turns, err
}

// pending returns the turns past the watermark and the total turn count.
// A transcript shorter than its watermark was rewritten and is read whole.
func (p *Pipeline) pending(ctx context.Context, scopeID string) ([]Turn, int, error) {
	turns, err := p.source.Recent(ctx, scopeID)
	if err != nil {
		return nil, 0, err
	}
	mark, err := p.marks.Get(scopeID)
	if err != nil {
		return nil, 0, err
	}
	if mark > len(turns) {
		mark = 0
	}
	return turns[mark:], len(turns), nil
}

func (p *Pipeline) consolidate(ctx context.Context, text string) ([]model.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if p.classifier == nil {
		return []model.Summary{{Content: text, Type: SummaryType, Importance: 0.5}}, nil
	}
	resp, err := p.classifier.Classify(ctx, llm.ExtractionRequest{Message: text})
	if err != nil {
		return nil, err
	}
	resp = llm.Normalize(resp)
	out := make([]model.Summary, 0, len(resp.Memories))
	for _, c := range resp.Memories {
		out = append(out, model.Summary{Content: c.Content, Type: string(c.Type), Importance: c.Importance})
	}
	return out, nil
}

func (p *Pipeline) save(ctx context.Context, res *Result) {
	var lines []string
	for _, s := range res.Summaries {
		lines = append(lines, fmt.Sprintf("[%s %.2f] %s", s.Type, s.Importance, s.Content))
	}
	if len(lines) == 0 && res.Compressed != "" {
		lines = append(lines, res.Compressed)
	}
	if len(lines) == 0 {
		return
	}

	now := p.now()
	title := "Consolidation " + now.Format("15:04")
	if res.ScopeID != "" {
		title += " (" + res.ScopeID + ")"
	}
	if err := p.mirror.AppendSection(now, title, lines); err != nil {
		res.fail(PhaseSave, err)
		p.log.Warn("write consolidation log failed", zap.String("scope", res.ScopeID), zap.Error(err))
	} else {
		res.Logged = true
	}

	if p.sink != nil && len(res.Summaries) > 0 {
		res.Stored = p.sink.OnSleepEnded(ctx, res.Summaries, res.ScopeID)
		if res.Stored < len(res.Summaries) {
			res.fail(PhaseSave, errors.New("some summaries were not stored"))
		}
	}
}
