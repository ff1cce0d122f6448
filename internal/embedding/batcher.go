package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// BatchOptions configures a Batcher.
type BatchOptions struct {
	Wait    time.Duration // how long the first request of a batch waits for company
	MaxSize int           // flush as soon as this many requests are pending
	Timeout time.Duration // per-request deadline including retries
	Retries int           // additional attempts after the first failure
}

func (o BatchOptions) resolve() BatchOptions {
	if o.Wait <= 0 {
		o.Wait = 50 * time.Millisecond
	}
	if o.MaxSize <= 0 {
		o.MaxSize = 64
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	return o
}

type batchResult struct {
	vec Vector
	err error
}

type batchRequest struct {
	text string
	done chan batchResult
}

// Batcher collects concurrent Embed calls into EmbedBatch requests.
// Every Embed call returns within Timeout, with ErrTimeout if the provider
// has not answered by then.
type Batcher struct {
	provider BatchEmbedder
	opts     BatchOptions

	mu      sync.Mutex
	pending []*batchRequest
	timer   *time.Timer
}

// NewBatcher wraps a batch-capable provider.
func NewBatcher(provider BatchEmbedder, opts BatchOptions) *Batcher {
	return &Batcher{provider: provider, opts: opts.resolve()}
}

func (b *Batcher) Dims() int     { return b.provider.Dims() }
func (b *Batcher) Model() string { return b.provider.Model() }

// Embed queues text for the next batch and waits for its vector.
func (b *Batcher) Embed(ctx context.Context, text string) (Vector, error) {
	req := &batchRequest{text: text, done: make(chan batchResult, 1)}

	b.mu.Lock()
	b.pending = append(b.pending, req)
	switch {
	case len(b.pending) >= b.opts.MaxSize:
		batch := b.takeLocked()
		go b.run(batch)
	case b.timer == nil:
		b.timer = time.AfterFunc(b.opts.Wait, b.flush)
	}
	b.mu.Unlock()

	timeout := time.NewTimer(b.opts.Timeout)
	defer timeout.Stop()
	select {
	case res := <-req.done:
		return res.vec, res.err
	case <-timeout.C:
		return nil, &ProviderError{Provider: b.Model(), Err: ErrTimeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbedBatch sends texts as one request, with retries, bypassing the queue.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()
	return b.call(ctx, texts)
}

func (b *Batcher) flush() {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	if len(batch) > 0 {
		b.run(batch)
	}
}

func (b *Batcher) takeLocked() []*batchRequest {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.pending
	b.pending = nil
	return batch
}

func (b *Batcher) run(batch []*batchRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.Timeout)
	defer cancel()

	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.text
	}
	vecs, err := b.call(ctx, texts)
	for i, r := range batch {
		if err != nil {
			r.done <- batchResult{err: err}
			continue
		}
		r.done <- batchResult{vec: vecs[i]}
	}
}

func (b *Batcher) call(ctx context.Context, texts []string) ([]Vector, error) {
	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt <= b.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return nil, b.timeoutErr(ctx, lastErr)
			}
		}
		vecs, err := b.provider.EmbedBatch(ctx, texts)
		if err == nil {
			if len(vecs) != len(texts) {
				return nil, &ProviderError{Provider: b.Model(), Err: fmt.Errorf("got %d embeddings for %d inputs", len(vecs), len(texts))}
			}
			return vecs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, b.timeoutErr(ctx, lastErr)
		}
	}
	return nil, lastErr
}

func (b *Batcher) timeoutErr(ctx context.Context, last error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderError{Provider: b.Model(), Err: ErrTimeout}
	}
	if last != nil {
		return last
	}
	return ctx.Err()
}
