package manager

import (
	"context"

	"go.uber.org/zap"
)

// Submit queues msg for extraction without blocking. It returns false when
// the queue is full and the message is dropped.
func (m *Manager) Submit(msg Message) bool {
	select {
	case m.queue <- msg:
		return true
	default:
		m.metrics.Extractions.WithLabelValues("dropped").Inc()
		m.log.Warn("extraction queue full, dropping message", zap.String("scope", msg.ScopeID))
		return false
	}
}

// Start runs the extraction worker until Stop or ctx is done. Calling it
// again while running is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-m.queue:
				m.OnNewMessage(ctx, msg)
			}
		}
	}()
}

// Stop halts the worker and waits for the message in progress. Queued
// messages stay queued for the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

// Pending counts queued messages.
func (m *Manager) Pending() int { return len(m.queue) }
