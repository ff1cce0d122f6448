package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEvery_RunsUntilStopped(t *testing.T) {
	s, err := New(zap.NewNop())
	require.NoError(t, err)

	var runs atomic.Int64
	require.NoError(t, s.Every("tick", 20*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	}))
	s.Start()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	after := runs.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestEvery_ContextCancelledOnStop(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	started := make(chan struct{})
	var once atomic.Bool
	require.NoError(t, s.Every("long", 10*time.Millisecond, func(ctx context.Context) {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
	}))
	s.Start()
	<-started
	assert.NoError(t, s.Stop())
}

func TestEvery_Validation(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Stop()

	assert.Error(t, s.Every("zero", 0, func(context.Context) {}))
	require.NoError(t, s.Every("a", time.Hour, func(context.Context) {}))
	assert.Error(t, s.Every("a", time.Hour, func(context.Context) {}))
	assert.Equal(t, []string{"a"}, s.Tasks())

	require.NoError(t, s.Remove("a"))
	require.NoError(t, s.Remove("a"))
	assert.Empty(t, s.Tasks())
}
