package readiness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_BecomesReady(t *testing.T) {
	var calls atomic.Int32
	p := Func{Name: "counter", Check: func(context.Context) bool {
		return calls.Add(1) >= 3
	}}

	err := Wait(t.Context(), p, 10*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWait_ImmediatelyReady(t *testing.T) {
	p := Func{Name: "ready", Check: func(context.Context) bool { return true }}
	start := time.Now()
	require.NoError(t, Wait(t.Context(), p, time.Second, 5*time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWait_Timeout(t *testing.T) {
	p := Func{Name: "never", Check: func(context.Context) bool { return false }}
	start := time.Now()
	err := Wait(t.Context(), p, 10*time.Millisecond, 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.Contains(t, err.Error(), "never")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWait_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	p := Func{Name: "never", Check: func(context.Context) bool { return false }}
	err := Wait(ctx, p, 10*time.Millisecond, time.Minute)
	assert.ErrorIs(t, err, ErrNotReady)
}
