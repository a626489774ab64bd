package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotReady is returned by Wait when the probe never succeeded within the timeout.
var ErrNotReady = errors.New("application not ready")

const (
	DefaultInterval = 500 * time.Millisecond
	DefaultTimeout  = 60 * time.Second
)

// Wait polls p every interval until it succeeds, ctx is done or timeout elapses.
// The first check runs immediately.
func Wait(ctx context.Context, p Probe, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := 0
	op := func() error {
		attempts++
		if p.IsReady(ctx) {
			return nil
		}
		return ErrNotReady
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("%s after %d attempts: %w", p.Describe(), attempts, ErrNotReady)
	}
	return nil
}

// Func adapts a plain function to the Probe interface.
type Func struct {
	Name  string
	Check func(ctx context.Context) bool
}

func (f Func) IsReady(ctx context.Context) bool { return f.Check(ctx) }
func (f Func) Describe() string                 { return f.Name }
