package history

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart       EventType = "start"
	EventStartFailed EventType = "start_failed"
	EventExit        EventType = "exit"
)

// Record is the lifecycle snapshot attached to an event.
type Record struct {
	Name      string         `json:"name"`
	PID       int            `json:"pid"`
	StartedAt time.Time      `json:"started_at"`
	StoppedAt sql.NullTime   `json:"stopped_at"`
	ExitCode  sql.NullInt64  `json:"exit_code"`
	Error     sql.NullString `json:"error"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Recorder fans events out to sinks from a single background goroutine so that
// slow sinks never delay a start request. Events keep their emission order.
type Recorder struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
	queue   chan Event
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRecorder starts a Recorder. With no sinks, Emit is a no-op.
func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		sinks:   append([]Sink(nil), sinks...),
		logger:  logger,
		timeout: 5 * time.Second,
		queue:   make(chan Event, 64),
	}
	if len(r.sinks) > 0 {
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Emit queues e for delivery. Events are dropped, with a warning, when the queue is full.
func (r *Recorder) Emit(e Event) {
	if r == nil || len(r.sinks) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.logger.Warn("history queue full, dropping event", "event", e.Type, "name", e.Record.Name)
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for e := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			if err := s.Send(ctx, e); err != nil {
				r.logger.Warn("history sink send failed", "event", e.Type, "error", err)
			}
			cancel()
		}
	}
}

// Close drains queued events and closes every sink.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()

	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
