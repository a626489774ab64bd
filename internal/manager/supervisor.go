package manager

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/launchr/internal/env"
	"github.com/loykin/launchr/internal/history"
	"github.com/loykin/launchr/internal/metrics"
	"github.com/loykin/launchr/internal/process"
)

// Options tunes a Supervisor. The zero value is usable.
type Options struct {
	Env            *env.Env          // base environment; defaults to the launcher's OS env
	Recorder       *history.Recorder // optional lifecycle history
	Logger         *slog.Logger
	StopTimeout    time.Duration // grace period between SIGTERM and SIGKILL on shutdown
	StopOnShutdown bool          // terminate the child when the launcher shuts down
}

// Supervisor owns at most one running instance of the managed process.
//
// Lock Hierarchy:
// 1. mu - guards state, the current handle and the counters
// 2. process.Process internal lock
//
// Readers never take mu; every transition publishes a fresh Status snapshot.
type Supervisor struct {
	spec   process.Spec
	env    *env.Env
	rec    *history.Recorder
	logger *slog.Logger
	opts   Options

	mu        sync.Mutex
	state     State
	proc      *process.Process
	starts    int
	lastExit  *ExitInfo
	lastError string
	closing   bool

	snap    atomic.Pointer[Status]
	waiters sync.WaitGroup
}

// NewSupervisor creates a supervisor for spec in StateNotStarted.
func NewSupervisor(spec process.Spec, opts Options) *Supervisor {
	if opts.Env == nil {
		opts.Env = env.New(true)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	s := &Supervisor{
		spec:   spec,
		env:    opts.Env,
		rec:    opts.Recorder,
		logger: opts.Logger.With("process", spec.Name),
		opts:   opts,
		state:  StateNotStarted,
	}
	metrics.SetCurrentState(spec.Name, StateNotStarted.String(), true)
	s.publishLocked()
	return s
}

// Spec returns the fixed process spec.
func (s *Supervisor) Spec() process.Spec { return s.spec }

// RequestStart spawns the managed process unless an instance is already starting or running.
// The check and the spawn happen under one lock, so concurrent callers observe exactly one
// OutcomeStarted. It returns once the OS has created the process (or, with a start duration,
// once the process has survived it); it never waits for the application to be ready.
// The lock is released during the start duration, so other callers get OutcomeAlreadyRunning
// without waiting for it.
func (s *Supervisor) RequestStart(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return OutcomeStartFailed, ErrShutdown
	}
	if s.state.Active() {
		metrics.IncAlreadyRunning(s.spec.Name)
		s.logger.Debug("start requested while active", "state", s.state, "pid", s.pidLocked())
		return OutcomeAlreadyRunning, nil
	}

	s.setStateLocked(StateStarting)
	proc := process.New(s.spec)
	if err := proc.Start(s.env.Merge(s.spec.Env)); err != nil {
		return s.failStartLocked(0, time.Time{}, err)
	}

	pid := proc.PID()
	s.proc = proc
	s.publishLocked()
	s.waiters.Add(1)
	go s.wait(proc)

	if d := s.spec.StartDuration; d > 0 {
		s.mu.Unlock()
		survived := holdStart(ctx, proc, d)
		s.mu.Lock()
		if err := s.settleStartLocked(proc, survived, d); err != nil {
			return s.failStartLocked(pid, proc.StartedAt(), err)
		}
	}

	s.starts++
	s.lastError = ""
	s.setStateLocked(StateRunning)
	metrics.IncSpawn(s.spec.Name)
	s.logger.Info("process started", "pid", pid, "command", s.spec.Command, "work_dir", s.spec.WorkDir)
	s.rec.Emit(history.Event{
		Type:       history.EventStart,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Name: s.spec.Name, PID: pid, StartedAt: proc.StartedAt()},
	})
	return OutcomeStarted, nil
}

// holdStart reports whether proc stayed up for d. It runs without the lock.
// Caller cancellation does not abort the start.
func holdStart(_ context.Context, proc *process.Process, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-proc.Done():
		return false
	}
}

// settleStartLocked decides the start of proc after its start duration. The exit may
// already have been observed, in which case proc is no longer the current handle.
func (s *Supervisor) settleStartLocked(proc *process.Process, survived bool, d time.Duration) error {
	if s.proc == proc && survived {
		return nil
	}
	if s.proc == proc {
		code, _ := proc.Result()
		// The waiter will report this pid again; it is no longer current.
		s.proc = nil
		s.lastExit = &ExitInfo{
			PID:    proc.PID(),
			Code:   code,
			At:     time.Now(),
			Uptime: time.Since(proc.StartedAt()),
		}
		metrics.IncExit(s.spec.Name, code)
		return fmt.Errorf("exited with code %d before start duration %s", code, d)
	}
	if le := s.lastExit; le != nil && le.PID == proc.PID() {
		return fmt.Errorf("exited with code %d before start duration %s", le.Code, d)
	}
	return fmt.Errorf("exited before start duration %s", d)
}

func (s *Supervisor) failStartLocked(pid int, startedAt time.Time, err error) (Outcome, error) {
	// Another run may own the slot once the lock was released during the start duration.
	if s.proc == nil {
		s.setStateLocked(StateNotStarted)
	}
	s.lastError = err.Error()
	s.publishLocked()
	metrics.IncSpawnFailure(s.spec.Name)
	s.logger.Error("process start failed", "command", s.spec.Command, "work_dir", s.spec.WorkDir, "error", err)
	s.rec.Emit(history.Event{
		Type:       history.EventStartFailed,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			Name:      s.spec.Name,
			PID:       pid,
			StartedAt: startedAt,
			Error:     sql.NullString{String: err.Error(), Valid: true},
		},
	})
	return OutcomeStartFailed, &SpawnError{Name: s.spec.Name, Err: err}
}

func (s *Supervisor) wait(proc *process.Process) {
	defer s.waiters.Done()
	code, err := proc.Wait()
	if err != nil && code == -1 {
		s.logger.Debug("wait returned", "pid", proc.PID(), "error", err)
	}
	s.ObserveExit(proc.PID(), code)
}

// ObserveExit records the termination of pid. Reports for a pid other than the current
// instance are ignored. The state passes through StateExited and ends at StateNotStarted,
// so the next RequestStart spawns a fresh instance.
func (s *Supervisor) ObserveExit(pid, exitCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil || s.proc.PID() != pid {
		s.logger.Debug("ignoring exit of stale pid", "pid", pid, "exit_code", exitCode)
		return
	}
	proc := s.proc
	now := time.Now()
	uptime := now.Sub(proc.StartedAt())

	s.setStateLocked(StateExited)
	s.lastExit = &ExitInfo{PID: pid, Code: exitCode, At: now, Uptime: uptime}
	if exitCode != 0 && !s.closing {
		s.logger.Warn("process exited unexpectedly", "pid", pid, "exit_code", exitCode, "uptime", uptime)
	} else {
		s.logger.Info("process exited", "pid", pid, "exit_code", exitCode, "uptime", uptime)
	}
	metrics.IncExit(s.spec.Name, exitCode)
	metrics.ObserveUptime(s.spec.Name, uptime.Seconds())
	s.rec.Emit(history.Event{
		Type:       history.EventExit,
		OccurredAt: now.UTC(),
		Record: history.Record{
			Name:      s.spec.Name,
			PID:       pid,
			StartedAt: proc.StartedAt(),
			StoppedAt: sql.NullTime{Time: now.UTC(), Valid: true},
			ExitCode:  sql.NullInt64{Int64: int64(exitCode), Valid: true},
		},
	})

	s.proc = nil
	s.setStateLocked(StateNotStarted)
}

// CurrentStatus returns the latest snapshot without locking.
func (s *Supervisor) CurrentStatus() Status {
	return *s.snap.Load()
}

// PID returns the pid of the current instance, or 0.
func (s *Supervisor) PID() int { return s.CurrentStatus().PID }

// Shutdown refuses further starts. With StopOnShutdown it terminates the process group
// and waits until the exit has been observed or ctx is done.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	proc := s.proc
	s.mu.Unlock()

	if proc == nil || !s.opts.StopOnShutdown {
		return nil
	}

	s.logger.Info("stopping process", "pid", proc.PID(), "timeout", s.opts.StopTimeout)
	errc := make(chan error, 1)
	go func() { errc <- proc.Stop(s.opts.StopTimeout) }()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("stop %s: %w", s.spec.Name, err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		s.waiters.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) pidLocked() int {
	if s.proc == nil {
		return 0
	}
	return s.proc.PID()
}

// setStateLocked records the transition in metrics and publishes a new snapshot.
func (s *Supervisor) setStateLocked(next State) {
	prev := s.state
	s.state = next
	if prev != next {
		metrics.RecordStateTransition(s.spec.Name, prev.String(), next.String())
		metrics.SetCurrentState(s.spec.Name, prev.String(), false)
		metrics.SetCurrentState(s.spec.Name, next.String(), true)
	}
	s.publishLocked()
}

func (s *Supervisor) publishLocked() {
	st := &Status{
		Name:      s.spec.Name,
		State:     s.state,
		Starts:    s.starts,
		LastError: s.lastError,
	}
	if s.proc != nil {
		st.PID = s.proc.PID()
		st.StartedAt = s.proc.StartedAt()
	}
	if s.lastExit != nil {
		le := *s.lastExit
		st.LastExit = &le
	}
	s.snap.Store(st)
}
