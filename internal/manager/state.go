package manager

import (
	"time"
)

// State is the lifecycle state of the managed process.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	// StateExited is transient: the supervisor resets to StateNotStarted right after recording the exit.
	StateExited State = "exited"
)

func (s State) String() string { return string(s) }

// Active reports whether a start request must be answered with OutcomeAlreadyRunning.
func (s State) Active() bool { return s == StateStarting || s == StateRunning }

// Outcome is the result of a start request.
type Outcome int

const (
	OutcomeStarted Outcome = iota
	OutcomeAlreadyRunning
	OutcomeStartFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeAlreadyRunning:
		return "already_running"
	case OutcomeStartFailed:
		return "start_failed"
	default:
		return "unknown"
	}
}

// ExitInfo describes the most recent termination of the managed process.
type ExitInfo struct {
	PID    int           `json:"pid"`
	Code   int           `json:"code"`
	At     time.Time     `json:"at"`
	Uptime time.Duration `json:"uptime_ns"`
}

// Status is a read-only snapshot of the supervisor.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Starts    int       `json:"starts"`
	LastExit  *ExitInfo `json:"last_exit,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}
