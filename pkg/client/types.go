package client

import "time"

// StartResponse is the body of a successful GET /start.
type StartResponse struct {
	Status    string `json:"status"` // "starting" or "already_running"
	Message   string `json:"message"`
	State     string `json:"state"`
	PID       int    `json:"pid,omitempty"`
	TargetURL string `json:"target_url,omitempty"`
}

// ExitInfo describes the last termination of the managed process.
type ExitInfo struct {
	PID    int           `json:"pid"`
	Code   int           `json:"code"`
	At     time.Time     `json:"at"`
	Uptime time.Duration `json:"uptime_ns"`
}

// Usage is the resource usage of the running process.
type Usage struct {
	RSSBytes   uint64    `json:"rss_bytes"`
	CPUPercent float64   `json:"cpu_percent"`
	Threads    int32     `json:"threads"`
	CreatedAt  time.Time `json:"created_at"`
}

// Status is the body of GET /status.
type Status struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Starts    int       `json:"starts"`
	LastExit  *ExitInfo `json:"last_exit,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	TargetURL string    `json:"target_url,omitempty"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// Launch modes.
const (
	ModePoll  = "poll"  // poll /ready until it succeeds or the timeout elapses
	ModeDelay = "delay" // wait a fixed grace period and assume the target is up
)

// LaunchOptions controls how Launch waits after triggering the start.
type LaunchOptions struct {
	Mode        string
	GracePeriod time.Duration // delay mode; default 3s
	Interval    time.Duration // poll mode; default 500ms
	Timeout     time.Duration // poll mode; default 60s
}

// LaunchResult reports what Launch observed.
type LaunchResult struct {
	TargetURL string
	Outcome   string // status from /start
	Ready     bool   // true only when readiness was confirmed by polling
	Elapsed   time.Duration
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
