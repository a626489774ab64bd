package manager

import (
	"errors"
	"fmt"
)

// ErrShutdown is returned by RequestStart once Shutdown has been called.
var ErrShutdown = errors.New("supervisor is shutting down")

// SpawnError reports that the OS refused to create the managed process,
// or that it died within the configured start duration.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start process %q: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
