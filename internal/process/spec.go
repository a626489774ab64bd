package process

import (
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/launchr/internal/logger"
)

// ErrEmptyCommand is returned when a Spec has no command to run.
var ErrEmptyCommand = errors.New("empty command")

// Spec describes the managed external process. It is fixed at configuration time;
// callers of the trigger endpoint cannot alter it.
type Spec struct {
	Name          string            `json:"name"`
	Command       string            `json:"command"`        // command line; run through a shell only when needed
	WorkDir       string            `json:"work_dir"`       // optional working dir
	Env           []string          `json:"env"`            // extra KEY=VALUE entries
	StartDuration time.Duration     `json:"start_duration"` // minimum time the process must stay up to count as started
	Log           logger.FileConfig `json:"log"`            // empty means stdout/stderr are inherited
}

// BuildCommand constructs an *exec.Cmd for s.Command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() (*exec.Cmd, error) {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return nil, ErrEmptyCommand
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		return getShellCommand(afterC), nil
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return getShellCommand(cmdStr), nil
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204 -- the command comes from the operator's config file
	return exec.Command(parts[0], parts[1:]...), nil
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes and returns the script after -c,
// with one pair of surrounding quotes stripped.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
