//go:build !windows

package readiness

import (
	"context"
	"os/exec"
)

func getShellCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	// #nosec G204
	return exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
}
