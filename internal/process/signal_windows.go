//go:build windows

package process

import "os"

// Windows has no SIGTERM for console-less children; both paths kill.
func terminate(pid int) error { return kill(pid) }

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
