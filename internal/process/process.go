package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Process is the OS handle of one run of the managed process. It is created per spawn
// and never restarted; exactly one goroutine must call Wait.
type Process struct {
	spec Spec

	mu        sync.Mutex
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	exitCode  int
	exitErr   error
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	devNull   *os.File // stands in for a stream without a file destination

	done chan struct{} // closed once Wait has reaped the child
}

func New(spec Spec) *Process { return &Process{spec: spec, done: make(chan struct{})} }

// Spec returns the spec this run was started from.
func (r *Process) Spec() Spec { return r.spec }

// ConfigureCmd builds the *exec.Cmd for this run using mergedEnv.
// Output is inherited from the launcher unless log files are configured.
func (r *Process) ConfigureCmd(mergedEnv []string) (*exec.Cmd, error) {
	cmd, err := r.spec.BuildCommand()
	if err != nil {
		return nil, err
	}
	if r.spec.WorkDir != "" {
		cmd.Dir = r.spec.WorkDir
	}
	if mergedEnv != nil {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd)

	if !r.spec.Log.Enabled() {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd, nil
	}
	outW, errW, err := r.spec.Log.ProcessWriters(r.spec.Name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.outCloser, r.errCloser = outW, errW
	r.mu.Unlock()
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}
	if cmd.Stdout == nil || cmd.Stderr == nil {
		null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			r.CloseWriters()
			return nil, err
		}
		r.mu.Lock()
		r.devNull = null
		r.mu.Unlock()
		if cmd.Stdout == nil {
			cmd.Stdout = null
		}
		if cmd.Stderr == nil {
			cmd.Stderr = null
		}
	}
	return cmd, nil
}

// Start spawns the process. It returns as soon as the OS has created it.
func (r *Process) Start(mergedEnv []string) error {
	cmd, err := r.ConfigureCmd(mergedEnv)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		r.CloseWriters()
		return err
	}
	r.mu.Lock()
	r.cmd = cmd
	r.pid = cmd.Process.Pid
	r.startedAt = time.Now()
	r.mu.Unlock()
	return nil
}

// Wait blocks until the process exits and returns its exit code (-1 when killed by a signal).
func (r *Process) Wait() (int, error) {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil {
		return -1, errors.New("process not started")
	}
	err := cmd.Wait()
	code := ExitCode(err)
	r.CloseWriters()

	r.mu.Lock()
	r.exitCode = code
	r.exitErr = err
	close(r.done)
	r.mu.Unlock()
	return code, err
}

// Done is closed after Wait has reaped the process.
func (r *Process) Done() <-chan struct{} { return r.done }

// Exited reports whether Wait has returned.
func (r *Process) Exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Result returns the exit code and wait error once Done is closed.
func (r *Process) Result() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitCode, r.exitErr
}

func (r *Process) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid
}

func (r *Process) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// Stop asks the process group to terminate and escalates to a kill after wait.
// It relies on the goroutine owning Wait to reap the child.
func (r *Process) Stop(wait time.Duration) error {
	pid := r.PID()
	if pid == 0 || r.Exited() {
		return nil
	}
	_ = terminate(pid)
	select {
	case <-r.done:
		return nil
	case <-time.After(wait):
	}
	_ = kill(pid)
	select {
	case <-r.done:
		return nil
	case <-time.After(2 * time.Second):
		return fmt.Errorf("process %d did not exit after kill", pid)
	}
}

func (r *Process) CloseWriters() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outCloser != nil {
		_ = r.outCloser.Close()
		r.outCloser = nil
	}
	if r.errCloser != nil {
		_ = r.errCloser.Close()
		r.errCloser = nil
	}
	if r.devNull != nil {
		_ = r.devNull.Close()
		r.devNull = nil
	}
}

// ExitCode extracts the exit code from an error returned by exec.Cmd.Wait.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
