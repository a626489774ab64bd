package readiness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// Probe reports whether the launched application accepts traffic.
type Probe interface {
	IsReady(ctx context.Context) bool
	Describe() string
}

// HTTPProbe succeeds when a GET on URL answers with a 2xx or 3xx status.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

func (p HTTPProbe) IsReady(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		// redirects count as ready, so do not follow them
		client = &http.Client{
			Timeout: 2 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

func (p HTTPProbe) Describe() string { return "http:" + p.URL }

// TCPProbe succeeds when Address accepts a TCP connection.
type TCPProbe struct {
	Address string
}

func (p TCPProbe) IsReady(ctx context.Context) bool {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (p TCPProbe) Describe() string { return "tcp:" + p.Address }

// CommandProbe runs a command that should exit 0 once the application is ready.
type CommandProbe struct{ Command string }

// buildShellAwareCommand avoids invoking a shell unless shell metacharacters are present.
func buildShellAwareCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return getShellCommand(ctx, cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.CommandContext(ctx, parts[0], parts[1:]...)
}

func (p CommandProbe) IsReady(ctx context.Context) bool {
	ok, _ := p.check(ctx)
	return ok
}

func (p CommandProbe) check(ctx context.Context) (bool, error) {
	cmdStr := strings.TrimSpace(p.Command)
	if cmdStr == "" {
		return false, errors.New("empty probe command")
	}
	cmd := buildShellAwareCommand(ctx, cmdStr)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		// non-zero exit code means not ready
		return false, nil
	}
	return false, err
}

func (p CommandProbe) Describe() string { return "cmd:" + p.Command }

// New builds a probe of the given kind ("http", "tcp" or "command").
func New(kind, target string) (Probe, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("readiness %s probe: empty target", kind)
	}
	switch strings.ToLower(kind) {
	case "", "http":
		return HTTPProbe{URL: target}, nil
	case "tcp":
		return TCPProbe{Address: target}, nil
	case "command", "cmd":
		return CommandProbe{Command: target}, nil
	default:
		return nil, fmt.Errorf("unknown readiness probe type %q", kind)
	}
}
