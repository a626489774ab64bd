package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loykin/launchr"
	"github.com/loykin/launchr/internal/readiness"
	"github.com/loykin/launchr/pkg/client"
)

func runServe(ctx context.Context, f ServeFlags) error {
	cfg, err := launchr.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if f.Listen != "" {
		cfg.Server.Listen = f.Listen
	}
	if f.Command != "" {
		cfg.Process.Command = f.Command
	}
	if f.WorkDir != "" {
		cfg.Process.WorkDir = f.WorkDir
	}

	l, err := launchr.New(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return l.Serve(ctx)
}

func runStart(ctx context.Context, out io.Writer, f StartFlags) error {
	cfg, err := launchr.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	c, err := client.New(client.Config{
		BaseURL:  apiURL(f.APIUrl, cfg),
		Timeout:  f.APITimeout,
		CACert:   f.CACert,
		Insecure: f.Insecure,
	})
	if err != nil {
		return err
	}

	opts := client.LaunchOptions{
		Mode:        valOr(f.Mode, cfg.Readiness.Mode),
		GracePeriod: durOr(f.GracePeriod, cfg.Readiness.GracePeriod),
		Interval:    durOr(f.Interval, cfg.Readiness.Interval),
		Timeout:     durOr(f.Timeout, cfg.Readiness.Timeout),
	}
	res, err := c.Launch(ctx, opts)
	if err != nil {
		if res != nil && errors.Is(err, readiness.ErrNotReady) {
			return fmt.Errorf("%s did not become ready within %s: %w", res.TargetURL, opts.Timeout, err)
		}
		return err
	}

	target := res.TargetURL
	if target == "" {
		target = cfg.Process.URL
	}
	switch {
	case res.Ready:
		_, _ = fmt.Fprintf(out, "ready: %s (%s, %s)\n", target, res.Outcome, res.Elapsed.Round(time.Millisecond))
	default:
		_, _ = fmt.Fprintf(out, "launched: %s (%s, readiness not verified)\n", target, res.Outcome)
	}
	return nil
}

func runStatus(ctx context.Context, out io.Writer, f StatusFlags) error {
	cfg, err := launchr.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	c, err := client.New(client.Config{
		BaseURL:  apiURL(f.APIUrl, cfg),
		Timeout:  f.APITimeout,
		CACert:   f.CACert,
		Insecure: f.Insecure,
	})
	if err != nil {
		return err
	}
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

// apiURL returns explicit when set, otherwise the daemon address implied by [server].
func apiURL(explicit string, cfg *launchr.Config) string {
	if explicit != "" {
		return explicit
	}
	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	host, port, err := net.SplitHostPort(cfg.Server.Listen)
	if err != nil {
		return scheme + "://localhost:5000" + cfg.Server.BasePath
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	base := strings.TrimRight(cfg.Server.BasePath, "/")
	if base != "" && !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return scheme + "://" + net.JoinHostPort(host, port) + base
}

func valOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durOr(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
