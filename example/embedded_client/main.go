package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/launchr/internal/logger"
	"github.com/loykin/launchr/pkg/client"
)

// Triggers a running launchr daemon and waits for the target to become reachable,
// the same way `launchr start` does.
func main() {
	slogger, _, err := logger.New(logger.Config{Level: "info", Format: "text", Color: os.Getenv("CI") != "true", Time: true})
	if err != nil {
		panic(err)
	}
	slog.SetDefault(slogger)

	cfg := client.DefaultConfig()
	cfg.Logger = slogger
	if u := os.Getenv("LAUNCHR_API_URL"); u != "" {
		cfg.BaseURL = u
	}
	c, err := client.New(cfg)
	if err != nil {
		slog.Error("client setup failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	if !c.IsReachable(ctx) {
		slog.Error("launchr daemon not reachable",
			slog.String("url", cfg.BaseURL),
			slog.String("command", "launchr serve example/config/launchr.toml"))
		return
	}

	res, err := c.Launch(ctx, client.LaunchOptions{Mode: client.ModePoll, Interval: 500 * time.Millisecond, Timeout: 60 * time.Second})
	if err != nil {
		slog.Error("launch failed", "error", err)
		os.Exit(1)
	}
	slog.Info("target ready", "url", res.TargetURL, "outcome", res.Outcome, "elapsed", res.Elapsed)

	st, err := c.Status(ctx)
	if err != nil {
		slog.Error("status failed", "error", err)
		return
	}
	slog.Info("status", "state", st.State, "pid", st.PID, "starts", st.Starts)
}
