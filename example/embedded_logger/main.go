package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/launchr"
)

// embedded_logger: redirect the managed process output to rotated files instead of inheriting it.
// It starts a short command that writes to stdout and stderr, then shows where the logs are stored.
func main() {
	// Determine log directory: use LAUNCHR_LOG_DIR if set, otherwise a temp directory.
	logDir := os.Getenv("LAUNCHR_LOG_DIR")
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), fmt.Sprintf("launchr-logs-%d", time.Now().UnixNano()))
	}
	_ = os.MkdirAll(logDir, 0o750)

	cfg, err := launchr.LoadConfig("")
	if err != nil {
		panic(err)
	}
	cfg.Process.Name = "embedded-logger-demo"
	cfg.Process.Command = "sh -c 'echo hello-out; echo hello-err 1>&2; sleep 0.2'"
	cfg.Process.Log.Dir = logDir
	cfg.Readiness.Type = "none"

	l, err := launchr.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = l.Close(context.Background()) }()

	if _, err := l.Start(context.Background()); err != nil {
		panic(err)
	}
	// Give the process time to write logs and finish
	for i := 0; i < 20 && l.Status().LastExit == nil; i++ {
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("Embedded logger example")
	fmt.Println("  Log directory:", logDir)
	fmt.Println("  Stdout log:", filepath.Join(logDir, cfg.Process.Name+".stdout.log"))
	fmt.Println("  Stderr log:", filepath.Join(logDir, cfg.Process.Name+".stderr.log"))
	if le := l.Status().LastExit; le != nil {
		fmt.Println("  Exit code:", le.Code)
	}
}
