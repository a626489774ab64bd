package launchr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/launchr/internal/config"
	"github.com/loykin/launchr/internal/history"
	"github.com/loykin/launchr/internal/history/factory"
	"github.com/loykin/launchr/internal/logger"
	"github.com/loykin/launchr/internal/manager"
	"github.com/loykin/launchr/internal/metrics"
	"github.com/loykin/launchr/internal/process"
	iapi "github.com/loykin/launchr/internal/server"
	tlsconf "github.com/loykin/launchr/internal/tls"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Spec = process.Spec

type Status = manager.Status

type Outcome = manager.Outcome

const (
	OutcomeStarted        = manager.OutcomeStarted
	OutcomeAlreadyRunning = manager.OutcomeAlreadyRunning
	OutcomeStartFailed    = manager.OutcomeStartFailed
)

type HistorySink = history.Sink

// LoadConfig reads a TOML config file; an empty path yields the defaults.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Launcher wires the supervisor, its history and the HTTP surface from one Config.
type Launcher struct {
	cfg       *Config
	logger    *slog.Logger
	logCloser io.Closer
	recorder  *history.Recorder
	sup       *manager.Supervisor
	router    *iapi.Router
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger *slog.Logger
	sinks  []history.Sink
}

// WithLogger replaces the logger built from [log].
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithHistorySinks adds sinks next to the one configured by [history].dsn.
func WithHistorySinks(s ...history.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s...) }
}

// New builds a Launcher. Nothing is spawned until Start or GET /start.
func New(c *Config, opts ...Option) (*Launcher, error) {
	if c == nil {
		return nil, errors.New("nil config")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	l := &Launcher{cfg: c, logger: o.logger}
	if l.logger == nil {
		lg, closer, err := logger.New(c.Log)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		l.logger, l.logCloser = lg, closer
	}

	sinks := o.sinks
	if c.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(c.History.DSN)
		if err != nil {
			l.closeLog()
			return nil, fmt.Errorf("history sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	l.recorder = history.NewRecorder(l.logger, sinks...)

	baseEnv, err := c.Environment()
	if err != nil {
		_ = l.recorder.Close()
		l.closeLog()
		return nil, err
	}
	probe, err := c.Probe()
	if err != nil {
		_ = l.recorder.Close()
		l.closeLog()
		return nil, err
	}

	l.sup = manager.NewSupervisor(c.ProcessSpec(), manager.Options{
		Env:            baseEnv,
		Recorder:       l.recorder,
		Logger:         l.logger,
		StopTimeout:    c.Process.StopTimeout,
		StopOnShutdown: c.Process.StopOnShutdown,
	})
	l.router = iapi.NewRouter(l.sup, iapi.Options{
		BasePath:       c.Server.BasePath,
		Probe:          probe,
		TargetURL:      c.Process.URL,
		AllowedOrigins: c.Server.AllowedOrigins,
		Logger:         l.logger,
	})

	if c.Metrics.Enabled {
		if err := RegisterMetrics(prometheus.DefaultRegisterer, c.Process.Name, l.sup.PID); err != nil {
			l.logger.Warn("failed to register metrics", "error", err)
		}
	}
	return l, nil
}

// Handler returns the gin-powered HTTP handler for mounting in another server.
func (l *Launcher) Handler() http.Handler { return l.router.Handler() }

// Start requests a start directly, bypassing HTTP.
func (l *Launcher) Start(ctx context.Context) (Outcome, error) { return l.sup.RequestStart(ctx) }

// Status returns the current supervisor snapshot.
func (l *Launcher) Status() Status { return l.sup.CurrentStatus() }

func (l *Launcher) Logger() *slog.Logger { return l.logger }

// Serve runs the trigger endpoint (and the metrics endpoint when enabled) until ctx is done,
// then shuts everything down.
func (l *Launcher) Serve(ctx context.Context) error {
	tlsCfg, err := tlsconf.Setup(l.cfg.Server.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	srv, errc := iapi.NewServer(l.cfg.Server.Listen, l.router, tlsCfg)
	protocol := "http"
	if tlsCfg != nil {
		protocol = "https"
	}
	l.logger.Info("launchr listening", "protocol", protocol, "addr", l.cfg.Server.Listen,
		"base_path", l.cfg.Server.BasePath, "command", l.cfg.Process.Command, "target", l.cfg.Process.URL)

	var metricsSrv *http.Server
	var metricsErr <-chan error
	if l.cfg.Metrics.Enabled && l.cfg.Metrics.Listen != "" {
		metricsSrv, metricsErr = ServeMetrics(l.cfg.Metrics.Listen)
		l.logger.Info("metrics listening", "addr", l.cfg.Metrics.Listen)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errc:
		if ok {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	case err, ok := <-metricsErr:
		if ok {
			serveErr = fmt.Errorf("metrics server: %w", err)
		}
	}

	l.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), l.cfg.Process.StopTimeout+5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return errors.Join(serveErr, l.shutdown(shutdownCtx))
}

// Close stops the managed process when configured to and releases history and log files.
func (l *Launcher) Close(ctx context.Context) error { return l.shutdown(ctx) }

func (l *Launcher) shutdown(ctx context.Context) error {
	err := l.sup.Shutdown(ctx)
	err = errors.Join(err, l.recorder.Close())
	l.closeLog()
	return err
}

func (l *Launcher) closeLog() {
	if l.logCloser != nil {
		_ = l.logCloser.Close()
		l.logCloser = nil
	}
}

// Metrics helpers (public facade)

// RegisterMetrics registers the launcher collectors and a scrape-time usage collector
// for the process identified by pid.
func RegisterMetrics(r prometheus.Registerer, name string, pid func() int) error {
	if err := metrics.Register(r); err != nil {
		return err
	}
	if err := r.Register(metrics.NewUsageCollector(name, pid)); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}
	return nil
}

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
func ServeMetrics(addr string) (*http.Server, <-chan error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return srv, errc
}
