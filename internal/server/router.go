package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/launchr/internal/manager"
	"github.com/loykin/launchr/internal/metrics"
	"github.com/loykin/launchr/internal/process"
	"github.com/loykin/launchr/internal/readiness"
)

// Launcher is the part of the supervisor the HTTP surface needs.
type Launcher interface {
	RequestStart(ctx context.Context) (manager.Outcome, error)
	CurrentStatus() manager.Status
}

// Options configures a Router.
type Options struct {
	BasePath       string          // may be empty or start with '/'; no trailing slash
	Probe          readiness.Probe // nil means ready once the process is running
	TargetURL      string          // address clients open once the application is ready
	AllowedOrigins []string        // CORS origins; "*" allows any
	Logger         *slog.Logger
}

// Router provides embeddable HTTP handlers for the launcher.
// Endpoints:
//
//	GET {basePath}/        liveness text
//	GET {basePath}/start   spawn the managed process unless already running
//	GET {basePath}/status  supervisor snapshot
//	GET {basePath}/ready   one readiness probe (200 ready, 503 not ready)
type Router struct {
	sup      Launcher
	basePath string
	probe    readiness.Probe
	target   string
	origins  []string
	logger   *slog.Logger
}

// NewRouter constructs a new Router.
// Example basePath: "/abc" results in /abc/start, /abc/status.
func NewRouter(sup Launcher, opts Options) *Router {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Router{
		sup:      sup,
		basePath: sanitizeBase(opts.BasePath),
		probe:    opts.Probe,
		target:   opts.TargetURL,
		origins:  opts.AllowedOrigins,
		logger:   lg,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), requestLogger(r.logger))
	if len(r.origins) > 0 {
		g.Use(cors(r.origins))
	}
	group := g.Group(r.basePath)
	group.GET("/", r.handleRoot)
	group.GET("/start", r.handleStart)
	group.GET("/status", r.handleStatus)
	group.GET("/ready", r.handleReady)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router; HTTPS when tlsCfg is set.
// Listen errors other than a clean shutdown are reported on the returned channel.
func NewServer(addr string, r *Router, tlsCfg *tls.Config) (*http.Server, <-chan error) {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		var err error
		if tlsCfg != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return server, errc
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type startResp struct {
	Status    string        `json:"status"`
	Message   string        `json:"message"`
	State     manager.State `json:"state"`
	PID       int           `json:"pid,omitempty"`
	TargetURL string        `json:"target_url,omitempty"`
}

type statusResp struct {
	manager.Status
	TargetURL string         `json:"target_url,omitempty"`
	Usage     *process.Usage `json:"usage,omitempty"`
}

type readyResp struct {
	Ready bool          `json:"ready"`
	State manager.State `json:"state"`
	Probe string        `json:"probe,omitempty"`
}

func (r *Router) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "launchr is running")
}

// handleStart answers as soon as the spawn decision is made; it never waits for readiness.
func (r *Router) handleStart(c *gin.Context) {
	out, err := r.sup.RequestStart(c.Request.Context())
	st := r.sup.CurrentStatus()
	switch out {
	case manager.OutcomeStarted:
		writeJSON(c, http.StatusOK, startResp{
			Status:    "starting",
			Message:   "process started",
			State:     st.State,
			PID:       st.PID,
			TargetURL: r.target,
		})
	case manager.OutcomeAlreadyRunning:
		writeJSON(c, http.StatusOK, startResp{
			Status:    "already_running",
			Message:   "process is already running",
			State:     st.State,
			PID:       st.PID,
			TargetURL: r.target,
		})
	default:
		msg := "failed to start process"
		if err != nil {
			msg = err.Error()
		}
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: msg})
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	st := r.sup.CurrentStatus()
	resp := statusResp{Status: st, TargetURL: r.target}
	if st.PID > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if u, err := process.ReadUsage(ctx, st.PID); err == nil {
			resp.Usage = &u
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleReady(c *gin.Context) {
	st := r.sup.CurrentStatus()
	resp := readyResp{State: st.State}
	switch {
	case st.State != manager.StateRunning:
		resp.Ready = false
	case r.probe == nil:
		resp.Ready = true
	default:
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		resp.Probe = r.probe.Describe()
		resp.Ready = r.probe.IsReady(ctx)
	}
	metrics.IncReadinessCheck(resp.Ready)
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, resp)
}
