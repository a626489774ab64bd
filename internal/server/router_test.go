package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/launchr/internal/manager"
	"github.com/loykin/launchr/internal/process"
	"github.com/loykin/launchr/internal/readiness"
)

type fakeLauncher struct {
	mu     sync.Mutex
	calls  int
	out    manager.Outcome
	err    error
	status manager.Status
}

func (f *fakeLauncher) RequestStart(context.Context) (manager.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.out, f.err
}

func (f *fakeLauncher) CurrentStatus() manager.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func setupRouter(t *testing.T, sup Launcher, opts Options) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(sup, opts).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRoot(t *testing.T) {
	h := setupRouter(t, &fakeLauncher{}, Options{BasePath: "/abc/"})
	rec := doReq(t, h, http.MethodGet, "/abc/")
	if rec.Code != http.StatusOK || rec.Body.String() != "launchr is running" {
		t.Fatalf("unexpected root response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestStartOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		out        manager.Outcome
		err        error
		wantCode   int
		wantStatus string
	}{
		{"started", manager.OutcomeStarted, nil, http.StatusOK, "starting"},
		{"already running", manager.OutcomeAlreadyRunning, nil, http.StatusOK, "already_running"},
		{"failed", manager.OutcomeStartFailed, &manager.SpawnError{Name: "app", Err: errors.New("no such file")}, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeLauncher{out: tt.out, err: tt.err, status: manager.Status{Name: "app", State: manager.StateRunning, PID: 42}}
			h := setupRouter(t, f, Options{TargetURL: "http://localhost:8501"})
			rec := doReq(t, h, http.MethodGet, "/start")
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if f.calls != 1 {
				t.Fatalf("expected exactly one start request, got %d", f.calls)
			}
			if tt.wantStatus == "" {
				er := decode[errorResp](t, rec)
				if er.Error == "" {
					t.Fatalf("expected error message")
				}
				return
			}
			sr := decode[startResp](t, rec)
			if sr.Status != tt.wantStatus || sr.TargetURL != "http://localhost:8501" || sr.PID != 42 {
				t.Fatalf("unexpected start response: %+v", sr)
			}
		})
	}
}

func TestStartRejectsOtherMethods(t *testing.T) {
	h := setupRouter(t, &fakeLauncher{}, Options{})
	rec := doReq(t, h, http.MethodPost, "/start")
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 404/405, got %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	f := &fakeLauncher{status: manager.Status{
		Name:     "app",
		State:    manager.StateNotStarted,
		Starts:   2,
		LastExit: &manager.ExitInfo{PID: 7, Code: 1, At: time.Now()},
	}}
	h := setupRouter(t, f, Options{TargetURL: "http://localhost:8501"})
	rec := doReq(t, h, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["state"] != "not_started" || body["target_url"] != "http://localhost:8501" || body["starts"].(float64) != 2 {
		t.Fatalf("unexpected status body: %v", body)
	}
	if _, ok := body["last_exit"]; !ok {
		t.Fatalf("expected last_exit in %v", body)
	}
	if _, ok := body["usage"]; ok {
		t.Fatalf("no usage expected without a pid: %v", body)
	}
}

func TestReady(t *testing.T) {
	ready := false
	probe := readiness.Func{Name: "fake", Check: func(context.Context) bool { return ready }}

	f := &fakeLauncher{status: manager.Status{State: manager.StateNotStarted}}
	h := setupRouter(t, f, Options{Probe: probe})

	if rec := doReq(t, h, http.MethodGet, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("not started must be 503, got %d", rec.Code)
	}

	f.mu.Lock()
	f.status.State = manager.StateRunning
	f.mu.Unlock()
	if rec := doReq(t, h, http.MethodGet, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("failing probe must be 503, got %d", rec.Code)
	}

	ready = true
	rec := doReq(t, h, http.MethodGet, "/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rr := decode[readyResp](t, rec)
	if !rr.Ready || rr.Probe != "fake" {
		t.Fatalf("unexpected ready response: %+v", rr)
	}
}

func TestReadyWithoutProbe(t *testing.T) {
	f := &fakeLauncher{status: manager.Status{State: manager.StateRunning}}
	h := setupRouter(t, f, Options{})
	if rec := doReq(t, h, http.MethodGet, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("running without probe must be ready, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := setupRouter(t, &fakeLauncher{}, Options{AllowedOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for foreign origin: %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/start", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{"": "", "/": "", "abc": "/abc", "/abc/": "/abc", " /x/y// ": "/x/y"}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Errorf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

// Concurrent triggers against a real supervisor spawn one process.
func TestStartWithSupervisor_Concurrent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
	sup := manager.NewSupervisor(process.Spec{Name: "app", Command: "sleep 5"},
		manager.Options{StopOnShutdown: true, StopTimeout: time.Second})
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	h := setupRouter(t, sup, Options{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	statuses := map[string]int{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := doReq(t, h, http.MethodGet, "/start")
			var sr startResp
			_ = json.Unmarshal(rec.Body.Bytes(), &sr)
			mu.Lock()
			statuses[sr.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if statuses["starting"] != 1 || statuses["already_running"] != 9 {
		t.Fatalf("unexpected outcomes: %v", statuses)
	}

	rec := doReq(t, h, http.MethodGet, "/status")
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["state"] != "running" || body["pid"] == nil {
		t.Fatalf("unexpected status: %v", body)
	}
}

func TestStartWithSupervisor_SpawnFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
	sup := manager.NewSupervisor(process.Spec{Name: "app", Command: "/nonexistent/launchr-target"}, manager.Options{})
	h := setupRouter(t, sup, Options{})
	rec := doReq(t, h, http.MethodGet, "/start")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	if st := sup.CurrentStatus(); st.State != manager.StateNotStarted {
		t.Fatalf("expected not_started after failure, got %s", st.State)
	}
}
