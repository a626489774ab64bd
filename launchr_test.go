package launchr

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/launchr/internal/history/sqlite"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	c, err := LoadConfig("")
	require.NoError(t, err)
	c.Process.Name = "demo"
	c.Process.Command = "sleep 5"
	c.Process.StopTimeout = time.Second
	c.Readiness.Type = "none"
	return c
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLauncher_HandlerStartsOnce(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
	gin.SetMode(gin.TestMode)

	c := testConfig(t)
	c.History.DSN = "sqlite://" + filepath.Join(t.TempDir(), "history.db")
	l, err := New(c, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close(context.Background()) })

	h := l.Handler()
	for i, want := range []string{"starting", "already_running"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/start", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, want, body["status"])
		assert.Equal(t, "http://localhost:8501", body["target_url"])
	}

	st := l.Status()
	assert.Equal(t, "running", string(st.State))
	assert.Equal(t, 1, st.Starts)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "running without probe counts as ready")
}

func TestLauncher_CloseStopsProcessAndFlushesHistory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
	dbPath := filepath.Join(t.TempDir(), "history.db")
	c := testConfig(t)
	c.History.DSN = dbPath

	l, err := New(c, WithLogger(quietLogger()))
	require.NoError(t, err)

	out, err := l.Start(t.Context())
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, out)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, l.Close(ctx))
	assert.Equal(t, "not_started", string(l.Status().State))

	sink, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	starts, err := sink.Count(t.Context(), "demo", "start")
	require.NoError(t, err)
	exits, err := sink.Count(t.Context(), "demo", "exit")
	require.NoError(t, err)
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, exits)
}

func TestLauncher_SpawnFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
	c := testConfig(t)
	c.Process.Command = "/nonexistent/streamlit run app.py"
	l, err := New(c, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer func() { _ = l.Close(context.Background()) }()

	out, err := l.Start(t.Context())
	assert.Equal(t, OutcomeStartFailed, out)
	assert.Error(t, err)
	assert.Equal(t, "not_started", string(l.Status().State))
}

func TestLauncher_ServeStopsOnCancel(t *testing.T) {
	c := testConfig(t)
	c.Server.Listen = "127.0.0.1:0"
	l, err := New(c, WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestLauncher_BadHistoryDSN(t *testing.T) {
	c := testConfig(t)
	c.History.DSN = "mongodb://localhost"
	_, err := New(c, WithLogger(quietLogger()))
	assert.Error(t, err)
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
