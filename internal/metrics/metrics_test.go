package metrics

import (
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncSpawn("app")
	IncSpawn("app")
	IncSpawnFailure("app")
	IncAlreadyRunning("app")
	IncExit("app", 3)
	ObserveUptime("app", 12)
	RecordStateTransition("app", "not_started", "starting")
	SetCurrentState("app", "running", true)
	IncReadinessCheck(false)

	if got := testutil.ToFloat64(spawns.WithLabelValues("app")); got != 2 {
		t.Fatalf("expected 2 spawns, got %v", got)
	}
	if got := testutil.ToFloat64(exits.WithLabelValues("app", "3")); got != 1 {
		t.Fatalf("expected 1 exit with code 3, got %v", got)
	}
	if got := testutil.ToFloat64(currentStates.WithLabelValues("app", "running")); got != 1 {
		t.Fatalf("expected running state gauge 1, got %v", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"launchr_process_spawns_total":            false,
		"launchr_process_spawn_failures_total":    false,
		"launchr_process_already_running_total":   false,
		"launchr_process_exits_total":             false,
		"launchr_process_uptime_seconds":          false,
		"launchr_process_state_transitions_total": false,
		"launchr_process_current_state":           false,
		"launchr_readiness_checks_total":          false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesText(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(b), "go_goroutines") {
		t.Fatalf("unexpected metrics output: %d", resp.StatusCode)
	}
}

func TestUsageCollector(t *testing.T) {
	pid := 0
	c := NewUsageCollector("app", func() int { return pid })
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no samples without a pid, got %d", n)
	}
	pid = os.Getpid()
	if n := testutil.CollectAndCount(c); n != 3 {
		t.Fatalf("expected 3 samples for a live pid, got %d", n)
	}
}
