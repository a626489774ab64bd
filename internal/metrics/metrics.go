package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	spawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchr",
			Subsystem: "process",
			Name:      "spawns_total",
			Help:      "Number of successful spawns of the managed process.",
		}, []string{"name"},
	)
	spawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchr",
			Subsystem: "process",
			Name:      "spawn_failures_total",
			Help:      "Number of start requests that failed to spawn.",
		}, []string{"name"},
	)
	alreadyRunning = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchr",
			Subsystem: "process",
			Name:      "already_running_total",
			Help:      "Number of start requests answered without spawning.",
		}, []string{"name"},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchr",
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Number of observed exits of the managed process by exit code.",
		}, []string{"name", "code"},
	)
	uptime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "launchr",
			Subsystem: "process",
			Name:      "uptime_seconds",
			Help:      "Lifetime of each run of the managed process.",
			Buckets:   []float64{1, 5, 30, 60, 300, 1800, 3600, 21600, 86400},
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchr",
			Subsystem: "process",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between different process states.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "launchr",
			Subsystem: "process",
			Name:      "current_state",
			Help:      "Current state of the managed process (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
	readinessChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchr",
			Subsystem: "readiness",
			Name:      "checks_total",
			Help:      "Readiness probe results served by the ready endpoint.",
		}, []string{"result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{spawns, spawnFailures, alreadyRunning, exits, uptime, stateTransitions, currentStates, readinessChecks}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has succeeded.

func IncSpawn(name string) {
	if regOK.Load() {
		spawns.WithLabelValues(name).Inc()
	}
}

func IncSpawnFailure(name string) {
	if regOK.Load() {
		spawnFailures.WithLabelValues(name).Inc()
	}
}

func IncAlreadyRunning(name string) {
	if regOK.Load() {
		alreadyRunning.WithLabelValues(name).Inc()
	}
}

func IncExit(name string, code int) {
	if regOK.Load() {
		exits.WithLabelValues(name, strconv.Itoa(code)).Inc()
	}
}

func ObserveUptime(name string, seconds float64) {
	if regOK.Load() {
		uptime.WithLabelValues(name).Observe(seconds)
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(name, state).Set(value)
	}
}

func IncReadinessCheck(ready bool) {
	if regOK.Load() {
		result := "not_ready"
		if ready {
			result = "ready"
		}
		readinessChecks.WithLabelValues(result).Inc()
	}
}
