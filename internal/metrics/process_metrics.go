package metrics

import (
	"context"
	"time"

	"github.com/loykin/launchr/internal/process"
	"github.com/prometheus/client_golang/prometheus"
)

// UsageCollector samples CPU and memory of the managed process at scrape time.
// pid returns 0 while no run is active, in which case nothing is emitted.
type UsageCollector struct {
	name    string
	pid     func() int
	timeout time.Duration

	rss     *prometheus.Desc
	cpu     *prometheus.Desc
	threads *prometheus.Desc
}

func NewUsageCollector(name string, pid func() int) *UsageCollector {
	labels := prometheus.Labels{"name": name}
	return &UsageCollector{
		name:    name,
		pid:     pid,
		timeout: 2 * time.Second,
		rss: prometheus.NewDesc("launchr_process_resident_memory_bytes",
			"Resident memory of the managed process.", nil, labels),
		cpu: prometheus.NewDesc("launchr_process_cpu_percent",
			"CPU usage percent of the managed process since it started.", nil, labels),
		threads: prometheus.NewDesc("launchr_process_threads",
			"Thread count of the managed process.", nil, labels),
	}
}

func (c *UsageCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rss
	ch <- c.cpu
	ch <- c.threads
}

func (c *UsageCollector) Collect(ch chan<- prometheus.Metric) {
	pid := c.pid()
	if pid <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	u, err := process.ReadUsage(ctx, pid)
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.rss, prometheus.GaugeValue, float64(u.RSSBytes))
	ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, u.CPUPercent)
	ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(u.Threads))
}
