// Package metrics exposes task and log counters in Prometheus format.
//
// Every Collector owns its own registry, so several can coexist in one
// process (tests, one-shot CLI runs) without duplicate registration panics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whoten/internal/state"
)

const namespace = "whoten"

type Collector struct {
	reg *prometheus.Registry

	taskRuns     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec
	logEntries   *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Task invocations by outcome (ok or failed).",
		}, []string{"task", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task wall time in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"task"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_last_success_timestamp",
			Help:      "Unix time of the last successful run.",
		}, []string{"task"}),
		logEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_entries_total",
			Help:      "Dashboard log entries by level.",
		}, []string{"level"}),
	}

	c.reg.MustRegister(
		c.taskRuns,
		c.taskDuration,
		c.lastSuccess,
		c.logEntries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveTask records one finished invocation.
func (c *Collector) ObserveTask(name string, ok bool, took time.Duration, finished time.Time) {
	outcome := "failed"
	if ok {
		outcome = "ok"
		c.lastSuccess.WithLabelValues(name).Set(float64(finished.Unix()))
	}
	c.taskRuns.WithLabelValues(name, outcome).Inc()
	c.taskDuration.WithLabelValues(name).Observe(took.Seconds())
}

// ObserveLog counts one dashboard entry. Use it as a state observer.
func (c *Collector) ObserveLog(e state.Entry) {
	c.logEntries.WithLabelValues(string(e.Level)).Inc()
}

// Registry exposes the underlying registry for extra collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
