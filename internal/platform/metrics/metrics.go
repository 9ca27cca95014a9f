package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "script_console"

// Execution holds the collectors updated by the execution controller.
// A nil *Execution is valid and records nothing.
type Execution struct {
	registry *prometheus.Registry
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	rejected *prometheus.CounterVec
	running  prometheus.Gauge
	duration *prometheus.HistogramVec
}

func NewExecution(reg *prometheus.Registry) *Execution {
	m := &Execution{
		registry: reg,
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_started_total",
			Help:      "Script executions that entered the running state.",
		}, []string{"type"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_finished_total",
			Help:      "Script executions that reached a terminal state.",
		}, []string{"type", "status"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_rejected_total",
			Help:      "Run requests rejected before admission.",
		}, []string{"reason"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_running",
			Help:      "Script executions currently running.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of script executions.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"type", "status"}),
	}
	reg.MustRegister(m.started, m.finished, m.rejected, m.running, m.duration)
	return m
}

func (m *Execution) Started(scriptType string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(scriptType).Inc()
	m.running.Inc()
}

func (m *Execution) Finished(scriptType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(scriptType, status).Inc()
	m.duration.WithLabelValues(scriptType, status).Observe(seconds)
	m.running.Dec()
}

func (m *Execution) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// FinishedCount is the counter for one type/status pair.
func (m *Execution) FinishedCount(scriptType, status string) prometheus.Counter {
	return m.finished.WithLabelValues(scriptType, status)
}

func (m *Execution) RunningGauge() prometheus.Gauge {
	return m.running
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
