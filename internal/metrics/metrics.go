// Package metrics records batch results for the node_exporter textfile
// collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "s3backup"

// Recorder holds per-element gauges for one process. Gauges keep the values
// of earlier runs, so a scheduler process reports the latest state of every
// element.
type Recorder struct {
	registry    *prometheus.Registry
	success     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	bytes       *prometheus.GaugeVec
	duration    *prometheus.GaugeVec
	deleted     *prometheus.CounterVec
	runs        *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run of the element completed every stage.",
		}, []string{"operation", "element"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last fully successful run.",
		}, []string{"operation", "element"}),
		bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of the last artifact produced or restored.",
		}, []string{"operation", "element"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last run of the element.",
		}, []string{"operation", "element"}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Artifacts removed by retention sweeps.",
		}, []string{"element", "store"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Element runs by final state.",
		}, []string{"operation", "element", "state"}),
	}
	r.registry.MustRegister(r.success, r.lastSuccess, r.bytes, r.duration, r.deleted, r.runs)
	return r
}

// Result is what the recorder needs to know about one element run.
type Result struct {
	Operation     string
	Element       string
	State         string
	OK            bool
	Bytes         int64
	Duration      time.Duration
	LocalDeleted  int
	RemoteDeleted int
	Finished      time.Time
}

func (r *Recorder) Observe(res Result) {
	labels := prometheus.Labels{"operation": res.Operation, "element": res.Element}
	r.runs.WithLabelValues(res.Operation, res.Element, res.State).Inc()
	r.duration.With(labels).Set(res.Duration.Seconds())
	r.deleted.WithLabelValues(res.Element, "local").Add(float64(res.LocalDeleted))
	r.deleted.WithLabelValues(res.Element, "remote").Add(float64(res.RemoteDeleted))
	if !res.OK {
		r.success.With(labels).Set(0)
		return
	}
	r.success.With(labels).Set(1)
	r.lastSuccess.With(labels).Set(float64(res.Finished.Unix()))
	if res.Bytes > 0 {
		r.bytes.With(labels).Set(float64(res.Bytes))
	}
}

// WriteTextfile atomically replaces path with the current metric values.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// Gatherer exposes the registry for tests and alternative exporters.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}
