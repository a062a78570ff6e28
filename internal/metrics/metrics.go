// Package metrics provides Prometheus metrics for the recorder.
//
// A nil *Recorder is valid and records nothing, so components can take
// one unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "capture"

// Session results used as the result label.
const (
	ResultOK        = "ok"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

// Recorder holds the recorder's collectors on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	sessions        *prometheus.CounterVec
	samples         prometheus.Counter
	words           prometheus.Counter
	bytesWritten    prometheus.Counter
	headerBytes     prometheus.Gauge
	sessionDuration prometheus.Histogram
}

// New creates a Recorder and registers its collectors, together with
// the Go runtime and process collectors, on a fresh registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Recording sessions by result",
	}, []string{"result"})

	r.samples = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_ingested_total",
		Help:      "Sample groups accepted by the ingestion callback",
	})

	r.words = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "words_committed_total",
		Help:      "4-byte words programmed to storage",
	})

	r.bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_written_total",
		Help:      "Bytes programmed to storage, header included",
	})

	r.headerBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "header_bytes",
		Help:      "Header length of the most recent recording",
	})

	r.sessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_duration_seconds",
		Help:      "Wall time of a recording session from start to finalize",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 900},
	})

	r.registry.MustRegister(
		r.sessions,
		r.samples,
		r.words,
		r.bytesWritten,
		r.headerBytes,
		r.sessionDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// SessionFinished records the outcome and duration of a session.
func (r *Recorder) SessionFinished(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.sessions.WithLabelValues(result).Inc()
	r.sessionDuration.Observe(d.Seconds())
}

// SampleIngested counts one accepted sample group.
func (r *Recorder) SampleIngested() {
	if r == nil {
		return
	}
	r.samples.Inc()
}

// WordCommitted counts one programmed word.
func (r *Recorder) WordCommitted() {
	if r == nil {
		return
	}
	r.words.Inc()
	r.bytesWritten.Add(4)
}

// HeaderWritten records the header length and its programmed bytes.
func (r *Recorder) HeaderWritten(n uint32) {
	if r == nil {
		return
	}
	r.headerBytes.Set(float64(n))
	r.bytesWritten.Add(float64(n))
}
