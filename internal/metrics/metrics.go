package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pranshuparmar/whosock/internal/pipeline"
	"github.com/pranshuparmar/whosock/pkg/model"
)

const (
	labelProcess  = "process"
	labelProtocol = "protocol"

	MetricsNamespace       = "whosock"
	MetricOpenSockets      = "open_sockets"
	MetricSnapshotDuration = "snapshot_duration_seconds"
	MetricSnapshotErrors   = "snapshot_errors_total"
	MetricCollisions       = "snapshot_collisions_total"
	MetricLastSnapshotTime = "last_snapshot_time"
)

// buckets used for the snapshot duration histogram. lsof on a busy host
// can take seconds.
var snapshotBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1,
	0.25, 0.5, 1, 2.5, 5, 10,
}

// Recorder publishes snapshot results on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	openSockets      *prometheus.GaugeVec
	snapshotDuration prometheus.Histogram
	snapshotErrors   prometheus.Counter
	collisions       prometheus.Counter
	lastSnapshotTime prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		openSockets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      MetricOpenSockets,
			Help:      "Open local sockets in the last snapshot, by owning process.",
		}, []string{labelProcess, labelProtocol}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      MetricSnapshotDuration,
			Help:      "Time taken to enumerate connections and build a snapshot.",
			Buckets:   snapshotBuckets,
		}),
		snapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      MetricSnapshotErrors,
			Help:      "Snapshots that failed because the connection source failed.",
		}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      MetricCollisions,
			Help:      "Local sockets reported more than once in a single enumeration.",
		}),
		lastSnapshotTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      MetricLastSnapshotTime,
			Help:      "Unix timestamp in seconds of the last successful snapshot.",
		}),
	}
	r.registry.MustRegister(
		r.openSockets, r.snapshotDuration, r.snapshotErrors,
		r.collisions, r.lastSnapshotTime,
	)
	return r
}

// ObserveSnapshot replaces the open socket gauges with the contents of snap.
func (r *Recorder) ObserveSnapshot(snap model.OpenSockets, took time.Duration, at time.Time) {
	counts := make(map[[2]string]int)
	for s, name := range snap.All() {
		counts[[2]string{name, s.Protocol.String()}]++
	}

	// Reset drops series for processes that went away.
	r.openSockets.Reset()
	for k, n := range counts {
		r.openSockets.WithLabelValues(k[0], k[1]).Set(float64(n))
	}
	r.snapshotDuration.Observe(took.Seconds())
	r.lastSnapshotTime.Set(float64(at.Unix()))
}

func (r *Recorder) ObserveError() {
	r.snapshotErrors.Inc()
}

// ObserveCollision is a pipeline collision handler.
func (r *Recorder) ObserveCollision(pipeline.Collision) {
	r.collisions.Inc()
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	})
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }
