// Package metrics exposes Prometheus instrumentation for the model store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "callrec"

// Acquisition outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeNoVersion   = "no_compatible_version"
	OutcomeNoSuchModel = "no_such_model"
	OutcomeExhausted   = "pool_exhausted"
	OutcomeCorrupt     = "corrupt_archive"
	OutcomeTransport   = "transport_failed"
	OutcomeError       = "error"
)

// Metrics holds the store's collectors. A nil *Metrics records nothing.
type Metrics struct {
	acquisitions    *prometheus.CounterVec
	releases        prometheus.Counter
	resolutionCache *prometheus.CounterVec
	archiveOpens    *prometheus.CounterVec
	modelLoad       *prometheus.HistogramVec
	borrowed        prometheus.Gauge
	openArchives    prometheus.Gauge
}

// New registers the collectors with reg. Pass a fresh prometheus.NewRegistry()
// in tests; prometheus.DefaultRegisterer in a long-running process.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		acquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "acquisitions_total",
			Help:      "Model acquisitions by outcome",
		}, []string{"outcome"}),
		releases: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "releases_total",
			Help:      "Models returned to their pool",
		}),
		resolutionCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolution_cache",
			Name:      "lookups_total",
			Help:      "Resolution cache lookups by result (hit, miss)",
		}, []string{"result"}),
		archiveOpens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "archive_opens_total",
			Help:      "Archive open attempts by status (success, error)",
		}, []string{"status"}),
		modelLoad: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "model_load_seconds",
			Help:      "Time to deserialize one type's model",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"archive"}),
		borrowed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "borrowed_models",
			Help:      "Models currently borrowed",
		}),
		openArchives: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "open_archives",
			Help:      "Archives currently open",
		}),
	}
}

// RecordAcquisition counts one acquisition attempt.
func (m *Metrics) RecordAcquisition(outcome string) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.borrowed.Inc()
	}
}

// RecordRelease counts a returned model.
func (m *Metrics) RecordRelease() {
	if m == nil {
		return
	}
	m.releases.Inc()
	m.borrowed.Dec()
}

// RecordResolutionCache counts a resolution cache lookup.
func (m *Metrics) RecordResolutionCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.resolutionCache.WithLabelValues(result).Inc()
}

// RecordArchiveOpen counts an archive open attempt.
func (m *Metrics) RecordArchiveOpen(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.archiveOpens.WithLabelValues("error").Inc()
		return
	}
	m.archiveOpens.WithLabelValues("success").Inc()
	m.openArchives.Inc()
}

// RecordArchivesClosed lowers the open archive gauge by n and drops
// leases that died with them from the borrowed gauge.
func (m *Metrics) RecordArchivesClosed(n, orphanedLeases int) {
	if m == nil {
		return
	}
	m.openArchives.Sub(float64(n))
	m.borrowed.Sub(float64(orphanedLeases))
}

// RecordModelLoad observes one model deserialization.
func (m *Metrics) RecordModelLoad(archive string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelLoad.WithLabelValues(archive).Observe(d.Seconds())
}
