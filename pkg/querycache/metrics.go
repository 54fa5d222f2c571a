package querycache

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts cache activity per entity kind. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Fetches       *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	Hits          *prometheus.CounterVec
	Shared        *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "krishismart",
			Subsystem: "querycache",
			Name:      "fetches_total",
			Help:      "Remote fetches issued by the query cache.",
		}, []string{"kind"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "krishismart",
			Subsystem: "querycache",
			Name:      "fetch_errors_total",
			Help:      "Remote fetches that failed.",
		}, []string{"kind"}),
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "krishismart",
			Subsystem: "querycache",
			Name:      "hits_total",
			Help:      "Reads served from fresh cached data.",
		}, []string{"kind"}),
		Shared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "krishismart",
			Subsystem: "querycache",
			Name:      "shared_fetches_total",
			Help:      "Reads that joined a fetch already in flight for the same key.",
		}, []string{"kind"}),
		Invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "krishismart",
			Subsystem: "querycache",
			Name:      "invalidations_total",
			Help:      "Keys marked stale after a write.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Fetches, m.FetchErrors, m.Hits, m.Shared, m.Invalidations)
	}
	return m
}

func (m *Metrics) fetch(k Key) {
	if m != nil {
		m.Fetches.WithLabelValues(k.Kind).Inc()
	}
}

func (m *Metrics) fetchError(k Key) {
	if m != nil {
		m.FetchErrors.WithLabelValues(k.Kind).Inc()
	}
}

func (m *Metrics) hit(k Key) {
	if m != nil {
		m.Hits.WithLabelValues(k.Kind).Inc()
	}
}

func (m *Metrics) invalidate(k Key) {
	if m != nil {
		m.Invalidations.WithLabelValues(k.Kind).Inc()
	}
}

func (m *Metrics) shared(k Key) {
	if m != nil {
		m.Shared.WithLabelValues(k.Kind).Inc()
	}
}
