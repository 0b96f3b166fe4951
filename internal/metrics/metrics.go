// Package metrics exposes session-wide counters and gauges via
// prometheus/client_golang, the metrics stack pulled in from the rest of
// the retrieval pack (chihaya and kraken both instrument their transfer
// paths the same way). It sits beside, not in place of, the
// rcrowley/go-metrics EWMAs internal/torrentimpl keeps per peer for choke
// ranking; those have no Prometheus exposition format of their own.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the session's gauges/counters. The collectors carry no
// labels, so only one Registry can be registered per
// prometheus.Registerer. The session creates and exports them (via
// internal/rpc's /metrics route), but the reactor and checker do not
// update them, so they report their initial values.
type Registry struct {
	ConnectionsOpen   prometheus.Gauge
	HalfOpenCount     prometheus.Gauge
	BytesUploaded     prometheus.Counter
	BytesDownloaded   prometheus.Counter
	PiecesVerified    prometheus.Counter
	PiecesFailed      prometheus.Counter
	TickDuration      prometheus.Histogram
	AlertsPosted      prometheus.Counter
}

// NewRegistry builds a fresh, unregistered Registry. Callers that want the
// metrics exposed over HTTP pass prometheus.DefaultRegisterer (or their
// own) to Register.
func NewRegistry() *Registry {
	return &Registry{
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "torrentd", Subsystem: "session", Name: "connections_open",
			Help: "Number of established peer connections.",
		}),
		HalfOpenCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "torrentd", Subsystem: "session", Name: "half_open_connections",
			Help: "Number of in-progress outbound TCP handshakes.",
		}),
		BytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "torrentd", Subsystem: "session", Name: "bytes_uploaded_total",
			Help: "Total bytes uploaded to peers.",
		}),
		BytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "torrentd", Subsystem: "session", Name: "bytes_downloaded_total",
			Help: "Total bytes downloaded from peers.",
		}),
		PiecesVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "torrentd", Subsystem: "checker", Name: "pieces_verified_total",
			Help: "Pieces that passed hash verification.",
		}),
		PiecesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "torrentd", Subsystem: "checker", Name: "pieces_failed_total",
			Help: "Pieces that failed hash verification.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "torrentd", Subsystem: "session", Name: "tick_duration_seconds",
			Help:    "Wall-clock duration of the reactor's Tick phase.",
			Buckets: prometheus.DefBuckets,
		}),
		AlertsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "torrentd", Subsystem: "session", Name: "alerts_posted_total",
			Help: "Alerts posted to the alert sink.",
		}),
	}
}

// Register adds every collector to reg. Call once per process.
func (r *Registry) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		r.ConnectionsOpen, r.HalfOpenCount, r.BytesUploaded, r.BytesDownloaded,
		r.PiecesVerified, r.PiecesFailed, r.TickDuration, r.AlertsPosted,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
