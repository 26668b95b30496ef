package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_events_total", Help: "Events produced per stream"},
		[]string{"stream"},
	)
	StreamEventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_events_dropped_total", Help: "Queued events evicted by drop-oldest overflow"},
		[]string{"stream"},
	)
	StreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_errors_total", Help: "Producer failures per stream"},
		[]string{"stream"},
	)
	StreamStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "stream_status", Help: "Stream health state (0 idle .. 5 closed)"},
		[]string{"stream"},
	)
	SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fusion_snapshots_total", Help: "Fused snapshots assembled"},
	)
	SnapshotSources = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fusion_snapshot_sources",
			Help:    "Number of sources contributing to each fused snapshot",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12},
		},
	)
	FusionLoopErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fusion_loop_errors_total", Help: "Recovered failures inside fusion or cleanup iterations"},
	)
	AlignerPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "aligner_events_purged_total", Help: "Buffered events discarded by the cleanup loop"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		StreamEventsTotal,
		StreamEventsDroppedTotal,
		StreamErrorsTotal,
		StreamStatus,
		SnapshotsTotal,
		SnapshotSources,
		FusionLoopErrorsTotal,
		AlignerPurgedTotal,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
