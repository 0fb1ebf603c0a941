// Package metrics declares the Prometheus collectors of the PVF server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pvf_load_duration_seconds",
		Help:    "Duration of dataset loads",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"result"})

	LoadWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvf_load_warnings_total",
		Help: "Auxiliary files that could not be loaded",
	})

	SliceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvf_slice_requests_total",
		Help: "Time slice requests by outcome",
	}, []string{"result"})

	FrameCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvf_frame_cache_total",
		Help: "Projected frame cache lookups",
	}, []string{"result"})

	PrefetchWindows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvf_prefetch_windows_total",
		Help: "Streamline windows processed by the background prefetcher",
	}, []string{"result"})

	ActiveGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvf_active_generation",
		Help: "Generation of the active dataset",
	})
)
