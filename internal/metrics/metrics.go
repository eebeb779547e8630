// Package metrics exposes Prometheus metrics for the tile server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	// TileRenders counts tiles rendered from source, by kind (vector,
	// raster) and dataset.
	TileRenders *prometheus.CounterVec

	// RenderDuration observes end-to-end render time in seconds, by kind.
	RenderDuration *prometheus.HistogramVec

	// CacheEvents counts hot-cache lookups by layer (redis, origin) and
	// result (hit, miss).
	CacheEvents *prometheus.CounterVec

	// StoreFailures counts failed background cache writes.
	StoreFailures prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		TileRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tile_renders_total",
			Help: "Tiles rendered from source, by kind and dataset.",
		}, []string{"kind", "dataset"}),
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tile_render_duration_seconds",
			Help:    "Tile render duration in seconds, by kind.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
		CacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tile_cache_events_total",
			Help: "Tile cache lookups, by layer and result.",
		}, []string{"layer", "result"}),
		StoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tile_store_failures_total",
			Help: "Background tile cache writes that failed.",
		}),
	}

	reg.MustRegister(m.TileRenders, m.RenderDuration, m.CacheEvents, m.StoreFailures)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
