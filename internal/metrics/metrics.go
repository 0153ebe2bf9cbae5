package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec   // family, outcome: success|not_ok|failure|bad_gateway
	UpstreamDuration *prometheus.HistogramVec // family
	CacheEvents      *prometheus.CounterVec   // family, event: hit|set|negative

	StationCorrections *prometheus.CounterVec // kind: offset|shift_disabled

	RefreshJobs        *prometheus.CounterVec // result: updated|unchanged|failed
	RefreshPublished   prometheus.Counter
	RefreshPublishErrs prometheus.Counter
	PublishDuration    prometheus.Histogram
	NATSConnected      prometheus.Gauge

	CacheEnabled prometheus.Gauge
}

func NewCollector(cacheEnabled bool) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_upstream_requests_total",
			Help: "Upstream provider requests by operation family and outcome.",
		}, []string{"family", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_upstream_request_duration_seconds",
			Help:    "Duration of upstream provider requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"family"}),
		CacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_cache_events_total",
			Help: "Provider cache hits, stores and negative stores by family.",
		}, []string{"family", "event"}),
		StationCorrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_station_corrections_total",
			Help: "Persisted per-station timezone corrections.",
		}, []string{"kind"}),
		RefreshJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_refresh_jobs_total",
			Help: "Stopover refresh jobs by result.",
		}, []string{"result"}),
		RefreshPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_refresh_published_total",
			Help: "Total refresh jobs published to NATS.",
		}),
		RefreshPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_refresh_publish_errors_total",
			Help: "Total refresh job publish errors.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transit_refresh_publish_duration_seconds",
			Help:    "Duration to marshal and publish a refresh job.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		CacheEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_provider_cache_enabled",
			Help: "1 if the provider is wrapped by the cache.",
		}),
	}

	reg.MustRegister(
		c.UpstreamRequests, c.UpstreamDuration, c.CacheEvents,
		c.StationCorrections,
		c.RefreshJobs, c.RefreshPublished, c.RefreshPublishErrs, c.PublishDuration, c.NATSConnected,
		c.CacheEnabled,
	)

	if cacheEnabled {
		c.CacheEnabled.Set(1)
	}
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
