package main

import (
	"time"

	"transit-reconciler/internal/metrics"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/refresh"
)

// wrapProviderMetrics adapts our Collector to the provider.Metrics interface.
func wrapProviderMetrics(c *metrics.Collector) provider.Metrics {
	if c == nil {
		return nil
	}
	return &providerMetrics{c: c}
}

type providerMetrics struct{ c *metrics.Collector }

func (p *providerMetrics) UpstreamRequest(f provider.Family, o provider.Outcome, d time.Duration) {
	p.c.UpstreamRequests.WithLabelValues(string(f), string(o)).Inc()
	p.c.UpstreamDuration.WithLabelValues(string(f)).Observe(d.Seconds())
}
func (p *providerMetrics) Cache(f provider.Family, e provider.CacheEvent) {
	p.c.CacheEvents.WithLabelValues(string(f), string(e)).Inc()
}
func (p *providerMetrics) StationCorrected(kind string) {
	p.c.StationCorrections.WithLabelValues(kind).Inc()
}

func wrapQueueMetrics(c *metrics.Collector) refresh.QueueMetrics {
	if c == nil {
		return nil
	}
	return &queueMetrics{c: c}
}

type queueMetrics struct{ c *metrics.Collector }

func (q *queueMetrics) PublishedInc()                  { q.c.RefreshPublished.Inc() }
func (q *queueMetrics) PublishErrInc()                 { q.c.RefreshPublishErrs.Inc() }
func (q *queueMetrics) PublishObserve(d time.Duration) { q.c.PublishDuration.Observe(d.Seconds()) }
func (q *queueMetrics) NATSSetConnected(b bool) {
	if b {
		q.c.NATSConnected.Set(1)
	} else {
		q.c.NATSConnected.Set(0)
	}
}

func wrapWorkerMetrics(c *metrics.Collector) refresh.WorkerMetrics {
	if c == nil {
		return nil
	}
	return &workerMetrics{c: c}
}

type workerMetrics struct{ c *metrics.Collector }

func (w *workerMetrics) RefreshJob(r refresh.Result) { w.c.RefreshJobs.WithLabelValues(string(r)).Inc() }
