// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"oddsgate/platform/admission"
	"oddsgate/platform/catalog"
	"oddsgate/platform/hotcache"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddsgate_gateway_requests_total",
			Help: "Admission decisions by route provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	promDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddsgate_gateway_denials_total",
			Help: "Denied requests by reason",
		},
		[]string{"reason"},
	)
	promUpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oddsgate_gateway_upstream_duration_milliseconds",
			Help:    "Upstream call duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"provider", "code"},
	)
	promCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddsgate_gateway_hotcache_results_total",
			Help: "Hot cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)
	promLiveChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oddsgate_gateway_live_channels",
			Help: "Upstream stream channels currently open",
		},
	)
	promSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oddsgate_gateway_stream_subscribers",
			Help: "Downstream sockets joined to stream channels",
		},
	)
	promSyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddsgate_gateway_sync_runs_total",
			Help: "Catalog sync job runs by job and result",
		},
		[]string{"job", "result"},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promDenials)
	prometheus.MustRegister(promUpstreamDuration)
	prometheus.MustRegister(promCacheResults)
	prometheus.MustRegister(promLiveChannels)
	prometheus.MustRegister(promSubscribers)
	prometheus.MustRegister(promSyncRuns)
}

func observeDecision(route admission.Route, d admission.Decision) {
	provider := route.Provider
	if provider == "" {
		provider = "none"
	}
	if d.Allowed {
		promRequestsTotal.WithLabelValues(provider, "allowed").Inc()
		return
	}
	promRequestsTotal.WithLabelValues(provider, "blocked").Inc()
	promDenials.WithLabelValues(string(d.Reason)).Inc()
}

func observeUpstream(provider string, status int, latency time.Duration) {
	promUpstreamDuration.WithLabelValues(provider, strconv.Itoa(status)).Observe(float64(latency.Milliseconds()))
}

func observeCache(name string, r hotcache.Result) {
	promCacheResults.WithLabelValues(name, string(r)).Inc()
}

func observeChannels(channels, subscribers int) {
	promLiveChannels.Set(float64(channels))
	promSubscribers.Set(float64(subscribers))
}

func observeSync(job catalog.Job, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	promSyncRuns.WithLabelValues(string(job), result).Inc()
}
