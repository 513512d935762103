// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransportRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "candlesync_transport_retries_total",
		Help: "HTTP requests retried by the resilient transport",
	}, []string{"host"})

	CandlesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "candlesync_candles_fetched_total",
		Help: "Candles returned by venue clients",
	}, []string{"venue", "symbol"})

	CandlesUpserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "candlesync_candles_upserted_total",
		Help: "Snapshots written by the ingester",
	}, []string{"venue", "symbol"})

	IngestFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "candlesync_ingest_failures_total",
		Help: "Failed per-venue ingestion routines and per-record upserts",
	}, []string{"venue", "symbol", "stage"})

	SnapshotsDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "candlesync_snapshots_deleted_total",
		Help: "Snapshots removed by the retention sweep",
	}, []string{"venue", "symbol"})

	PollerSkippedTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "candlesync_poller_skipped_ticks_total",
		Help: "Ticks skipped because the previous cycle was still running",
	}, []string{"poller"})

	CycleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "candlesync_cycle_duration_seconds",
		Help:    "Wall time of one poller cycle",
		Buckets: prometheus.DefBuckets,
	}, []string{"poller"})

	ArbNetProfit = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "candlesync_arb_net_profit",
		Help: "Net profit of the latest arbitrage check, quote currency",
	}, []string{"symbol"})
)

func init() {
	prometheus.MustRegister(
		TransportRetries,
		CandlesFetched,
		CandlesUpserted,
		IngestFailures,
		SnapshotsDeleted,
		PollerSkippedTicks,
		CycleDuration,
		ArbNetProfit,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
