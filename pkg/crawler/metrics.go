package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_backoff_seconds",
		Help:    "Backoff waits before retrying a failed request, by error class",
		Buckets: []float64{1, 5, 10, 15, 20, 30, 60, 300, 900, 3600},
	}, []string{"class"})

	recordsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_records_fetched_total",
		Help: "Total repository records taken from search pages",
	})

	sinkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_sink_failures_total",
		Help: "Total batches the sink failed to persist",
	})

	crawlStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_crawl_stops_total",
		Help: "Total crawls ended, by stop reason",
	}, []string{"reason"})
)
