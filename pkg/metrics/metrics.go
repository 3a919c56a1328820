// Package metrics exposes the harvester's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (client, ratelimit,
// crawler, sink, checkpoint) via promauto and land in the default registry.
//
// This package serves them and documents what is available.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the harvester.
var Registry = prometheus.DefaultRegisterer

// shutdownTimeout bounds graceful shutdown of the metrics server.
const shutdownTimeout = 5 * time.Second

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Serve listens on addr and serves Handler until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return serve(ctx, ln, logger)
}

func serve(ctx context.Context, ln net.Listener, logger zerolog.Logger) error {
	srv := &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - harvester_requests_total{outcome} (Counter): search requests by outcome (success, transport, protocol, empty, invalid)
//   - harvester_request_duration_seconds (Histogram): search request duration
//
// Rate Limit Metrics (pkg/ratelimit):
//   - harvester_rate_remaining (Gauge): points left in the current rate window
//   - harvester_rate_sleeps_total{cause} (Counter): advised pauses (low_remaining, fallback)
//
// Crawl Metrics (pkg/crawler):
//   - harvester_backoff_seconds{class} (Histogram): backoff waits by error class
//   - harvester_records_fetched_total (Counter): records taken from search pages
//   - harvester_sink_failures_total (Counter): batches the sink failed to persist
//   - harvester_crawl_stops_total{reason} (Counter): finished crawls by stop reason
//
// Sink Metrics (pkg/sink):
//   - harvester_sink_upsert_duration_seconds (Histogram): batch upsert duration
//   - harvester_sink_records_written_total (Counter): rows upserted
//
// Checkpoint Metrics (pkg/checkpoint):
//   - harvester_checkpoint_errors_total{operation} (Counter): failed load/save/clear
//   - harvester_checkpoint_saves_total (Counter): checkpoints written
//
// Example Prometheus Queries:
//
//   # Records per second
//   rate(harvester_records_fetched_total[5m])
//
//   # Share of failed requests
//   sum(rate(harvester_requests_total{outcome!="success"}[5m])) / sum(rate(harvester_requests_total[5m]))
//
//   # Close to the rate limit
//   harvester_rate_remaining < 100
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(harvester_request_duration_seconds_bucket[5m]))
