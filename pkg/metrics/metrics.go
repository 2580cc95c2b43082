package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fansync/pkg/logger"
)

// Metrics records scrape activity. All methods are safe on a nil receiver so
// components can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests  *prometheus.CounterVec
	apiRetries   *prometheus.CounterVec
	media        *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	passFailures *prometheus.CounterVec
}

// New builds a recorder with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fansync_api_requests_total",
			Help: "Remote API requests by collection and final status",
		}, []string{"collection", "status"}),
		apiRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fansync_api_retries_total",
			Help: "Remote API retry attempts by collection",
		}, []string{"collection"}),
		media: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fansync_media_total",
			Help: "Media items by account, source type and outcome",
		}, []string{"account", "source_type", "outcome"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fansync_downloaded_bytes_total",
			Help: "Bytes written to disk by account",
		}, []string{"account"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fansync_pass_duration_seconds",
			Help:    "Duration of one account pass",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"account"}),
		passFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fansync_pass_failures_total",
			Help: "Aborted units by account and scope (account, collection, item)",
		}, []string{"account", "scope"}),
	}

	m.registry.MustRegister(
		m.apiRequests,
		m.apiRetries,
		m.media,
		m.bytes,
		m.passDuration,
		m.passFailures,
	)
	return m
}

// Outcomes for ObserveMedia
const (
	OutcomeDownloaded = "downloaded"
	OutcomeSkipped    = "skipped"
	OutcomeFailed     = "failed"
)

// ObserveRequest counts one finished API call. status 0 means a network failure.
func (m *Metrics) ObserveRequest(collection string, status int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(collection, strconv.Itoa(status)).Inc()
}

// IncRetry counts one retry attempt
func (m *Metrics) IncRetry(collection string) {
	if m == nil {
		return
	}
	m.apiRetries.WithLabelValues(collection).Inc()
}

// ObserveMedia counts one media item outcome
func (m *Metrics) ObserveMedia(account, sourceType, outcome string) {
	if m == nil {
		return
	}
	m.media.WithLabelValues(account, sourceType, outcome).Inc()
}

// AddBytes adds written bytes for an account
func (m *Metrics) AddBytes(account string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(account).Add(float64(n))
}

// ObservePass records a pass duration
func (m *Metrics) ObservePass(account string, start time.Time) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(account).Observe(time.Since(start).Seconds())
}

// IncFailure counts an aborted unit
func (m *Metrics) IncFailure(account, scope string) {
	if m == nil {
		return
	}
	m.passFailures.WithLabelValues(account, scope).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /health on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.InfoWithFields("metrics server listening", map[string]interface{}{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
