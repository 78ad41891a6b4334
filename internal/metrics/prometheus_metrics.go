// Package metrics exposes a Prometheus registry for the candle-streaming
// domain: gap detection, backfill traffic, store operations, and
// reconnects.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Registry holds every metric the coordinator, simulator, and store record.
type Registry struct {
	GapsDetected     *prometheus.CounterVec
	GapSizes         *prometheus.HistogramVec
	BackfillRequests *prometheus.CounterVec

	MessagesProcessed *prometheus.CounterVec
	ProcessingLatency *prometheus.HistogramVec
	ActiveSubs        *prometheus.GaugeVec

	CoordinatorStatus *prometheus.GaugeVec
	Reconnects        *prometheus.CounterVec

	StoreOperations *prometheus.CounterVec

	server *http.Server
	log    *zap.Logger
}

// NewRegistry builds and registers every metric against the default
// Prometheus registerer.
func NewRegistry(log *zap.Logger) *Registry {
	r := &Registry{
		log: log,

		GapsDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "p9candles_gaps_detected_total",
				Help: "Total number of sequence gaps detected by the coordinator",
			},
			[]string{"source", "symbol"},
		),
		GapSizes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "p9candles_gap_sizes",
				Help:    "Distribution of detected gap sizes, in candles",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"source", "symbol"},
		),
		BackfillRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "p9candles_backfill_requests_total",
				Help: "Total number of BackfillCandlesRequest round trips",
			},
			[]string{"source", "symbol", "outcome"},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "p9candles_messages_processed_total",
				Help: "Total number of wire messages processed",
			},
			[]string{"component", "message_type"},
		),
		ProcessingLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "p9candles_processing_latency_seconds",
				Help:    "Message processing latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"component", "operation"},
		),
		ActiveSubs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "p9candles_active_subscriptions",
				Help: "Number of active PUB/SUB subscriber connections",
			},
			[]string{"source"},
		),

		CoordinatorStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "p9candles_coordinator_status",
				Help: "Coordinator status (0=disconnected,1=connecting,2=subscribed,3=backfilling)",
			},
			[]string{"source", "symbol"},
		),
		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "p9candles_reconnects_total",
				Help: "Total number of coordinator reconnect attempts",
			},
			[]string{"source", "symbol", "reason"},
		),

		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "p9candles_store_operations_total",
				Help: "Total number of store backend operations",
			},
			[]string{"backend", "operation", "status"},
		),
	}

	prometheus.MustRegister(
		r.GapsDetected,
		r.GapSizes,
		r.BackfillRequests,
		r.MessagesProcessed,
		r.ProcessingLatency,
		r.ActiveSubs,
		r.CoordinatorStatus,
		r.Reconnects,
		r.StoreOperations,
	)

	return r
}

// Start serves /metrics over HTTP until Stop is called.
func (r *Registry) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.server = &http.Server{Addr: addr, Handler: mux}
	r.log.Info("starting metrics server", zap.String("addr", addr))

	go func() {
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

func (r *Registry) Stop() error {
	if r.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.server.Shutdown(ctx)
}

func (r *Registry) RecordGapDetected(source, symbol string, gapSize int64) {
	r.GapsDetected.WithLabelValues(source, symbol).Inc()
	r.GapSizes.WithLabelValues(source, symbol).Observe(float64(gapSize))
}

func (r *Registry) RecordBackfillRequest(source, symbol, outcome string) {
	r.BackfillRequests.WithLabelValues(source, symbol, outcome).Inc()
}

func (r *Registry) RecordMessageProcessed(component, messageType string) {
	r.MessagesProcessed.WithLabelValues(component, messageType).Inc()
}

func (r *Registry) RecordProcessingLatency(component, operation string, d time.Duration) {
	r.ProcessingLatency.WithLabelValues(component, operation).Observe(d.Seconds())
}

func (r *Registry) SetActiveSubs(source string, count int) {
	r.ActiveSubs.WithLabelValues(source).Set(float64(count))
}

func (r *Registry) SetCoordinatorStatus(source, symbol string, status int) {
	r.CoordinatorStatus.WithLabelValues(source, symbol).Set(float64(status))
}

func (r *Registry) RecordReconnect(source, symbol, reason string) {
	r.Reconnects.WithLabelValues(source, symbol, reason).Inc()
}

func (r *Registry) RecordStoreOperation(backend, operation, status string) {
	r.StoreOperations.WithLabelValues(backend, operation, status).Inc()
}
