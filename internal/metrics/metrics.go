// Package metrics exposes Prometheus counters for watch mode.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keyword_forwarder/internal/model"
)

var (
	MessagesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forwarder_messages_scanned_total",
		Help: "Messages scanned across all sources",
	})
	MessagesMatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forwarder_messages_matched_total",
		Help: "Messages that matched a keyword",
	})
	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forwarder_deliveries_total",
		Help: "Delivery outcomes by status",
	}, []string{"outcome"})
	SourceFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forwarder_source_failures_total",
		Help: "Sources that failed with an unrecoverable error",
	})
	CursorConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forwarder_cursor_conflicts_total",
		Help: "Cursor writes rejected by the optimistic check",
	})
	Runs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forwarder_runs_total",
		Help: "Completed batch runs",
	})
)

// MustRegister registers all counters with the given registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		MessagesScanned,
		MessagesMatched,
		Deliveries,
		SourceFailures,
		CursorConflicts,
		Runs,
	)
}

// Recorder feeds run summaries into the counters. It implements the
// orchestrator's Reporter interface so the core stays unaware of
// Prometheus.
type Recorder struct{}

// Report adds the summary's counters to the metrics.
func (Recorder) Report(_ context.Context, summary model.Summary) {
	t := summary.Totals()
	MessagesScanned.Add(float64(t.Scanned))
	MessagesMatched.Add(float64(t.Matched))
	Deliveries.WithLabelValues(string(model.DeliveryForwarded)).Add(float64(t.Forwarded))
	Deliveries.WithLabelValues(string(model.DeliveryCopied)).Add(float64(t.Copied))
	Deliveries.WithLabelValues(string(model.DeliveryFailed)).Add(float64(t.Failed))
	Deliveries.WithLabelValues(string(model.DeliverySkipped)).Add(float64(t.Skipped))
	SourceFailures.Add(float64(t.Fatal))
	for _, src := range summary.Sources {
		if src.CursorConflict {
			CursorConflicts.Inc()
		}
	}
	Runs.Inc()
}

// StartServer serves /metrics on addr until ctx is cancelled.
func StartServer(ctx context.Context, log *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server shutdown", "error", err)
		}
	}()

	go func() {
		log.Info("metrics server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
}
