// Package metrics exposes scanboard's Prometheus instruments.
//
// Everything is registered on a private registry so tests and embedding
// programs do not collide with the global default registry.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scanboard"

var (
	// Registry holds every scanboard metric plus the Go/process collectors.
	Registry = prometheus.NewRegistry()

	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Backend API requests by operation and outcome.",
	}, []string{"op", "outcome"})

	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Backend API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	MonitorPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "polls_total",
		Help:      "Scan monitor polls by outcome.",
	}, []string{"outcome"})

	ActiveScans = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "active_scans",
		Help:      "Active scans reported by the last successful poll.",
	})

	Mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "operator",
		Name:      "mutations_total",
		Help:      "Operator mutations (triage, delete, launch) by kind and outcome.",
	}, []string{"kind", "outcome"})

	StaleResponses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "findings",
		Name:      "stale_responses_total",
		Help:      "Mutation responses discarded because a newer one was already applied.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		APIRequests,
		APIRequestDuration,
		MonitorPolls,
		ActiveScans,
		Mutations,
		StaleResponses,
	)
}

// Outcome maps an error to the "outcome" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr is a no-op.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
