package guard

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes guard counters when guard.metrics_addr is configured.
type Metrics struct {
	registry *prometheus.Registry

	pruneCycles  *prometheus.CounterVec
	breakerTrips prometheus.Counter
	checkpoints  prometheus.Counter
	bytesSaved   prometheus.Counter
	sessionBytes prometheus.Gauge
}

// NewMetrics builds and registers the guard metric set.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.pruneCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cozempic_guard_prune_cycles_total",
		Help: "Prune cycles executed, by tier and trigger.",
	}, []string{"prescription", "trigger"})
	m.breakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cozempic_guard_breaker_trips_total",
		Help: "Times the circuit breaker refused a prune.",
	})
	m.checkpoints = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cozempic_guard_checkpoints_total",
		Help: "Team checkpoints written.",
	})
	m.bytesSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cozempic_guard_bytes_saved_total",
		Help: "Bytes removed from the transcript by guard prunes.",
	})
	m.sessionBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cozempic_guard_session_bytes",
		Help: "Current transcript size in bytes.",
	})

	m.registry.MustRegister(m.pruneCycles, m.breakerTrips, m.checkpoints, m.bytesSaved, m.sessionBytes)
	return m
}

// ObservePrune records one completed prune cycle.
func (m *Metrics) ObservePrune(prescription, trigger string, saved int64) {
	if m == nil {
		return
	}
	m.pruneCycles.WithLabelValues(prescription, trigger).Inc()
	if saved > 0 {
		m.bytesSaved.Add(float64(saved))
	}
}

// ObserveBreakerTrip records a refused prune.
func (m *Metrics) ObserveBreakerTrip() {
	if m == nil {
		return
	}
	m.breakerTrips.Inc()
}

// ObserveCheckpoint records a checkpoint write.
func (m *Metrics) ObserveCheckpoint() {
	if m == nil {
		return
	}
	m.checkpoints.Inc()
}

// SetSessionBytes updates the size gauge.
func (m *Metrics) SetSessionBytes(n int64) {
	if m == nil {
		return
	}
	m.sessionBytes.Set(float64(n))
}

// Serve exposes /metrics until the context is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
