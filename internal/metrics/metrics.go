package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "mongoconn"
	subsystem = "connection"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics struct manages all Prometheus metrics.
// Recorder methods are no-ops on a nil *Metrics.
type Metrics struct {
	// Node metrics.
	nodeConnects        *prometheus.CounterVec
	nodeConnectDuration *prometheus.HistogramVec
	replicaExclusions   *prometheus.CounterVec
	activeReplicas      prometheus.Gauge

	// Database metrics.
	authentications *prometheus.CounterVec

	// Health metrics.
	healthChecks *prometheus.CounterVec
	topologyUp   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance on the default registry.
func NewMetrics() *Metrics {
	m := &Metrics{gatherer: prometheus.DefaultGatherer}
	m.initMetricsWithRegistry(prometheus.DefaultRegisterer)
	return m
}

// NewMetricsWithRegistry creates a new Metrics instance (for testing).
func NewMetricsWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{gatherer: registry}
	m.initMetricsWithRegistry(registry)
	return m
}

// initMetricsWithRegistry initializes metrics in the specified registry.
func (m *Metrics) initMetricsWithRegistry(registry prometheus.Registerer) {
	m.nodeConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "node_connects_total",
			Help:      "Total number of node connection attempts",
		},
		[]string{"role", "result"},
	)

	m.nodeConnectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "node_connect_duration_seconds",
			Help:      "Time taken to connect to and ping a node (seconds)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role"},
	)

	m.replicaExclusions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "replica_exclusions_total",
			Help:      "Total number of replicas excluded because they could not be reached",
		},
		[]string{"address"},
	)

	m.activeReplicas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_replicas",
			Help:      "Number of replicas in the current topology",
		},
	)

	m.authentications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "authentications_total",
			Help:      "Total number of database authentication attempts",
		},
		[]string{"database", "result"},
	)

	m.healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "health_checks_total",
			Help:      "Total number of topology health checks",
		},
		[]string{"result"},
	)

	m.topologyUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "topology_up",
			Help:      "1 if the last health check succeeded, 0 otherwise",
		},
	)

	// Register all metrics in the specified registry.
	registry.MustRegister(
		m.nodeConnects,
		m.nodeConnectDuration,
		m.replicaExclusions,
		m.activeReplicas,
		m.authentications,
		m.healthChecks,
		m.topologyUp,
	)
}

// StartMetricsServer serves /metrics on addr until ctx is cancelled.
func (m *Metrics) StartMetricsServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("failed to start metrics server: %w", err)
		}
	}()

	// Wait for context cancellation or server error.
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown metrics server: %w", err)
		}
		return nil
	case err := <-errChan:
		return err
	}
}

// Handler returns the metrics HTTP handler for the registry the metrics live in.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveNodeConnect records one node connection attempt.
func (m *Metrics) ObserveNodeConnect(role string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.nodeConnects.WithLabelValues(role, result).Inc()
	m.nodeConnectDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// IncrementReplicaExclusions counts a replica left out of the topology.
func (m *Metrics) IncrementReplicaExclusions(address string) {
	if m == nil {
		return
	}
	m.replicaExclusions.WithLabelValues(address).Inc()
}

// SetActiveReplicas sets the number of replicas in the current topology.
func (m *Metrics) SetActiveReplicas(count int) {
	if m == nil {
		return
	}
	m.activeReplicas.Set(float64(count))
}

// ObserveAuthentication records one authentication attempt.
func (m *Metrics) ObserveAuthentication(database string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.authentications.WithLabelValues(database, result).Inc()
}

// ObserveHealthCheck records one health check and updates topology_up.
func (m *Metrics) ObserveHealthCheck(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.healthChecks.WithLabelValues(ResultFailure).Inc()
		m.topologyUp.Set(0)
		return
	}
	m.healthChecks.WithLabelValues(ResultSuccess).Inc()
	m.topologyUp.Set(1)
}
