// Prometheus collectors for netsweep. The in-memory registry backs the
// /status snapshot; these collectors back the /metrics exposition endpoint
// served in watch mode.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all netsweep metrics
	namespace = "netsweep"

	// Subsystems
	subsystemRun    = "run"
	subsystemPhase  = "phase"
	subsystemDevice = "device"
	subsystemHTTP   = "http"
	subsystemSystem = "system"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Run metrics
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	activeRuns  prometheus.Gauge

	// Phase metrics
	phaseTotal    *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	phaseErrors   *prometheus.CounterVec
	probesTotal   *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec

	// Device metrics
	devicesFound *prometheus.CounterVec
	snmpAuth     *prometheus.CounterVec
	candidates   prometheus.Counter

	// HTTP metrics (status server)
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initRunMetrics()
	pm.initPhaseMetrics()
	pm.initDeviceMetrics()
	pm.initHTTPMetrics()
	pm.initSystemMetrics()

	pm.registerMetrics()

	// Standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

// initRunMetrics initializes run-level metrics
func (pm *PrometheusMetrics) initRunMetrics() {
	pm.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRun,
			Name:      "total",
			Help:      "Total number of scan runs by final status",
		},
		[]string{"status"},
	)

	pm.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemRun,
			Name:      "duration_seconds",
			Help:      "Duration of complete scan runs in seconds",
			Buckets:   []float64{1.0, 5.0, 15.0, 30.0, 60.0, 120.0, 300.0, 600.0, 1800.0},
		},
	)

	pm.activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemRun,
			Name:      "active",
			Help:      "Number of currently active scan runs",
		},
	)
}

// initPhaseMetrics initializes per-phase metrics
func (pm *PrometheusMetrics) initPhaseMetrics() {
	pm.phaseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPhase,
			Name:      "total",
			Help:      "Total number of phase executions by phase and status",
		},
		[]string{"phase", "status"},
	)

	pm.phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemPhase,
			Name:      "duration_seconds",
			Help:      "Duration of phase executions in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0},
		},
		[]string{"phase"},
	)

	pm.phaseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPhase,
			Name:      "errors_total",
			Help:      "Total number of phase errors by phase and error type",
		},
		[]string{"phase", "error_type"},
	)

	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPhase,
			Name:      "probes_total",
			Help:      "Total number of per-target probes by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	pm.fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPhase,
			Name:      "strategy_fallbacks_total",
			Help:      "Total number of strategy fallbacks by phase and strategy abandoned",
		},
		[]string{"phase", "strategy"},
	)
}

// initDeviceMetrics initializes device-level metrics
func (pm *PrometheusMetrics) initDeviceMetrics() {
	pm.devicesFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDevice,
			Name:      "found_total",
			Help:      "Total number of devices discovered by classified type",
		},
		[]string{"device_type"},
	)

	pm.snmpAuth = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDevice,
			Name:      "snmp_auth_attempts_total",
			Help:      "Total number of SNMP credential attempts by result",
		},
		[]string{"status"},
	)

	pm.candidates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDevice,
			Name:      "snmp_candidates_total",
			Help:      "Total number of targets flagged as SNMP candidates",
		},
	)
}

// initHTTPMetrics initializes status server metrics
func (pm *PrometheusMetrics) initHTTPMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemHTTP,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemHTTP,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method", "path"},
	)
}

// initSystemMetrics initializes system-related metrics
func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(pm.runsTotal)
	pm.registry.MustRegister(pm.runDuration)
	pm.registry.MustRegister(pm.activeRuns)

	pm.registry.MustRegister(pm.phaseTotal)
	pm.registry.MustRegister(pm.phaseDuration)
	pm.registry.MustRegister(pm.phaseErrors)
	pm.registry.MustRegister(pm.probesTotal)
	pm.registry.MustRegister(pm.fallbacks)

	pm.registry.MustRegister(pm.devicesFound)
	pm.registry.MustRegister(pm.snmpAuth)
	pm.registry.MustRegister(pm.candidates)

	pm.registry.MustRegister(pm.httpRequests)
	pm.registry.MustRegister(pm.httpDuration)

	pm.registry.MustRegister(pm.memoryUsage)
	pm.registry.MustRegister(pm.goroutines)
	pm.registry.MustRegister(pm.uptime)
}

// GetRegistry returns the Prometheus registry for the HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Run Metrics Methods

// IncrementRunsTotal increments the run counter
func (pm *PrometheusMetrics) IncrementRunsTotal(status string) {
	pm.runsTotal.WithLabelValues(status).Inc()
}

// RecordRunDuration records a complete run duration
func (pm *PrometheusMetrics) RecordRunDuration(duration time.Duration) {
	pm.runDuration.Observe(duration.Seconds())
}

// SetActiveRuns sets the number of active runs
func (pm *PrometheusMetrics) SetActiveRuns(count int) {
	pm.activeRuns.Set(float64(count))
}

// Phase Metrics Methods

// IncrementPhaseTotal increments the phase counter
func (pm *PrometheusMetrics) IncrementPhaseTotal(phase, status string) {
	pm.phaseTotal.WithLabelValues(phase, status).Inc()
}

// RecordPhaseDuration records a phase duration
func (pm *PrometheusMetrics) RecordPhaseDuration(phase string, duration time.Duration) {
	pm.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// IncrementPhaseErrors increments the phase error counter
func (pm *PrometheusMetrics) IncrementPhaseErrors(phase, errorType string) {
	pm.phaseErrors.WithLabelValues(phase, errorType).Inc()
}

// IncrementProbes adds probe outcomes for a phase
func (pm *PrometheusMetrics) IncrementProbes(phase, outcome string, count int) {
	pm.probesTotal.WithLabelValues(phase, outcome).Add(float64(count))
}

// IncrementFallbacks counts a strategy fallback
func (pm *PrometheusMetrics) IncrementFallbacks(phase, strategy string) {
	pm.fallbacks.WithLabelValues(phase, strategy).Inc()
}

// Device Metrics Methods

// IncrementDevicesFound adds discovered devices by type
func (pm *PrometheusMetrics) IncrementDevicesFound(deviceType string, count int) {
	pm.devicesFound.WithLabelValues(deviceType).Add(float64(count))
}

// IncrementSnmpAuth counts an SNMP credential attempt
func (pm *PrometheusMetrics) IncrementSnmpAuth(status string) {
	pm.snmpAuth.WithLabelValues(status).Inc()
}

// IncrementCandidates adds flagged SNMP candidates
func (pm *PrometheusMetrics) IncrementCandidates(count int) {
	pm.candidates.Add(float64(count))
}

// HTTP Metrics Methods

// IncrementHTTPRequests increments the HTTP request counter
func (pm *PrometheusMetrics) IncrementHTTPRequests(method, path, status string) {
	pm.httpRequests.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request duration
func (pm *PrometheusMetrics) RecordHTTPDuration(method, path string, duration time.Duration) {
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// System Metrics Methods

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memoryUsage.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())

	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates starts a goroutine that periodically updates system metrics
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
