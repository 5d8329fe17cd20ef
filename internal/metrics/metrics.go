// Package metrics provides monitoring and metrics collection for netsweep.
// It supports counters, gauges, and histograms with label support for tracking
// scan pipeline performance and operational metrics.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// MetricType represents the type of metric.
type MetricType string

const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
)

// Labels represents key-value pairs for metric labels.
type Labels map[string]string

// Metric represents a single metric with its metadata.
type Metric struct {
	Name      string
	Type      MetricType
	Value     float64
	Labels    Labels
	Timestamp time.Time
}

// Registry holds all metrics and provides collection functionality.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	enabled bool
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]*Metric),
		enabled: true,
	}
}

// SetEnabled enables or disables metrics collection.
func (r *Registry) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// IsEnabled returns whether metrics collection is enabled.
func (r *Registry) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Counter increments a counter metric.
func (r *Registry) Counter(name string, labels Labels) {
	if !r.IsEnabled() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := makeKey(name, labels)
	if metric, exists := r.metrics[key]; exists {
		metric.Value++
		metric.Timestamp = time.Now()
	} else {
		r.metrics[key] = &Metric{
			Name:      name,
			Type:      TypeCounter,
			Value:     1,
			Labels:    labels,
			Timestamp: time.Now(),
		}
	}
}

// Gauge sets a gauge metric value.
func (r *Registry) Gauge(name string, value float64, labels Labels) {
	if !r.IsEnabled() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := makeKey(name, labels)
	r.metrics[key] = &Metric{
		Name:      name,
		Type:      TypeGauge,
		Value:     value,
		Labels:    labels,
		Timestamp: time.Now(),
	}
}

// Histogram records a value in a histogram metric. This registry keeps the
// last observation only; full bucketing lives in the Prometheus collectors.
func (r *Registry) Histogram(name string, value float64, labels Labels) {
	if !r.IsEnabled() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := makeKey(name, labels)
	if metric, exists := r.metrics[key]; exists {
		metric.Value = value
		metric.Timestamp = time.Now()
	} else {
		r.metrics[key] = &Metric{
			Name:      name,
			Type:      TypeHistogram,
			Value:     value,
			Labels:    labels,
			Timestamp: time.Now(),
		}
	}
}

// GetMetrics returns a snapshot of all current metrics.
func (r *Registry) GetMetrics() map[string]*Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Metric)
	for key, metric := range r.metrics {
		result[key] = &Metric{
			Name:      metric.Name,
			Type:      metric.Type,
			Value:     metric.Value,
			Labels:    copyLabels(metric.Labels),
			Timestamp: metric.Timestamp,
		}
	}
	return result
}

// Reset clears all metrics.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = make(map[string]*Metric)
}

// makeKey creates a stable key for a metric from its name and sorted labels.
func makeKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := name
	for _, k := range keys {
		key += ":" + k + "=" + labels[k]
	}
	return key
}

// copyLabels creates a copy of labels map.
func copyLabels(labels Labels) Labels {
	if labels == nil {
		return nil
	}
	result := make(Labels)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

// Global registry instance.
var defaultRegistry = NewRegistry()

// SetDefault sets the default metrics registry.
func SetDefault(registry *Registry) {
	defaultRegistry = registry
}

// Default returns the default metrics registry.
func Default() *Registry {
	return defaultRegistry
}

// SetEnabled enables or disables metrics collection on the default registry.
func SetEnabled(enabled bool) {
	defaultRegistry.SetEnabled(enabled)
}

// Counter increments a counter metric on the default registry.
func Counter(name string, labels Labels) {
	defaultRegistry.Counter(name, labels)
}

// Gauge sets a gauge metric on the default registry.
func Gauge(name string, value float64, labels Labels) {
	defaultRegistry.Gauge(name, value, labels)
}

// Histogram records a histogram value on the default registry.
func Histogram(name string, value float64, labels Labels) {
	defaultRegistry.Histogram(name, value, labels)
}

// GetMetrics returns all metrics from the default registry.
func GetMetrics() map[string]*Metric {
	return defaultRegistry.GetMetrics()
}

// Reset clears all metrics from the default registry.
func Reset() {
	defaultRegistry.Reset()
}

// Timer provides a simple way to measure execution time.
type Timer struct {
	start  time.Time
	name   string
	labels Labels
}

// NewTimer creates a new timer for measuring execution time.
func NewTimer(name string, labels Labels) *Timer {
	return &Timer{
		start:  time.Now(),
		name:   name,
		labels: labels,
	}
}

// Stop stops the timer and records the duration as a histogram.
func (t *Timer) Stop() {
	duration := time.Since(t.start)
	Histogram(t.name, duration.Seconds(), t.labels)
}

// Predefined metric names for common operations.
const (
	// Run metrics.
	MetricRunDuration = "run_duration_seconds"
	MetricRunTotal    = "run_total"

	// Phase metrics.
	MetricPhaseDuration = "phase_duration_seconds"
	MetricPhaseTotal    = "phase_total"
	MetricPhaseErrors   = "phase_errors_total"
	MetricProbesTotal   = "probes_total"
	MetricProbeRetries  = "probe_retries_total"
	MetricFallbacks     = "strategy_fallbacks_total"

	// Device metrics.
	MetricDevicesFound   = "devices_found_total"
	MetricSnmpAuth       = "snmp_auth_attempts_total"
	MetricHostsResolved  = "hostnames_resolved_total"
	MetricCandidatePorts = "snmp_candidates_total"

	// History store metrics.
	MetricStoreQueries  = "store_queries_total"
	MetricStoreErrors   = "store_errors_total"
	MetricStoreDuration = "store_query_duration_seconds"
)

// Common label keys.
const (
	LabelPhase      = "phase"
	LabelStrategy   = "strategy"
	LabelStatus     = "status"
	LabelOutcome    = "outcome"
	LabelDeviceType = "device_type"
	LabelOperation  = "operation"
	LabelError      = "error"
	LabelComponent  = "component"
)

// Helper functions for common metrics

// RecordPhaseDuration records the duration of a scan phase.
func RecordPhaseDuration(phase string, duration time.Duration) {
	Histogram(MetricPhaseDuration, duration.Seconds(), Labels{
		LabelPhase: phase,
	})
}

// IncrementPhaseTotal increments the per-phase completion counter.
func IncrementPhaseTotal(phase, status string) {
	Counter(MetricPhaseTotal, Labels{
		LabelPhase:  phase,
		LabelStatus: status,
	})
}

// IncrementPhaseErrors increments the per-phase error counter.
func IncrementPhaseErrors(phase, errorType string) {
	Counter(MetricPhaseErrors, Labels{
		LabelPhase: phase,
		LabelError: errorType,
	})
}

// IncrementProbes counts one probe outcome (responsive or silent).
func IncrementProbes(phase, outcome string) {
	Counter(MetricProbesTotal, Labels{
		LabelPhase:   phase,
		LabelOutcome: outcome,
	})
}

// IncrementFallbacks counts a strategy fallback inside a phase.
func IncrementFallbacks(phase, strategy string) {
	Counter(MetricFallbacks, Labels{
		LabelPhase:    phase,
		LabelStrategy: strategy,
	})
}

// IncrementDevicesFound counts classified devices by type.
func IncrementDevicesFound(deviceType string, count int) {
	for i := 0; i < count; i++ {
		Counter(MetricDevicesFound, Labels{
			LabelDeviceType: deviceType,
		})
	}
}

// IncrementSnmpAuth counts one SNMP credential attempt.
func IncrementSnmpAuth(status string) {
	Counter(MetricSnmpAuth, Labels{
		LabelStatus: status,
	})
}

// RecordStoreQuery records history store query metrics.
func RecordStoreQuery(operation string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	Counter(MetricStoreQueries, Labels{
		LabelOperation: operation,
		LabelStatus:    status,
	})

	Histogram(MetricStoreDuration, duration.Seconds(), Labels{
		LabelOperation: operation,
	})
}
