// Package monitor tracks request metrics per registry: request counters,
// hit/miss/error counts and a rolling latency window. The monitor answers
// health and diagnostics queries directly and optionally feeds Prometheus
// collectors for scraping.
package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// WindowSize bounds the rolling latency window. The mean is computed over at
// most this many of the most recent samples, so memory stays constant and
// the average tracks recent behavior instead of the all-time mix.
const WindowSize = 100

// Metrics is a point-in-time snapshot of one registry's counters.
type Metrics struct {
	Name          string        `json:"name"`
	TotalItems    int           `json:"total_items"`
	TotalRequests int64         `json:"total_requests"`
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Errors        int64         `json:"errors"`
	AvgLatency    time.Duration `json:"avg_latency_ns"`
	LastUpdated   time.Time     `json:"last_updated"`
}

// registryMetrics is the live, mutable state behind one Metrics snapshot.
type registryMetrics struct {
	name          string
	totalItems    int
	totalRequests int64
	hits          int64
	misses        int64
	errors        int64
	window        []time.Duration
	avgLatency    time.Duration
	lastUpdated   time.Time
}

func (m *registryMetrics) snapshot() Metrics {
	return Metrics{
		Name:          m.name,
		TotalItems:    m.totalItems,
		TotalRequests: m.totalRequests,
		Hits:          m.hits,
		Misses:        m.misses,
		Errors:        m.errors,
		AvgLatency:    m.avgLatency,
		LastUpdated:   m.lastUpdated,
	}
}

// Monitor aggregates metrics for any number of registries. Registries are
// created on first touch; recording against a disabled monitor is a no-op,
// checked before any bookkeeping work or locking.
type Monitor struct {
	enabled    atomic.Bool
	mu         sync.RWMutex
	registries map[string]*registryMetrics
	collectors *collectors

	now func() time.Time // test hook
}

// Option customizes a monitor at construction time.
type Option func(*Monitor)

// WithPrometheus attaches Prometheus collectors under the given namespace.
// The collectors live in their own registry, exposed via Handler.
func WithPrometheus(namespace string) Option {
	return func(m *Monitor) { m.collectors = newCollectors(namespace) }
}

// New creates an enabled monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		registries: make(map[string]*registryMetrics),
		now:        time.Now,
	}
	m.enabled.Store(true)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enable turns recording on.
func (m *Monitor) Enable() { m.enabled.Store(true) }

// Disable turns recording off. Existing metrics remain readable.
func (m *Monitor) Disable() { m.enabled.Store(false) }

// IsEnabled reports whether recording is active.
func (m *Monitor) IsEnabled() bool { return m.enabled.Load() }

// RecordRequest records one request against an item of a registry. Success
// counts as a hit; failure counts as a miss and an error. The latency sample
// joins the rolling window and the mean is recomputed over the window.
func (m *Monitor) RecordRequest(registry, item string, success bool, latency time.Duration) {
	if !m.enabled.Load() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg := m.registryLocked(registry)
	reg.totalRequests++
	if success {
		reg.hits++
	} else {
		reg.misses++
		reg.errors++
	}

	reg.window = append(reg.window, latency)
	if len(reg.window) > WindowSize {
		reg.window = reg.window[len(reg.window)-WindowSize:]
	}
	var sum time.Duration
	for _, sample := range reg.window {
		sum += sample
	}
	reg.avgLatency = sum / time.Duration(len(reg.window))
	reg.lastUpdated = m.now()

	if m.collectors != nil {
		m.collectors.observeRequest(registry, item, success, latency)
	}
}

// RecordItemCount records how many items a registry currently holds.
func (m *Monitor) RecordItemCount(registry string, count int) {
	if !m.enabled.Load() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg := m.registryLocked(registry)
	reg.totalItems = count
	reg.lastUpdated = m.now()

	if m.collectors != nil {
		m.collectors.setItemCount(registry, count)
	}
}

// registryLocked returns the live state for a registry, creating it on first
// touch. Callers hold the write lock.
func (m *Monitor) registryLocked(name string) *registryMetrics {
	reg, ok := m.registries[name]
	if !ok {
		reg = &registryMetrics{name: name}
		m.registries[name] = reg
	}
	return reg
}

// GetMetrics returns the snapshot for one registry.
func (m *Monitor) GetMetrics(registry string) (Metrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg, ok := m.registries[registry]
	if !ok {
		return Metrics{}, false
	}
	return reg.snapshot(), true
}

// AllMetrics returns snapshots for every tracked registry, keyed by name.
func (m *Monitor) AllMetrics() map[string]Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Metrics, len(m.registries))
	for name, reg := range m.registries {
		out[name] = reg.snapshot()
	}
	return out
}

// ResetMetrics zeroes the counters for one registry. Unknown names are a
// no-op.
func (m *Monitor) ResetMetrics(registry string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg, ok := m.registries[registry]; ok {
		m.registries[registry] = &registryMetrics{name: reg.name, totalItems: reg.totalItems}
	}
}

// ResetAll zeroes the counters for every registry.
func (m *Monitor) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, reg := range m.registries {
		m.registries[name] = &registryMetrics{name: name, totalItems: reg.totalItems}
	}
}

// RegistryReport is the derived view of one registry for operators.
type RegistryReport struct {
	Name          string  `json:"name"`
	TotalItems    int     `json:"total_items"`
	TotalRequests int64   `json:"total_requests"`
	HitRate       float64 `json:"hit_rate_percent"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	Errors        int64   `json:"errors"`
}

// Report aggregates the derived views across registries.
type Report struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Enabled     bool             `json:"enabled"`
	Registries  []RegistryReport `json:"registries"`
}

// PerformanceReport derives hit rates and mean latencies for every tracked
// registry, sorted by name. Hit rate divides by max(requests, 1) so an idle
// registry reports 0% instead of NaN.
func (m *Monitor) PerformanceReport() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := Report{
		GeneratedAt: m.now(),
		Enabled:     m.enabled.Load(),
		Registries:  make([]RegistryReport, 0, len(m.registries)),
	}
	for _, reg := range m.registries {
		requests := reg.totalRequests
		if requests < 1 {
			requests = 1
		}
		report.Registries = append(report.Registries, RegistryReport{
			Name:          reg.name,
			TotalItems:    reg.totalItems,
			TotalRequests: reg.totalRequests,
			HitRate:       float64(reg.hits) / float64(requests) * 100,
			AvgLatencyMS:  float64(reg.avgLatency.Nanoseconds()) / 1e6,
			Errors:        reg.errors,
		})
	}
	sort.Slice(report.Registries, func(i, j int) bool {
		return report.Registries[i].Name < report.Registries[j].Name
	})
	return report
}
