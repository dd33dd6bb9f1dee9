package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Region message results
const (
	ResultAck      = "ack"
	ResultSkipped  = "skipped"
	ResultRejected = "rejected"
)

// Metrics holds all Prometheus metrics of a session
type Metrics struct {
	registry *prometheus.Registry

	// Module metrics
	ModulesLoaded *prometheus.CounterVec
	ModulesFailed *prometheus.CounterVec

	// Barrier metrics
	ProfileNotifications *prometheus.CounterVec
	BarrierReleases      *prometheus.CounterVec

	// Injection metrics
	RegionMessages  *prometheus.CounterVec
	InvalidMessages *prometheus.CounterVec

	// Workflow metrics
	WorkflowsActive  prometheus.Gauge
	WorkflowDuration *prometheus.HistogramVec
	WorkflowExits    *prometheus.CounterVec

	// Transport metrics
	AcceptedConnections *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for the status API
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the status API
type Snapshot struct {
	ModulesLoaded   int64   `json:"modules_loaded"`
	ModulesFailed   int64   `json:"modules_failed"`
	ActiveWorkflows int64   `json:"active_workflows"`
	RegionMessages  int64   `json:"region_messages"`
	InvalidMessages int64   `json:"invalid_messages"`
	Uptime          float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		ModulesLoaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptyst_modules_loaded_total",
				Help: "Total number of modules loaded",
			},
			[]string{"module"},
		),
		ModulesFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptyst_modules_failed_total",
				Help: "Total number of module failures by lifecycle stage",
			},
			[]string{"module", "stage"},
		),

		ProfileNotifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptyst_profile_notifications_total",
				Help: "Total number of profiling readiness notifications",
			},
			[]string{"entity"},
		),
		BarrierReleases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptyst_barrier_releases_total",
				Help: "Total number of workflow start releases",
			},
			[]string{"entity", "gated"},
		),

		RegionMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptyst_region_messages_total",
				Help: "Total number of region messages dispatched to modules",
			},
			[]string{"state", "result"},
		),
		InvalidMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptyst_invalid_messages_total",
				Help: "Total number of malformed workflow messages",
			},
			[]string{"entity"},
		),

		WorkflowsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adaptyst_workflows_active",
				Help: "Number of running workflows",
			},
		),
		WorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adaptyst_workflow_duration_seconds",
				Help:    "Workflow wall-clock duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 1800},
			},
			[]string{"entity"},
		),
		WorkflowExits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptyst_workflow_exits_total",
				Help: "Total number of finished workflows by exit code",
			},
			[]string{"entity", "code"},
		),

		AcceptedConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptyst_accepted_connections_total",
				Help: "Total number of accepted transport connections",
			},
			[]string{"transport"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adaptyst_uptime_seconds",
				Help: "Coordinator uptime in seconds",
			},
		),
	}

	return m
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the exposition handler for the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordModuleLoaded records a module that loaded and initialised
func (m *Metrics) RecordModuleLoaded(module string) {
	m.ModulesLoaded.WithLabelValues(module).Inc()
	m.mu.Lock()
	m.snapshot.ModulesLoaded++
	m.mu.Unlock()
}

// RecordModuleFailed records a module failure at the given stage
func (m *Metrics) RecordModuleFailed(module, stage string) {
	m.ModulesFailed.WithLabelValues(module, stage).Inc()
	m.mu.Lock()
	m.snapshot.ModulesFailed++
	m.mu.Unlock()
}

// RecordProfileNotify records a readiness notification
func (m *Metrics) RecordProfileNotify(entity string) {
	m.ProfileNotifications.WithLabelValues(entity).Inc()
}

// RecordBarrierRelease records a workflow being let go
func (m *Metrics) RecordBarrierRelease(entity string, gated bool) {
	label := "false"
	if gated {
		label = "true"
	}
	m.BarrierReleases.WithLabelValues(entity, label).Inc()
}

// RecordRegionMessage records one region dispatch
func (m *Metrics) RecordRegionMessage(state, result string) {
	m.RegionMessages.WithLabelValues(state, result).Inc()
	m.mu.Lock()
	m.snapshot.RegionMessages++
	m.mu.Unlock()
}

// RecordInvalidMessage records a message the listener could not parse
func (m *Metrics) RecordInvalidMessage(entity string) {
	m.InvalidMessages.WithLabelValues(entity).Inc()
	m.mu.Lock()
	m.snapshot.InvalidMessages++
	m.mu.Unlock()
}

// WorkflowStarted marks a workflow as running
func (m *Metrics) WorkflowStarted() {
	m.WorkflowsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveWorkflows++
	m.mu.Unlock()
}

// WorkflowFinished records a finished workflow
func (m *Metrics) WorkflowFinished(entity, code string, duration time.Duration) {
	m.WorkflowsActive.Dec()
	m.WorkflowDuration.WithLabelValues(entity).Observe(duration.Seconds())
	m.WorkflowExits.WithLabelValues(entity, code).Inc()
	m.mu.Lock()
	m.snapshot.ActiveWorkflows--
	m.mu.Unlock()
}

// RecordAccepted records an accepted connection
func (m *Metrics) RecordAccepted(transport string) {
	m.AcceptedConnections.WithLabelValues(transport).Inc()
}

// Snapshot returns the current values
func (m *Metrics) Snapshot() Snapshot {
	uptime := time.Since(m.startTime).Seconds()
	m.Uptime.Set(uptime)

	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.Uptime = uptime
	return s
}
