// Package metrics holds the Prometheus collectors shared by the renderer
// components.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "vango_web").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for batch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "vango_web",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the renderer collectors.
type Metrics struct {
	batchesTotal    prometheus.Counter
	editsTotal      prometheus.Counter
	batchDuration   prometheus.Histogram
	desyncsTotal    *prometheus.CounterVec
	liveNodes       prometheus.Gauge
	eventsTotal     *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	nativeListeners prometheus.Gauge
	evalTotal       *prometheus.CounterVec
	evalLate        prometheus.Counter
	reloadMessages  *prometheus.CounterVec
	reloadConnects  *prometheus.CounterVec
	filesIngested   *prometheus.CounterVec
}

// New registers the collectors.
//
// Metrics collected (default namespace):
//   - vango_web_batches_total: edit batches applied
//   - vango_web_edits_total: edit operations applied
//   - vango_web_batch_duration_seconds: batch application time
//   - vango_web_desyncs_total: failed batches by reason
//   - vango_web_live_nodes: registered nodes, excluding the root
//   - vango_web_events_total: events forwarded to the pipeline by category
//   - vango_web_events_dropped_total: native events with no interested node
//   - vango_web_native_listeners: delegated root listeners attached
//   - vango_web_eval_requests_total: eval requests by outcome
//   - vango_web_eval_late_responses_total: responses for abandoned requests
//   - vango_web_reload_messages_total: hot-reload messages by kind and outcome
//   - vango_web_reload_connects_total: hot-reload dial attempts by outcome
//   - vango_web_files_ingested_total: file handles stored by outcome
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		batchesTotal: counter("batches_total", "Total number of edit batches applied"),
		editsTotal:   counter("edits_total", "Total number of edit operations applied"),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "batch_duration_seconds",
			Help:        "Edit batch application duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
		desyncsTotal:    counterVec("desyncs_total", "Total number of batches that desynchronized the tree", "reason"),
		liveNodes:       gauge("live_nodes", "Number of registered nodes excluding the root"),
		eventsTotal:     counterVec("events_total", "Total number of events forwarded to the pipeline", "category"),
		eventsDropped:   counterVec("events_dropped_total", "Native events that resolved to no interested node", "category"),
		nativeListeners: gauge("native_listeners", "Number of delegated listeners attached at the root"),
		evalTotal:       counterVec("eval_requests_total", "Total number of eval requests", "outcome"),
		evalLate:        counter("eval_late_responses_total", "Eval responses that arrived after the request was abandoned"),
		reloadMessages:  counterVec("reload_messages_total", "Hot-reload messages received", "kind", "outcome"),
		reloadConnects:  counterVec("reload_connects_total", "Hot-reload connection attempts", "outcome"),
		filesIngested:   counterVec("files_ingested_total", "File handles handed to the ingest store", "outcome"),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveBatch records a successfully applied batch.
func (m *Metrics) ObserveBatch(edits int, d time.Duration) {
	if m == nil {
		return
	}
	m.batchesTotal.Inc()
	m.editsTotal.Add(float64(edits))
	m.batchDuration.Observe(d.Seconds())
}

// Desync records a batch that stopped on an error.
func (m *Metrics) Desync(reason string) {
	if m == nil {
		return
	}
	m.desyncsTotal.WithLabelValues(reason).Inc()
}

// SetLiveNodes records the registry size.
func (m *Metrics) SetLiveNodes(n int) {
	if m == nil {
		return
	}
	m.liveNodes.Set(float64(n))
}

// EventDispatched records an event forwarded to the pipeline.
func (m *Metrics) EventDispatched(category string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(category).Inc()
}

// EventDropped records a native event that matched no interested node.
func (m *Metrics) EventDropped(category string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(category).Inc()
}

// ListenerAttached records a new delegated root listener.
func (m *Metrics) ListenerAttached() {
	if m == nil {
		return
	}
	m.nativeListeners.Inc()
}

// Eval records a finished eval request.
func (m *Metrics) Eval(outcome string) {
	if m == nil {
		return
	}
	m.evalTotal.WithLabelValues(outcome).Inc()
}

// EvalLate records a response for a request nobody waits on anymore.
func (m *Metrics) EvalLate() {
	if m == nil {
		return
	}
	m.evalLate.Inc()
}

// ReloadMessage records a hot-reload message.
func (m *Metrics) ReloadMessage(kind string, err error) {
	if m == nil {
		return
	}
	m.reloadMessages.WithLabelValues(kind, outcome(err)).Inc()
}

// ReloadConnect records a hot-reload dial attempt.
func (m *Metrics) ReloadConnect(err error) {
	if m == nil {
		return
	}
	m.reloadConnects.WithLabelValues(outcome(err)).Inc()
}

// FileIngested records a file handed to the ingest store.
func (m *Metrics) FileIngested(err error) {
	if m == nil {
		return
	}
	m.filesIngested.WithLabelValues(outcome(err)).Inc()
}
