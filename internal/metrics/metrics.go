// Package metrics exposes Prometheus collectors for the blocker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jroosing/hydrablock/internal/interceptor"
)

// Metrics holds every collector. The zero value is not usable; create one
// with New.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	blocked         *prometheus.CounterVec
	messages        *prometheus.CounterVec
	messageDuration *prometheus.HistogramVec
	flushes         *prometheus.CounterVec
	rules           *prometheus.GaugeVec
	hidden          prometheus.Counter
	shim            *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hydrablock_requests_total",
				Help: "Requests evaluated by the interceptor, by decision",
			},
			[]string{"decision", "reason"},
		),
		blocked: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hydrablock_blocked_total",
				Help: "Blocked requests by stats category",
			},
			[]string{"category"},
		),
		messages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hydrablock_messages_total",
				Help: "Messages dispatched by action and result",
			},
			[]string{"action", "result"},
		),
		messageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hydrablock_message_duration_seconds",
				Help:    "Time spent handling a message",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"action"},
		),
		flushes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hydrablock_persist_flushes_total",
				Help: "Debounced persistence flushes by result",
			},
			[]string{"result"},
		),
		rules: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hydrablock_rules",
				Help: "Loaded rules by kind",
			},
			[]string{"kind"},
		),
		hidden: f.NewCounter(
			prometheus.CounterOpts{
				Name: "hydrablock_cosmetic_hidden_total",
				Help: "Elements hidden by cosmetic rules",
			},
		),
		shim: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hydrablock_shim_interceptions_total",
				Help: "Page primitives neutralised by the anti-detection shim",
			},
			[]string{"interceptor"},
		),
	}
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDecision records one interceptor decision.
func (m *Metrics) ObserveDecision(_ interceptor.Request, res interceptor.Result) {
	reason := res.Reason
	if reason == "" {
		reason = "none"
	}
	m.requests.WithLabelValues(res.Decision.String(), reason).Inc()
	if res.Blocked() {
		m.blocked.WithLabelValues(string(res.Category)).Inc()
	}
}

// ObserveMessage records one dispatched message.
func (m *Metrics) ObserveMessage(action string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.messages.WithLabelValues(action, result).Inc()
	m.messageDuration.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveFlush records a persistence flush.
func (m *Metrics) ObserveFlush(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.flushes.WithLabelValues(result).Inc()
}

// SetRules publishes rule counts by kind.
func (m *Metrics) SetRules(kind string, n int) {
	m.rules.WithLabelValues(kind).Set(float64(n))
}

// AddHidden counts hidden elements.
func (m *Metrics) AddHidden(n int) {
	if n > 0 {
		m.hidden.Add(float64(n))
	}
}

// ObserveShim counts one shim interception.
func (m *Metrics) ObserveShim(name string) {
	m.shim.WithLabelValues(name).Inc()
}
