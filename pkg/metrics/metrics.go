// Package metrics exposes the prometheus collectors of the discovery layer.
// A nil *Metrics is valid and records nothing, so components take it as an
// optional dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pathfinder"

// Result labels.
const (
	ResultOK    = "ok"
	ResultEmpty = "empty"
	ResultError = "error"
)

// Metrics groups the collectors. Create it with New.
type Metrics struct {
	registry *prometheus.Registry

	poolChannels  *prometheus.GaugeVec
	chooseTotal   *prometheus.CounterVec
	watchEvents   *prometheus.CounterVec
	registrations *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry, which
// also carries the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		poolChannels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_channels",
			Help:      "Number of endpoint channels currently pooled per service.",
		}, []string{"service"}),
		chooseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "choose_total",
			Help:      "Channel selections per service and result.",
		}, []string{"service", "result"}),
		watchEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_events_total",
			Help:      "Watch events received by type.",
		}, []string{"type"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Instance registrations by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.poolChannels,
		m.chooseTotal,
		m.watchEvents,
		m.registrations,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SetPoolChannels(service string, n int) {
	if m == nil {
		return
	}
	m.poolChannels.WithLabelValues(service).Set(float64(n))
}

func (m *Metrics) ObserveChoose(service, result string) {
	if m == nil {
		return
	}
	m.chooseTotal.WithLabelValues(service, result).Inc()
}

func (m *Metrics) ObserveWatchEvent(typ string) {
	if m == nil {
		return
	}
	m.watchEvents.WithLabelValues(typ).Inc()
}

func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}
