package ui

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks harness activity for long-running soak sessions.
type Metrics struct {
	registry *prometheus.Registry

	// Time manipulation
	timeJumps *prometheus.CounterVec

	// API traffic against the containers
	apiRequests *prometheus.CounterVec

	// Container liveness
	containerState *prometheus.GaugeVec
}

// NewMetrics creates and registers the harness metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		timeJumps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "haharness_time_jumps_total",
				Help: "Total number of applied time changes by operation",
			},
			[]string{"op"},
		),
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "haharness_api_requests_total",
				Help: "Total number of API requests by client and status code",
			},
			[]string{"client", "code"},
		),
		containerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "haharness_container_state",
				Help: "Container state by service (1=running and healthy, 0=down)",
			},
			[]string{"service"},
		),
	}

	m.registry.MustRegister(m.timeJumps, m.apiRequests, m.containerState)
	return m
}

// Registry exposes the backing registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTimeJump counts one applied time change, e.g. op="fast_forward".
func (m *Metrics) RecordTimeJump(op string) {
	m.timeJumps.WithLabelValues(op).Inc()
}

// RecordAPIRequest counts one API response observed by a client.
func (m *Metrics) RecordAPIRequest(client string, status int) {
	m.apiRequests.WithLabelValues(client, strconv.Itoa(status)).Inc()
}

// SetContainerState records whether a service's container is up.
func (m *Metrics) SetContainerState(service string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	m.containerState.WithLabelValues(service).Set(v)
}

// RequestObserver adapts the API request counter to the per-client observer
// callback the HTTP clients accept.
func (m *Metrics) RequestObserver(client string) func(status int) {
	return func(status int) {
		m.RecordAPIRequest(client, status)
	}
}
