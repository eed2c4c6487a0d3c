// Package metrics holds the Prometheus collectors exported by a CodeVault
// server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codevault"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeLimited = "limited"
)

// Recorder is what the vault reports to. Nil-safe implementations are not
// required; use Nop when metrics are disabled.
type Recorder interface {
	Login(outcome string)
	Registration(role string)
	TokenVerification(outcome string)
	EventPublished(outcome string)
	SetUsers(n int64)
}

// Metrics is a Recorder backed by Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	logins        *prometheus.CounterVec
	registrations *prometheus.CounterVec
	verifications *prometheus.CounterVec
	events        *prometheus.CounterVec
	users         prometheus.Gauge
	httpDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry that
// also carries the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Successful registrations by assigned role.",
		}, []string{"role"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verifications_total",
			Help:      "Bearer token verifications by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events handed to the publisher by outcome.",
		}, []string{"outcome"}),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Number of registered users.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins,
		m.registrations,
		m.verifications,
		m.events,
		m.users,
		m.httpDuration,
	)

	return m
}

func (m *Metrics) Login(outcome string)             { m.logins.WithLabelValues(outcome).Inc() }
func (m *Metrics) Registration(role string)         { m.registrations.WithLabelValues(role).Inc() }
func (m *Metrics) TokenVerification(outcome string) { m.verifications.WithLabelValues(outcome).Inc() }
func (m *Metrics) EventPublished(outcome string)    { m.events.WithLabelValues(outcome).Inc() }
func (m *Metrics) SetUsers(n int64)                 { m.users.Set(float64(n)) }

// ObserveHTTP records one request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

type nop struct{}

func (nop) Login(string)             {}
func (nop) Registration(string)      {}
func (nop) TokenVerification(string) {}
func (nop) EventPublished(string)    {}
func (nop) SetUsers(int64)           {}

// Nop returns a Recorder that discards everything.
func Nop() Recorder { return nop{} }
