package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the assistant's collectors on a dedicated registry.
// It satisfies generation.Observer.
type Metrics struct {
	registry *prometheus.Registry

	polls          *prometheus.CounterVec
	jobs           *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	leadsLoaded    prometheus.Gauge
}

// New creates and registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_polls_total",
			Help: "Job status polls by result.",
		}, []string{"result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_jobs_total",
			Help: "Finished generation jobs by outcome.",
		}, []string{"outcome"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadgen_sessions_active",
			Help: "Live generation sessions.",
		}),
		leadsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadgen_leads_loaded",
			Help: "Leads held by the view after the last load.",
		}),
	}

	m.registry.MustRegister(
		m.polls,
		m.jobs,
		m.sessionsActive,
		m.leadsLoaded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) PollCompleted(result string) { m.polls.WithLabelValues(result).Inc() }
func (m *Metrics) JobFinished(outcome string)  { m.jobs.WithLabelValues(outcome).Inc() }

// SetActiveSessions is meant for generation.Manager.OnActiveChange.
func (m *Metrics) SetActiveSessions(n int) { m.sessionsActive.Set(float64(n)) }

// SetLeadsLoaded is meant for leads.WithLoadObserver.
func (m *Metrics) SetLeadsLoaded(n int) { m.leadsLoaded.Set(float64(n)) }

// Registry exposes the registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
