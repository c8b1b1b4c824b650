package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus holds the exported collectors on a private registry.
type Prometheus struct {
	registry          *prometheus.Registry
	outcomes          *prometheus.CounterVec
	commitDuration    *prometheus.HistogramVec
	ledgerWriteErrors *prometheus.CounterVec
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// NewPrometheus registers the orderbridge collectors plus the Go and
// process collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderbridge",
			Name:      "order_outcomes_total",
			Help:      "Orders processed, by terminal outcome.",
		}, []string{"outcome"}),
		commitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orderbridge",
			Name:      "order_processing_seconds",
			Help:      "Time to drive one order to its outcome.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		ledgerWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderbridge",
			Name:      "ledger_write_errors_total",
			Help:      "Finalize writes that could not be applied to the ledger.",
		}, []string{"op"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderbridge",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status code.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orderbridge",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	p.registry.MustRegister(
		p.outcomes,
		p.commitDuration,
		p.ledgerWriteErrors,
		p.requests,
		p.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// ObserveOutcome records one processed order.
func (p *Prometheus) ObserveOutcome(outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.outcomes.WithLabelValues(outcome).Inc()
	p.commitDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// LedgerWriteError records a failed finalize write.
func (p *Prometheus) LedgerWriteError(op string) {
	if p == nil {
		return
	}
	p.ledgerWriteErrors.WithLabelValues(op).Inc()
}

// ObserveRequest records one HTTP request.
func (p *Prometheus) ObserveRequest(route, status string, d time.Duration) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(route, status).Inc()
	p.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
