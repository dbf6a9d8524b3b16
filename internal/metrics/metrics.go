// Package metrics exposes Prometheus counters for purchases, resolutions,
// push deliveries and scheduled jobs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Purchases           *prometheus.CounterVec
	Resolutions         *prometheus.CounterVec
	ResolutionConflicts prometheus.Counter
	PushDeliveries      *prometheus.CounterVec
	SubscriptionsPruned prometheus.Counter
	Jobs                *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Purchases: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vpcs_purchase_requests_total",
			Help: "Purchase requests by outcome.",
		}, []string{"outcome"}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vpcs_transaction_resolutions_total",
			Help: "Pending transactions moved to a terminal status.",
		}, []string{"status", "channel"}),
		ResolutionConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "vpcs_resolution_conflicts_total",
			Help: "Resolve attempts that lost to an earlier resolution.",
		}),
		PushDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vpcs_push_deliveries_total",
			Help: "Push delivery attempts by notification kind and result.",
		}, []string{"kind", "result"}),
		SubscriptionsPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "vpcs_push_subscriptions_deactivated_total",
			Help: "Subscriptions disabled after a terminal push error.",
		}),
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vpcs_scheduled_jobs_total",
			Help: "Scheduled jobs processed by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PurchaseOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Purchases.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Resolved(status, channel string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(status, channel).Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.ResolutionConflicts.Inc()
}

func (m *Metrics) Delivery(kind, result string) {
	if m == nil {
		return
	}
	m.PushDeliveries.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SubscriptionDeactivated() {
	if m == nil {
		return
	}
	m.SubscriptionsPruned.Inc()
}

func (m *Metrics) Job(kind, result string) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(kind, result).Inc()
}
