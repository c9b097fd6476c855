// Package metrics exposes Prometheus instruments for the gateway client, the
// occupancy reconciler and the admission workflow. All methods are safe on a
// nil receiver so callers can run without metrics in tests.
package metrics

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatewayRequests     *prometheus.CounterVec
	gatewayLatency      *prometheus.HistogramVec
	workflowTransitions *prometheus.CounterVec
	reconcileWarnings   *prometheus.CounterVec
	departmentOccupancy *prometheus.GaugeVec
	webhookDeliveries   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the instruments on reg. A nil reg uses a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inpatient",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Requests sent to the hospital gateway",
		}, []string{"resource", "method", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inpatient",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Latency of hospital gateway requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource", "method"}),
		workflowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inpatient",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Admission workflow steps by outcome",
		}, []string{"step", "outcome"}),
		reconcileWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inpatient",
			Subsystem: "reconcile",
			Name:      "warnings_total",
			Help:      "Data-integrity warnings raised while reconciling beds with admissions",
		}, []string{"kind"}),
		departmentOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "inpatient",
			Subsystem: "ward",
			Name:      "occupied_percent",
			Help:      "Occupied bed percentage per department",
		}, []string{"department_id"}),
		webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inpatient",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Outbound webhook deliveries by status",
		}, []string{"status"}),
		gatherer: reg,
	}
	reg.MustRegister(m.gatewayRequests, m.gatewayLatency, m.workflowTransitions, m.reconcileWarnings, m.departmentOccupancy, m.webhookDeliveries)
	return m
}

func (m *Metrics) ObserveGatewayRequest(resource, method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(resource, method, outcome).Inc()
	m.gatewayLatency.WithLabelValues(resource, method).Observe(seconds)
}

func (m *Metrics) ObserveTransition(step, outcome string) {
	if m == nil {
		return
	}
	m.workflowTransitions.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) ObserveReconcileWarning(kind string) {
	if m == nil {
		return
	}
	m.reconcileWarnings.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetDepartmentOccupancy(departmentID string, pct int) {
	if m == nil {
		return
	}
	m.departmentOccupancy.WithLabelValues(departmentID).Set(float64(pct))
}

func (m *Metrics) ObserveWebhookDelivery(status string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	if m == nil {
		return func(c echo.Context) error {
			return c.NoContent(http.StatusNotFound)
		}
	}
	return echo.WrapHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// ReconcileWarnings exposes the warning counter for assertions in tests.
func (m *Metrics) ReconcileWarnings() *prometheus.CounterVec { return m.reconcileWarnings }

// WorkflowTransitions exposes the transition counter for assertions in tests.
func (m *Metrics) WorkflowTransitions() *prometheus.CounterVec { return m.workflowTransitions }
