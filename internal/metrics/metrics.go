// Package metrics holds the Prometheus collectors for the payment flow.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics groups collectors for checkout, callbacks and webhooks.
// A nil *PaymentMetrics records nothing.
type PaymentMetrics struct {
	Checkouts      *prometheus.CounterVec
	Reconciles     *prometheus.CounterVec
	Webhooks       *prometheus.CounterVec
	GatewayLatency *prometheus.HistogramVec
}

// NewPaymentMetrics registers and returns the payment collectors.
func NewPaymentMetrics(namespace string, reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PaymentMetrics{
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout initiations by integration mode and result.",
		}, []string{"mode", "result"}),
		Reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciles_total",
			Help:      "Callback, webhook and sweep reconciliations by source and outcome.",
		}, []string{"source", "outcome"}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by result.",
		}, []string{"result"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_call_duration_ms",
			Help:      "Processor call latency in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"operation"}),
	}
	m.Checkouts = registerCounter(reg, m.Checkouts)
	m.Reconciles = registerCounter(reg, m.Reconciles)
	m.Webhooks = registerCounter(reg, m.Webhooks)
	m.GatewayLatency = registerHistogram(reg, m.GatewayLatency)
	return m
}

func (m *PaymentMetrics) Checkout(mode, result string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(mode, result).Inc()
}

func (m *PaymentMetrics) Reconcile(source, outcome string) {
	if m == nil {
		return
	}
	m.Reconciles.WithLabelValues(source, outcome).Inc()
}

func (m *PaymentMetrics) Webhook(result string) {
	if m == nil {
		return
	}
	m.Webhooks.WithLabelValues(result).Inc()
}

// ObserveGateway records the latency of one processor operation.
func (m *PaymentMetrics) ObserveGateway(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.GatewayLatency.WithLabelValues(operation).Observe(float64(time.Since(started)) / float64(time.Millisecond))
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register counter: %w", err))
	}
	return c
}

func registerHistogram(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register histogram: %w", err))
	}
	return h
}
