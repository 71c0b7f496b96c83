package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records counters for the order/payment pipeline.
type PaymentMetrics struct {
	ordersCreated    *prometheus.CounterVec
	webhookProcessed *prometheus.CounterVec
	webhookRejected  *prometheus.CounterVec
	refunds          *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders successfully assembled, by source (cart/direct).",
	}, []string{"source"})
	webhookProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_processed_total",
		Help: "Gateway webhooks applied, by canonical status.",
	}, []string{"status"})
	webhookRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_rejected_total",
		Help: "Gateway webhooks rejected before processing, by reason.",
	}, []string{"reason"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_refunds_total",
		Help: "Refund operations executed, by outcome (partial/full).",
	}, []string{"outcome"})
	reg.MustRegister(ordersCreated, webhookProcessed, webhookRejected, refunds)
	return &PaymentMetrics{
		ordersCreated:    ordersCreated,
		webhookProcessed: webhookProcessed,
		webhookRejected:  webhookRejected,
		refunds:          refunds,
	}
}

// IncOrderCreated counts a successful order assembly.
func (m *PaymentMetrics) IncOrderCreated(source string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncWebhookProcessed counts an applied gateway notification.
func (m *PaymentMetrics) IncWebhookProcessed(status string) {
	if m == nil || m.webhookProcessed == nil {
		return
	}
	m.webhookProcessed.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncWebhookRejected counts a rejected notification (bad signature, replay).
func (m *PaymentMetrics) IncWebhookRejected(reason string) {
	if m == nil || m.webhookRejected == nil {
		return
	}
	m.webhookRejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncRefund counts a refund operation.
func (m *PaymentMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	label := strings.TrimSpace(strings.ToLower(value))
	if label == "" {
		return "unknown"
	}
	return label
}
