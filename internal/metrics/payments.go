package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics — счётчики жизненного цикла заказов и платежей.
// Нулевое значение и nil безопасны: вызовы становятся no-op.
type PaymentMetrics struct {
	sessions       *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	webhooks       *prometheus.CounterVec
	gatewayLatency prometheus.Histogram
}

// NewPaymentMetrics регистрирует метрики на переданном registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	m := &PaymentMetrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_sessions_total",
			Help: "Payment session requests by outcome.",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Payment signature verifications by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions by target status.",
		}, []string{"to"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Gateway webhook deliveries by event and outcome.",
		}, []string{"event", "outcome"}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "payment_gateway_request_seconds",
			Help:    "Latency of gateway session creation.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.sessions, m.verifications, m.transitions, m.webhooks, m.gatewayLatency)
	return m
}

// IncSession: created, reused, failed.
func (m *PaymentMetrics) IncSession(outcome string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncVerification: paid, duplicate, mismatch, not_found, misconfigured.
func (m *PaymentMetrics) IncVerification(outcome string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition учитывает переход заказа в статус to.
func (m *PaymentMetrics) IncTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}

// IncWebhook учитывает доставку вебхука.
func (m *PaymentMetrics) IncWebhook(event, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

// ObserveGateway записывает длительность запроса к шлюзу.
func (m *PaymentMetrics) ObserveGateway(d time.Duration) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	m.gatewayLatency.Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
