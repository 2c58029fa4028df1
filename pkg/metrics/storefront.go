package metrics

import "github.com/prometheus/client_golang/prometheus"

// StorefrontMetrics counts checkout, payment and notification outcomes.
type StorefrontMetrics struct {
	ordersCreated        prometheus.Counter
	paymentsConfirmed    *prometheus.CounterVec
	verificationFailures *prometheus.CounterVec
	notifications        *prometheus.CounterVec
	promotionItems       *prometheus.CounterVec
}

// NewStorefrontMetrics registers the storefront counters on reg. A nil
// registerer yields a no-op recorder.
func NewStorefrontMetrics(reg prometheus.Registerer) *StorefrontMetrics {
	if reg == nil {
		return &StorefrontMetrics{}
	}
	m := &StorefrontMetrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Orders created in Pending Payment.",
		}),
		paymentsConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_payments_confirmed_total",
			Help: "Orders transitioned to Processing after gateway verification.",
		}, []string{"source"}),
		verificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_payment_verification_failures_total",
			Help: "Payments the gateway could not corroborate.",
		}, []string{"reason"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_notifications_total",
			Help: "Order confirmation emails by outcome.",
		}, []string{"result"}),
		promotionItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_promotion_items_total",
			Help: "Catalog items updated by promotion operations.",
		}, []string{"operation"}),
	}
	reg.MustRegister(m.ordersCreated, m.paymentsConfirmed, m.verificationFailures, m.notifications, m.promotionItems)
	return m
}

func (m *StorefrontMetrics) IncOrdersCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *StorefrontMetrics) IncPaymentConfirmed(source string) {
	if m == nil || m.paymentsConfirmed == nil {
		return
	}
	m.paymentsConfirmed.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *StorefrontMetrics) IncVerificationFailure(reason string) {
	if m == nil || m.verificationFailures == nil {
		return
	}
	m.verificationFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *StorefrontMetrics) IncNotification(result string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *StorefrontMetrics) AddPromotionItems(operation string, count int) {
	if m == nil || m.promotionItems == nil || count <= 0 {
		return
	}
	m.promotionItems.WithLabelValues(normalizeLabel(operation)).Add(float64(count))
}
