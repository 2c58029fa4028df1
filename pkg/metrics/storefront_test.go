package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestStorefrontMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStorefrontMetrics(reg)

	m.IncOrdersCreated()
	m.IncPaymentConfirmed("checkout")
	m.IncPaymentConfirmed("checkout")
	m.IncVerificationFailure("not_successful")
	m.IncNotification("sent")
	m.AddPromotionItems("apply", 3)
	m.AddPromotionItems("apply", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "storefront_payments_confirmed_total", "source", "checkout"); err != nil || got != 2 {
		t.Fatalf("expected payments confirmed=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_payment_verification_failures_total", "reason", "not_successful"); err != nil || got != 1 {
		t.Fatalf("expected verification failures=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_order_notifications_total", "result", "sent"); err != nil || got != 1 {
		t.Fatalf("expected notifications=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_promotion_items_total", "operation", "apply"); err != nil || got != 3 {
		t.Fatalf("expected promotion items=3, got %f (%v)", got, err)
	}
	if mf := findMetricFamily(mfs, "storefront_orders_created_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected orders created=1")
	}
}

func TestStorefrontMetricsNilSafe(t *testing.T) {
	var m *StorefrontMetrics
	m.IncOrdersCreated()
	m.IncPaymentConfirmed("x")
	m.IncVerificationFailure("x")
	m.IncNotification("x")
	m.AddPromotionItems("x", 1)

	NewStorefrontMetrics(nil).IncOrdersCreated()
}
