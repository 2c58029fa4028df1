package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kofabeauty/storefront-backend/internal/checkout/helpers"
	"github.com/kofabeauty/storefront-backend/internal/orders"
	product "github.com/kofabeauty/storefront-backend/internal/products"
	"github.com/kofabeauty/storefront-backend/pkg/db/dbtest"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/metrics"
	"github.com/kofabeauty/storefront-backend/pkg/outbox"
	"github.com/kofabeauty/storefront-backend/pkg/paystack"
	"github.com/kofabeauty/storefront-backend/pkg/pricing"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type stubVerifier struct {
	calls  int
	result func(reference string) (*paystack.Verification, error)
}

func (s *stubVerifier) VerifyTransaction(ctx context.Context, reference string) (*paystack.Verification, error) {
	s.calls++
	if s.result == nil {
		return nil, errors.New("not configured")
	}
	return s.result(reference)
}

func paid(amountMinor int64) func(string) (*paystack.Verification, error) {
	return func(reference string) (*paystack.Verification, error) {
		return &paystack.Verification{
			Status:      true,
			TxStatus:    paystack.StatusSuccess,
			Reference:   reference,
			AmountMinor: amountMinor,
			Currency:    "GHS",
		}, nil
	}
}

type fixture struct {
	conn     *gorm.DB
	catalog  *product.Repository
	ledger   orders.Service
	verifier *stubVerifier
	registry *prometheus.Registry
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	ledger, err := orders.NewService(orders.ServiceParams{
		Repo:   orders.NewRepository(conn),
		Tx:     client,
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	verifier := &stubVerifier{}
	catalog := product.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Catalog:     catalog,
		Orders:      ledger,
		Verifier:    verifier,
		Engine:      pricing.NewEngine(func() time.Time { return testNow }),
		ShippingFee: decimal.RequireFromString("15.00"),
		Currency:    "ghs",
		PublicKey:   "pk_test",
		Metrics:     metrics.NewStorefrontMetrics(reg),
	})
	require.NoError(t, err)
	return &fixture{conn: conn, catalog: catalog, ledger: ledger, verifier: verifier, registry: reg, svc: svc}
}

func (f *fixture) seed(t *testing.T, name, price string, stock int) models.Product {
	t.Helper()
	p := models.Product{Name: name, Category: "skincare", Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, f.catalog.Create(context.Background(), &p))
	return p
}

func contact() helpers.Contact {
	return helpers.Contact{
		Email:     "ama@example.com",
		FirstName: "Ama",
		LastName:  "Mensah",
		Phone:     "+233200000000",
		Address:   "12 Ring Road",
		City:      "Accra",
	}
}

func (f *fixture) checkout(t *testing.T) *Session {
	t.Helper()
	a := f.seed(t, "Shea Butter", "30.00", 10)
	b := f.seed(t, "Black Soap", "30.00", 10)
	session, err := f.svc.Checkout(context.Background(), Request{
		Contact: contact(),
		Items: []helpers.CartItem{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	return session
}

func (f *fixture) paidEvents(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderPaid).Count(&count).Error)
	return count
}

func TestCheckoutCreatesPendingOrder(t *testing.T) {
	f := newFixture(t)
	session := f.checkout(t)

	assert.Equal(t, "105.00", session.Amount.StringFixed(2))
	assert.Equal(t, int64(10500), session.AmountMinor)
	assert.Equal(t, "GHS", session.Currency)
	assert.Equal(t, session.OrderNumber, session.Reference)
	assert.Equal(t, "pk_test", session.PublicKey)

	order, err := f.ledger.GetOrderByNumber(context.Background(), session.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, "Ama Mensah", order.CustomerName)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, float64(1), counterValue(t, f.registry, "storefront_orders_created_total", ""))
}

func TestCheckoutChargesCatalogPriceNotCartPrice(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, "Toner", "19.99", 5)
	sale := decimal.RequireFromString("16.99")
	end := testNow.Add(48 * time.Hour)
	_, err := f.catalog.UpdateSale(context.Background(), p.ID, &sale, &end)
	require.NoError(t, err)

	stale := decimal.RequireFromString("19.99")
	session, err := f.svc.Checkout(context.Background(), Request{
		Contact: contact(),
		Items:   []helpers.CartItem{{ProductID: p.ID, Quantity: 1, ReportedPrice: &stale}},
	})
	require.NoError(t, err)
	assert.Equal(t, "31.99", session.Amount.StringFixed(2))

	order, err := f.ledger.GetOrderByNumber(context.Background(), session.Reference)
	require.NoError(t, err)
	assert.Equal(t, "16.99", order.Lines[0].UnitPrice.StringFixed(2))
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, "Toner", "19.99", 1)
	ctx := context.Background()

	missing := contact()
	missing.City = ""
	_, err := f.svc.Checkout(ctx, Request{Contact: missing, Items: []helpers.CartItem{{ProductID: p.ID, Quantity: 1}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Checkout(ctx, Request{Contact: contact()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Checkout(ctx, Request{Contact: contact(), Items: []helpers.CartItem{{ProductID: p.ID, Quantity: 0}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Checkout(ctx, Request{Contact: contact(), Items: []helpers.CartItem{{ProductID: uuid.New(), Quantity: 1}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Checkout(ctx, Request{Contact: contact(), Items: []helpers.CartItem{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: p.ID, Quantity: 1},
	}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestConfirmPaymentTransitionsOnce(t *testing.T) {
	f := newFixture(t)
	session := f.checkout(t)
	f.verifier.result = paid(session.AmountMinor)
	ctx := context.Background()

	first, err := f.svc.ConfirmPayment(ctx, session.Reference)
	require.NoError(t, err)
	assert.False(t, first.AlreadyConfirmed)
	assert.Equal(t, enums.OrderStatusProcessing, first.Order.Status)

	second, err := f.svc.ConfirmPayment(WithSource(ctx, SourceWebhook), session.Reference)
	require.NoError(t, err)
	assert.True(t, second.AlreadyConfirmed)

	assert.Equal(t, 1, f.verifier.calls)
	assert.Equal(t, int64(1), f.paidEvents(t))
	assert.Equal(t, float64(1), counterValue(t, f.registry, "storefront_payments_confirmed_total", "callback"))
	assert.Zero(t, counterValue(t, f.registry, "storefront_payments_confirmed_total", "webhook"))
}

func TestConfirmPaymentUnverified(t *testing.T) {
	cases := map[string]func(string) (*paystack.Verification, error){
		"gateway error": func(string) (*paystack.Verification, error) {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "boom")
		},
		"abandoned": func(ref string) (*paystack.Verification, error) {
			return &paystack.Verification{Status: true, TxStatus: "abandoned", Reference: ref, AmountMinor: 10500}, nil
		},
		"amount mismatch": paid(100),
		"reference mismatch": func(string) (*paystack.Verification, error) {
			return &paystack.Verification{Status: true, TxStatus: paystack.StatusSuccess, Reference: "other", AmountMinor: 10500}, nil
		},
		"currency mismatch": func(ref string) (*paystack.Verification, error) {
			return &paystack.Verification{Status: true, TxStatus: paystack.StatusSuccess, Reference: ref, AmountMinor: 10500, Currency: "NGN"}, nil
		},
	}
	for name, result := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			session := f.checkout(t)
			f.verifier.result = result

			_, err := f.svc.ConfirmPayment(context.Background(), session.Reference)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodePaymentUnverified, typed.Code())
			assert.Equal(t, session.Reference, typed.Details().(map[string]any)["reference"])

			order, err := f.ledger.GetOrderByNumber(context.Background(), session.Reference)
			require.NoError(t, err)
			assert.Equal(t, enums.OrderStatusPendingPayment, order.Status)
			assert.Zero(t, f.paidEvents(t))
		})
	}
}

func TestConfirmPaymentTimeoutIsFailure(t *testing.T) {
	f := newFixture(t)
	session := f.checkout(t)

	slow := &blockingVerifier{}
	svc, err := NewService(ServiceParams{
		Catalog:       f.catalog,
		Orders:        f.ledger,
		Verifier:      slow,
		VerifyTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), session.Reference)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentUnverified))
	assert.Equal(t, "timeout", pkgerrors.As(err).Details().(map[string]any)["reason"])
}

type blockingVerifier struct{}

func (blockingVerifier) VerifyTransaction(ctx context.Context, reference string) (*paystack.Verification, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestConfirmPaymentAfterExpiryEscalatesCapturedCharge(t *testing.T) {
	f := newFixture(t)
	session := f.checkout(t)
	ctx := context.Background()

	expired, err := f.ledger.ExpirePending(ctx, session.OrderID, orders.CancelReasonAbandoned)
	require.NoError(t, err)
	require.True(t, expired.Transitioned)

	f.verifier.result = paid(session.AmountMinor)
	_, err = f.svc.ConfirmPayment(WithSource(ctx, SourceWebhook), session.Reference)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentUnverified))
	assert.Equal(t, ReasonCancelledOrderPaid, FailureReason(err))
	assert.Equal(t, session.Reference, pkgerrors.As(err).Details().(map[string]any)["reference"])
	assert.Equal(t, 1, f.verifier.calls)
	assert.Equal(t, float64(1), counterValue(t, f.registry, "storefront_payment_verification_failures_total", ReasonCancelledOrderPaid))

	order, err := f.ledger.GetOrderByNumber(ctx, session.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)
	assert.Zero(t, f.paidEvents(t))
}

func TestConfirmPaymentCancelledUnpaidIsStateConflict(t *testing.T) {
	f := newFixture(t)
	session := f.checkout(t)
	ctx := context.Background()

	_, err := f.ledger.CancelOrder(ctx, session.OrderID, "customer request")
	require.NoError(t, err)

	f.verifier.result = func(ref string) (*paystack.Verification, error) {
		return &paystack.Verification{Status: true, TxStatus: "abandoned", Reference: ref}, nil
	}
	_, err = f.svc.ConfirmPayment(ctx, session.Reference)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, FailureReason(err))
	assert.Equal(t, 1, f.verifier.calls)
}

func TestConfirmPaymentUnknownReference(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ConfirmPayment(context.Background(), "KB-000000-00000000")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Zero(t, f.verifier.calls)
}

func TestCancelPaymentLeavesOrderPending(t *testing.T) {
	f := newFixture(t)
	session := f.checkout(t)

	order, err := f.svc.CancelPayment(context.Background(), session.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, order.Status)

	again, err := f.svc.CancelPayment(context.Background(), session.Reference)
	require.NoError(t, err)
	assert.Equal(t, order.ID, again.ID)

	f.verifier.result = paid(session.AmountMinor)
	confirmed, err := f.svc.ConfirmPayment(context.Background(), session.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, confirmed.Order.Status)
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)

	f := newFixture(t)
	_, err = NewService(ServiceParams{
		Catalog:  f.catalog,
		Orders:   f.ledger,
		Verifier: f.verifier,
		TaxRate:  decimal.RequireFromString("1.5"),
	})
	assert.Error(t, err)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, pair := range m.GetLabel() {
				if pair.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
