package cron

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kofabeauty/storefront-backend/internal/checkout"
	"github.com/kofabeauty/storefront-backend/internal/orders"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/pagination"
)

type fakePendingReader struct {
	orders    []models.Order
	olderThan time.Time
	limit     int
}

func (f *fakePendingReader) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error) {
	f.olderThan = olderThan
	f.limit = limit
	return f.orders, nil
}

type fakeExpirer struct {
	reasons map[uuid.UUID]string
	fail    map[uuid.UUID]error
}

func (f *fakeExpirer) ExpirePending(ctx context.Context, orderID uuid.UUID, reason string) (*orders.TransitionResult, error) {
	if err := f.fail[orderID]; err != nil {
		return nil, err
	}
	f.reasons[orderID] = reason
	return &orders.TransitionResult{Order: &models.Order{ID: orderID, Status: enums.OrderStatusCancelled}, Transitioned: true}, nil
}

type fakeWindowReader struct {
	orders []models.Order
	after  time.Time
	before time.Time
	pages  int
}

// ListPendingWindow serves f.orders, already newest first, in keyset pages.
func (f *fakeWindowReader) ListPendingWindow(ctx context.Context, after, before time.Time, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	f.after, f.before = after, before
	f.pages++
	start := 0
	if cursor != nil {
		for i, order := range f.orders {
			if order.ID == cursor.ID {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(f.orders))
	return f.orders[start:end], nil
}

type fakeConfirmer struct {
	results map[string]error
	calls   []string
	marker  string
}

func (f *fakeConfirmer) ConfirmPayment(ctx context.Context, reference string) (*checkout.Confirmation, error) {
	f.calls = append(f.calls, reference)
	if v, ok := ctx.Value(markerKey{}).(string); ok {
		f.marker = v
	}
	if err := f.results[reference]; err != nil {
		return nil, err
	}
	return &checkout.Confirmation{}, nil
}

type markerKey struct{}

func pendingOrder(number string) models.Order {
	return models.Order{ID: uuid.New(), OrderNumber: number, Status: enums.OrderStatusPendingPayment}
}

func unverified(reason string) error {
	return pkgerrors.New(pkgerrors.CodePaymentUnverified, "unverified").
		WithDetails(map[string]any{"reason": reason})
}

func TestAbandonedOrderJobVerifiesBeforeExpiring(t *testing.T) {
	now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	unpaid := pendingOrder("KB-unpaid")
	paidLate := pendingOrder("KB-paid")
	cancelled := pendingOrder("KB-cancelled")
	gatewayDown := pendingOrder("KB-gateway")
	verifyFails := pendingOrder("KB-verify")
	expireFails := pendingOrder("KB-expire")
	reader := &fakePendingReader{orders: []models.Order{unpaid, paidLate, cancelled, gatewayDown, verifyFails, expireFails}}
	expirer := &fakeExpirer{
		reasons: map[uuid.UUID]string{},
		fail:    map[uuid.UUID]error{expireFails.ID: errors.New("db down")},
	}
	confirmer := &fakeConfirmer{results: map[string]error{
		"KB-unpaid":    unverified(checkout.ReasonNotSuccessful),
		"KB-cancelled": pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled"),
		"KB-gateway":   unverified("gateway_error"),
		"KB-verify":    pkgerrors.New(pkgerrors.CodeInternal, "db down"),
		"KB-expire":    unverified(checkout.ReasonNotSuccessful),
	}}

	jobIface, err := NewAbandonedOrderJob(AbandonedOrderJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Orders:   reader,
		Expirer:  expirer,
		Checkout: confirmer,
	})
	require.NoError(t, err)
	job := jobIface.(*abandonedOrderJob)
	job.now = func() time.Time { return now }

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KB-verify")
	assert.Contains(t, err.Error(), "KB-expire")
	assert.NotContains(t, err.Error(), "KB-gateway")
	assert.Equal(t, now.Add(-defaultAbandonAfter), reader.olderThan)
	assert.Equal(t, defaultBatchSize, reader.limit)
	assert.Len(t, confirmer.calls, 6)
	assert.Equal(t, map[uuid.UUID]string{unpaid.ID: orders.CancelReasonAbandoned}, expirer.reasons)
	assert.Equal(t, "abandoned_order_expiry", job.Name())
}

func TestPaymentReconcileJobLeavesUnverifiedOrders(t *testing.T) {
	now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	reader := &fakeWindowReader{orders: []models.Order{
		pendingOrder("KB-paid"),
		pendingOrder("KB-unpaid"),
		pendingOrder("KB-cancelled"),
		pendingOrder("KB-broken"),
	}}
	confirmer := &fakeConfirmer{results: map[string]error{
		"KB-unpaid":    unverified(checkout.ReasonNotSuccessful),
		"KB-cancelled": pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled"),
		"KB-broken":    pkgerrors.New(pkgerrors.CodeInternal, "db down"),
	}}

	jobIface, err := NewPaymentReconcileJob(PaymentReconcileJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Orders:    reader,
		Checkout:  confirmer,
		Grace:     15 * time.Minute,
		Window:    48 * time.Hour,
		BatchSize: 20,
	})
	require.NoError(t, err)
	job := jobIface.(*paymentReconcileJob)
	job.now = func() time.Time { return now }

	err = job.Run(context.WithValue(context.Background(), markerKey{}, "marked"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KB-broken")
	assert.NotContains(t, err.Error(), "KB-unpaid")
	assert.Equal(t, now.Add(-15*time.Minute), reader.before)
	assert.Equal(t, now.Add(-48*time.Hour), reader.after)
	assert.Equal(t, 1, reader.pages)
	assert.Equal(t, []string{"KB-paid", "KB-unpaid", "KB-cancelled", "KB-broken"}, confirmer.calls)
	assert.Equal(t, "marked", confirmer.marker)
}

func TestPaymentReconcileJobReachesEveryOrderBeyondOneBatch(t *testing.T) {
	const batch, total = 100, 250
	reader := &fakeWindowReader{}
	want := make([]string, 0, total)
	results := map[string]error{}
	for i := 0; i < total; i++ {
		order := pendingOrder(fmt.Sprintf("KB-%03d", i))
		reader.orders = append(reader.orders, order)
		want = append(want, order.OrderNumber)
		if i > 0 {
			results[order.OrderNumber] = unverified(checkout.ReasonNotSuccessful)
		}
	}
	confirmer := &fakeConfirmer{results: results}

	job, err := NewPaymentReconcileJob(PaymentReconcileJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Orders:    reader,
		Checkout:  confirmer,
		BatchSize: batch,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, want, confirmer.calls)
	assert.Equal(t, 3, reader.pages)
}

func TestJobConstructorsValidate(t *testing.T) {
	logg := logger.New(logger.Options{})
	_, err := NewAbandonedOrderJob(AbandonedOrderJobParams{})
	assert.Error(t, err)
	_, err = NewAbandonedOrderJob(AbandonedOrderJobParams{Logger: logg, Orders: &fakePendingReader{}, Expirer: &fakeExpirer{}})
	assert.Error(t, err, "checkout is required")
	_, err = NewPaymentReconcileJob(PaymentReconcileJobParams{Logger: logg})
	assert.Error(t, err)
	_, err = NewPaymentReconcileJob(PaymentReconcileJobParams{
		Logger:   logg,
		Orders:   &fakeWindowReader{},
		Checkout: &fakeConfirmer{},
		Grace:    time.Hour,
		Window:   time.Hour,
	})
	assert.Error(t, err, "window must exceed grace")
}
