package paystackwebhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kofabeauty/storefront-backend/internal/checkout"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/paystack"
)

type stubConfirmer struct {
	references []string
	err        error
}

func (s *stubConfirmer) ConfirmPayment(ctx context.Context, reference string) (*checkout.Confirmation, error) {
	s.references = append(s.references, reference)
	return &checkout.Confirmation{}, s.err
}

func chargeEvent(name, reference string) *paystack.WebhookEvent {
	event := &paystack.WebhookEvent{Event: name}
	event.Data.Reference = reference
	event.Data.Status = "success"
	return event
}

func TestHandleEventConfirmsChargeSuccess(t *testing.T) {
	confirmer := &stubConfirmer{}
	svc, err := NewService(ServiceParams{Checkout: confirmer})
	require.NoError(t, err)

	require.NoError(t, svc.HandleEvent(context.Background(), chargeEvent(EventChargeSuccess, " KB-1 ")))
	assert.Equal(t, []string{"KB-1"}, confirmer.references)

	require.NoError(t, svc.HandleEvent(context.Background(), chargeEvent("transfer.success", "KB-2")))
	assert.Len(t, confirmer.references, 1)
}

func TestHandleEventErrors(t *testing.T) {
	svc, err := NewService(ServiceParams{Checkout: &stubConfirmer{}})
	require.NoError(t, err)
	assert.Error(t, svc.HandleEvent(context.Background(), nil))
	assert.True(t, pkgerrors.IsCode(svc.HandleEvent(context.Background(), chargeEvent(EventChargeSuccess, "")), pkgerrors.CodeValidation))

	for _, code := range []pkgerrors.Code{pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict} {
		svc, err := NewService(ServiceParams{Checkout: &stubConfirmer{err: pkgerrors.New(code, "x")}})
		require.NoError(t, err)
		assert.NoError(t, svc.HandleEvent(context.Background(), chargeEvent(EventChargeSuccess, "KB-1")), code)
	}

	unverified := pkgerrors.New(pkgerrors.CodePaymentUnverified, "nope")
	svc, err = NewService(ServiceParams{Checkout: &stubConfirmer{err: unverified}})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.HandleEvent(context.Background(), chargeEvent(EventChargeSuccess, "KB-1")), unverified)

	_, err = NewService(ServiceParams{})
	assert.Error(t, err)
}

func TestHandleEventAcksChargeOnCancelledOrder(t *testing.T) {
	captured := pkgerrors.New(pkgerrors.CodePaymentUnverified, "captured").
		WithDetails(map[string]any{"reference": "KB-1", "reason": checkout.ReasonCancelledOrderPaid})
	confirmer := &stubConfirmer{err: captured}
	svc, err := NewService(ServiceParams{Checkout: confirmer})
	require.NoError(t, err)

	assert.NoError(t, svc.HandleEvent(context.Background(), chargeEvent(EventChargeSuccess, "KB-1")))
	assert.Equal(t, []string{"KB-1"}, confirmer.references)
}

func TestDeliveryKey(t *testing.T) {
	assert.Equal(t, "charge.success:KB-1", DeliveryKey(" charge.success", "KB-1 "))
}
