package paystackwebhook

import (
	"context"
	"strings"

	"github.com/kofabeauty/storefront-backend/internal/checkout"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/paystack"
)

const EventChargeSuccess = paystack.EventChargeSuccess

// GuardScope namespaces webhook delivery markers in redis.
const GuardScope = "paystack-webhook"

// DeliveryKey identifies a Paystack delivery. Paystack sends no event id, so
// the event name and transaction reference stand in for one.
func DeliveryKey(event, reference string) string {
	return strings.TrimSpace(event) + ":" + strings.TrimSpace(reference)
}

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, reference string) (*checkout.Confirmation, error)
}

type ServiceParams struct {
	Checkout paymentConfirmer
	Logger   *logger.Logger
}

type Service struct {
	checkout paymentConfirmer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	return &Service{checkout: params.Checkout, logg: params.Logger}, nil
}

// HandleEvent confirms the order named by a charge.success delivery. The
// webhook body is never trusted for the outcome: ConfirmPayment re-verifies
// the reference with Paystack. References this store does not know and
// orders that can no longer be paid are acknowledged so Paystack stops retrying.
func (s *Service) HandleEvent(ctx context.Context, event *paystack.WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "paystack event required")
	}
	if event.Event != EventChargeSuccess {
		return nil
	}
	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction reference missing")
	}

	ctx = checkout.WithSource(ctx, checkout.SourceWebhook)
	_, err := s.checkout.ConfirmPayment(ctx, reference)
	switch {
	case err == nil:
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound), pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		if s.logg != nil {
			s.logg.Warn(s.logg.WithOrderNumber(ctx, reference), "paystack charge for order that cannot be confirmed")
		}
		return nil
	case checkout.FailureReason(err) == checkout.ReasonCancelledOrderPaid:
		// logged at error level by ConfirmPayment
		if s.logg != nil {
			s.logg.Warn(s.logg.WithOrderNumber(ctx, reference), "paystack charge captured for cancelled order")
		}
		return nil
	default:
		return err
	}
}
