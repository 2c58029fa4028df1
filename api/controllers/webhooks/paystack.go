package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/kofabeauty/storefront-backend/api/responses"
	paystackwebhook "github.com/kofabeauty/storefront-backend/internal/webhooks/paystack"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/outbox/idempotency"
	"github.com/kofabeauty/storefront-backend/pkg/paystack"
)

const maxWebhookBody = 1 << 20

type PaystackWebhookService interface {
	HandleEvent(ctx context.Context, event *paystack.WebhookEvent) error
}

// DeliveryGuard claims a delivery key before the event is handled.
type DeliveryGuard interface {
	Begin(ctx context.Context, id string) (idempotency.Outcome, error)
	Complete(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

// PaystackWebhook verifies and dispatches Paystack events. A delivery already
// handled is acknowledged without touching the order again; one still being
// handled gets a 409 so Paystack retries it later.
func PaystackWebhook(svc PaystackWebhookService, secret string, guard DeliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paystack secret unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := paystack.VerifySignature(secret, payload, r.Header.Get(paystack.SignatureHeader)); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature"))
			return
		}

		event, err := paystack.ParseWebhookEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook event"))
			return
		}

		key := paystackwebhook.DeliveryKey(event.Event, event.Data.Reference)
		outcome, err := guard.Begin(ctx, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		switch outcome {
		case idempotency.Done:
			if logg != nil {
				logg.Info(logg.WithFields(ctx, map[string]any{"event": event.Event, "order_number": event.Data.Reference}), "paystack webhook duplicate")
			}
			responses.WriteSuccess(w, nil)
			return
		case idempotency.InFlight:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "delivery is already being processed"))
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if relErr := guard.Release(ctx, key); relErr != nil && logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{"delivery_key": key, "error": relErr.Error()}), "release webhook claim failed")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guard.Complete(ctx, key); err != nil && logg != nil {
			logg.Warn(logg.WithFields(ctx, map[string]any{"delivery_key": key, "error": err.Error()}), "complete webhook claim failed")
		}

		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
