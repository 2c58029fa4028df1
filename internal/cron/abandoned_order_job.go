package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/kofabeauty/storefront-backend/internal/checkout"
	"github.com/kofabeauty/storefront-backend/internal/orders"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
)

const (
	defaultAbandonAfter = 72 * time.Hour
	defaultBatchSize    = 100
)

type pendingOrderReader interface {
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error)
}

type pendingExpirer interface {
	ExpirePending(ctx context.Context, orderID uuid.UUID, reason string) (*orders.TransitionResult, error)
}

// AbandonedOrderJobParams configure the abandoned checkout expiry.
type AbandonedOrderJobParams struct {
	Logger       *logger.Logger
	Orders       pendingOrderReader
	Expirer      pendingExpirer
	Checkout     paymentConfirmer
	AbandonAfter time.Duration
	BatchSize    int
}

// NewAbandonedOrderJob builds the cron job that cancels checkouts that never paid.
func NewAbandonedOrderJob(params AbandonedOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	after := params.AbandonAfter
	if after <= 0 {
		after = defaultAbandonAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &abandonedOrderJob{
		logg:     params.Logger,
		orders:   params.Orders,
		expirer:  params.Expirer,
		checkout: params.Checkout,
		after:    after,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type abandonedOrderJob struct {
	logg     *logger.Logger
	orders   pendingOrderReader
	expirer  pendingExpirer
	checkout paymentConfirmer
	after    time.Duration
	batch    int
	now      func() time.Time
}

func (j *abandonedOrderJob) Name() string { return "abandoned_order_expiry" }

// Run asks the gateway about every stale order before cancelling it. Only a
// definitive not-paid answer expires the order; gateway failures and
// mismatched charges leave it pending for the next run or an operator.
func (j *abandonedOrderJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	stale, err := j.orders.ListStalePending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query abandoned orders: %w", err)
	}

	ctx = checkout.WithSource(ctx, checkout.SourceReconcile)
	var errs error
	expired, paid, held := 0, 0, 0
	for _, order := range stale {
		_, err := j.checkout.ConfirmPayment(ctx, order.OrderNumber)
		switch {
		case err == nil:
			paid++
			continue
		case checkout.FailureReason(err) == checkout.ReasonNotSuccessful:
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			continue
		case pkgerrors.IsCode(err, pkgerrors.CodePaymentUnverified):
			held++
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"orderNumber": order.OrderNumber,
				"reason":      checkout.FailureReason(err),
			}), "abandoned order kept pending")
			continue
		default:
			errs = multierr.Append(errs, fmt.Errorf("verify %s: %w", order.OrderNumber, err))
			continue
		}

		res, err := j.expirer.ExpirePending(ctx, order.ID, orders.CancelReasonAbandoned)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", order.OrderNumber, err))
			continue
		}
		if res.Transitioned {
			expired++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"expired":    expired,
		"paid":       paid,
		"held":       held,
	})
	j.logg.Info(logCtx, "abandoned order expiry complete")
	return errs
}
