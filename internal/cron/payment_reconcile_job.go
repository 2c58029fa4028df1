package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/kofabeauty/storefront-backend/internal/checkout"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/pagination"
)

const defaultReconcileGrace = 10 * time.Minute

type pendingWindowReader interface {
	ListPendingWindow(ctx context.Context, after, before time.Time, cursor *pagination.Cursor, limit int) ([]models.Order, error)
}

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, reference string) (*checkout.Confirmation, error)
}

// PaymentReconcileJobParams configure the pending payment reconciliation.
type PaymentReconcileJobParams struct {
	Logger    *logger.Logger
	Orders    pendingWindowReader
	Checkout  paymentConfirmer
	Grace     time.Duration
	Window    time.Duration
	BatchSize int
}

// NewPaymentReconcileJob builds the job that re-verifies pending orders whose
// customer paid but never returned from the payment popup.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultReconcileGrace
	}
	window := params.Window
	if window <= 0 {
		window = defaultAbandonAfter
	}
	if window <= grace {
		return nil, fmt.Errorf("reconcile window %s must exceed grace %s", window, grace)
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &paymentReconcileJob{
		logg:     params.Logger,
		orders:   params.Orders,
		checkout: params.Checkout,
		grace:    grace,
		window:   window,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	orders   pendingWindowReader
	checkout paymentConfirmer
	grace    time.Duration
	window   time.Duration
	batch    int
	now      func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "pending_payment_reconcile" }

// Run walks every pending order created between window and grace ago, newest
// first, one page at a time. An unverified payment is the normal case: most
// pending orders were simply never paid.
func (j *paymentReconcileJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	after, before := now.Add(-j.window), now.Add(-j.grace)

	ctx = checkout.WithSource(ctx, checkout.SourceReconcile)
	var (
		errs       error
		cursor     *pagination.Cursor
		candidates int
	)
	confirmed, unverified := 0, 0
	for {
		page, err := j.orders.ListPendingWindow(ctx, after, before, cursor, j.batch)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("query pending payments: %w", err))
			break
		}
		candidates += len(page)
		for _, order := range page {
			res, err := j.checkout.ConfirmPayment(ctx, order.OrderNumber)
			switch {
			case err == nil:
				if !res.AlreadyConfirmed {
					confirmed++
				}
			case pkgerrors.IsCode(err, pkgerrors.CodePaymentUnverified),
				pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
				unverified++
			default:
				errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", order.OrderNumber, err))
			}
		}
		if len(page) < j.batch {
			break
		}
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		last := page[len(page)-1]
		cursor = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": candidates,
		"confirmed":  confirmed,
		"unverified": unverified,
	})
	j.logg.Info(logCtx, "pending payment reconciliation complete")
	return errs
}
