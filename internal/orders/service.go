package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/kofabeauty/storefront-backend/pkg/db"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/outbox"
	"github.com/kofabeauty/storefront-backend/pkg/outbox/payloads"
	"github.com/kofabeauty/storefront-backend/pkg/pagination"
	"github.com/kofabeauty/storefront-backend/pkg/pricing"
)

const maxNumberAttempts = 3

// CancelReasonAbandoned marks orders expired by the abandonment job.
const CancelReasonAbandoned = "abandoned"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the order ledger: creation, lifecycle transitions and reads.
type Service interface {
	CreateOrder(ctx context.Context, draft OrderDraft, lines []LineDraft) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, reference string) (*TransitionResult, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
	ExpirePending(ctx context.Context, orderID uuid.UUID, reason string) (*TransitionResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	ListOrders(ctx context.Context, params ListParams) (*OrderList, error)
	CustomerStats(ctx context.Context, email string) (*CustomerStats, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error)
	ListPendingWindow(ctx context.Context, after, before time.Time, cursor *pagination.Cursor, limit int) ([]models.Order, error)
}

// ServiceParams wires the ledger.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Numbers  *NumberGenerator
	Currency string
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	numbers  *NumberGenerator
	currency string
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = NewNumberGenerator(DefaultNumberPrefix, now)
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "GHS"
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		numbers:  numbers,
		currency: currency,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func validateLines(lines []LineDraft) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one line")
	}
	for i, line := range lines {
		if strings.TrimSpace(line.ProductName) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "line product name is required").
				WithDetails(map[string]any{"line": i})
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive").
				WithDetails(map[string]any{"line": i, "quantity": line.Quantity})
		}
		if line.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "line unit price cannot be negative").
				WithDetails(map[string]any{"line": i})
		}
	}
	return nil
}

// CreateOrder persists the header and lines in one transaction. Totals are
// computed here from the supplied unit prices and never recomputed.
func (s *service) CreateOrder(ctx context.Context, draft OrderDraft, lines []LineDraft) (*models.Order, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft.CustomerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if draft.ShippingFee.IsNegative() || draft.Tax.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping fee and tax cannot be negative")
	}

	generated := strings.TrimSpace(draft.OrderNumber) == ""
	attempts := 1
	if generated {
		attempts = maxNumberAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		number := strings.TrimSpace(draft.OrderNumber)
		if generated {
			next, err := s.numbers.Next()
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
			}
			number = next
		}

		order, err := s.insert(ctx, number, draft, lines)
		if err == nil {
			return order, nil
		}
		if !isNumberCollision(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if !generated {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number already exists")
		}
		lastErr = err
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, lastErr, "could not allocate a unique order number")
}

func (s *service) insert(ctx context.Context, number string, draft OrderDraft, drafts []LineDraft) (*models.Order, error) {
	currency := strings.ToUpper(strings.TrimSpace(draft.Currency))
	if currency == "" {
		currency = s.currency
	}

	lines := make([]models.OrderLine, 0, len(drafts))
	subtotal := decimal.Zero
	for i, d := range drafts {
		unit := pricing.Round2(d.UnitPrice)
		lineTotal := pricing.Round2(unit.Mul(decimal.NewFromInt(int64(d.Quantity))))
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, models.OrderLine{
			ProductID:   d.ProductID,
			Position:    i,
			ProductName: strings.TrimSpace(d.ProductName),
			Quantity:    d.Quantity,
			UnitPrice:   unit,
			LineTotal:   lineTotal,
		})
	}
	shipping := pricing.Round2(draft.ShippingFee)
	tax := pricing.Round2(draft.Tax)

	order := &models.Order{
		OrderNumber:   number,
		CustomerID:    draft.CustomerID,
		CustomerName:  strings.TrimSpace(draft.CustomerName),
		CustomerEmail: strings.TrimSpace(draft.CustomerEmail),
		CustomerPhone: strings.TrimSpace(draft.CustomerPhone),
		Address:       strings.TrimSpace(draft.Address),
		Apartment:     draft.Apartment,
		City:          strings.TrimSpace(draft.City),
		Postcode:      draft.Postcode,
		Subtotal:      subtotal,
		ShippingFee:   shipping,
		Tax:           tax,
		Total:         subtotal.Add(shipping).Add(tax),
		Currency:      currency,
		Status:        enums.OrderStatusPendingPayment,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order, lines); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Email: order.CustomerEmail, Role: "customer"},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Email:       order.CustomerEmail,
				Total:       order.Total,
				Currency:    order.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
		s.logg.Info(s.logg.WithField(ctx, "total", order.Total.StringFixed(2)), "order created")
	}
	return order, nil
}

// UpdateStatus applies an administrative status change. Payment confirmation
// and cancellation are routed through MarkPaid and CancelOrder so their side
// effects stay consistent.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": status})
	}
	current, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if current.Status == status {
		if status == enums.OrderStatusProcessing {
			return current, nil
		}
		return nil, transitionError(current.Status, status)
	}
	if !CanTransition(current.Status, status) {
		return nil, transitionError(current.Status, status)
	}

	switch status {
	case enums.OrderStatusProcessing:
		result, err := s.MarkPaid(ctx, orderID, "")
		if err != nil {
			return nil, err
		}
		return result.Order, nil
	case enums.OrderStatusCancelled:
		return s.CancelOrder(ctx, orderID, "cancelled by admin")
	}

	var updated *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionStatus(ctx, orderID, current.Status, status, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently; reload and retry")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     orderID,
				OrderNumber: current.OrderNumber,
				From:        current.Status,
				To:          status,
			},
		}); err != nil {
			return err
		}
		updated, err = repo.FindByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, asTyped(err, "update order status")
	}

	s.logTransition(ctx, updated, current.Status)
	return updated, nil
}

// MarkPaid moves a Pending Payment order to Processing with a conditional
// update. Only the call that performs the transition queues order_paid; any
// later call observes Processing and reports Transitioned=false.
func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID, reference string) (*TransitionResult, error) {
	now := s.now()
	result := &TransitionResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{"paid_at": now}
		if ref := strings.TrimSpace(reference); ref != "" {
			updates["payment_reference"] = ref
		}
		ok, err := repo.TransitionStatus(ctx, orderID, enums.OrderStatusPendingPayment, enums.OrderStatusProcessing, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
		}

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		result.Order = order

		if !ok {
			if order.Status == enums.OrderStatusProcessing {
				return nil
			}
			return transitionError(order.Status, enums.OrderStatusProcessing)
		}

		result.Transitioned = true
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    now,
			Data:          paidEvent(order, now),
		})
	})
	if err != nil {
		return nil, asTyped(err, "mark order paid")
	}

	if result.Transitioned {
		s.logTransition(ctx, result.Order, enums.OrderStatusPendingPayment)
	}
	return result, nil
}

// CancelOrder cancels any non-terminal order.
func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	current, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, enums.OrderStatusCancelled) {
		return nil, transitionError(current.Status, enums.OrderStatusCancelled)
	}
	result, err := s.cancelFrom(ctx, current, reason)
	if err != nil {
		return nil, err
	}
	if !result.Transitioned {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently; reload and retry")
	}
	return result.Order, nil
}

// ExpirePending cancels the order only if it is still awaiting payment. An
// order paid in the meantime is left alone and reported as not transitioned.
func (s *service) ExpirePending(ctx context.Context, orderID uuid.UUID, reason string) (*TransitionResult, error) {
	current, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status != enums.OrderStatusPendingPayment {
		return &TransitionResult{Order: current}, nil
	}
	return s.cancelFrom(ctx, current, reason)
}

func (s *service) cancelFrom(ctx context.Context, current *models.Order, reason string) (*TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	updates := map[string]any{}
	if reason != "" {
		updates["cancel_reason"] = reason
	}
	now := s.now()
	result := &TransitionResult{Order: current}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionStatus(ctx, current.ID, current.Status, enums.OrderStatusCancelled, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
		}
		if !ok {
			return nil
		}
		result.Transitioned = true
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			OccurredAt:    now,
			Data: payloads.OrderCanceledEvent{
				OrderID:     current.ID,
				OrderNumber: current.OrderNumber,
				From:        current.Status,
				Reason:      reason,
				CanceledAt:  now,
			},
		}); err != nil {
			return err
		}
		result.Order, err = repo.FindByID(ctx, current.ID)
		return err
	})
	if err != nil {
		return nil, asTyped(err, "cancel order")
	}
	if result.Transitioned {
		s.logTransition(ctx, result.Order, current.Status)
	}
	return result, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	order, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"reference": number})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

// DeleteOrder removes the order and its lines.
func (s *service) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var found bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		found, err = s.repo.WithTx(tx).Delete(ctx, orderID)
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete order")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "order_id", orderID.String()), "order deleted")
	}
	return nil
}

func (s *service) ListOrders(ctx context.Context, params ListParams) (*OrderList, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if _, err := pagination.ParseCursor(params.Pagination.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	counts, err := s.repo.CountLines(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count order lines")
	}

	list := &OrderList{Orders: make([]OrderSummary, 0, len(rows))}
	for _, row := range rows {
		list.Orders = append(list.Orders, OrderSummary{
			ID:            row.ID,
			OrderNumber:   row.OrderNumber,
			CustomerName:  row.CustomerName,
			CustomerEmail: row.CustomerEmail,
			Total:         row.Total,
			Currency:      row.Currency,
			Status:        row.Status,
			ItemCount:     counts[row.ID],
			CreatedAt:     row.CreatedAt,
		})
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

// CustomerStats totals a customer's orders, ignoring cancelled ones.
func (s *service) CustomerStats(ctx context.Context, email string) (*CustomerStats, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	rows, err := s.repo.ListForCustomer(ctx, email, enums.OrderStatusCancelled)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer orders")
	}

	stats := &CustomerStats{Email: email, TotalSpent: decimal.Zero}
	for _, row := range rows {
		stats.OrderCount++
		stats.TotalSpent = stats.TotalSpent.Add(row.Total)
		created := row.CreatedAt
		if stats.FirstOrderAt == nil || created.Before(*stats.FirstOrderAt) {
			stats.FirstOrderAt = &created
		}
		if stats.LastOrderAt == nil || created.After(*stats.LastOrderAt) {
			stats.LastOrderAt = &created
		}
	}
	return stats, nil
}

func (s *service) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.ListPendingBefore(ctx, olderThan, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale pending orders")
	}
	return rows, nil
}

// ListPendingWindow pages Pending Payment orders created inside (after, before),
// newest first. Pass the last row of a page as the cursor for the next one.
func (s *service) ListPendingWindow(ctx context.Context, after, before time.Time, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	rows, err := s.repo.ListPendingBetween(ctx, after, before, cursor, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending orders")
	}
	return rows, nil
}

func (s *service) logTransition(ctx context.Context, order *models.Order, from enums.OrderStatus) {
	if s.logg == nil || order == nil {
		return
	}
	ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"from": from,
		"to":   order.Status,
	})
	s.logg.Info(ctx, "order status changed")
}

func isNumberCollision(err error) bool {
	return dbpkg.IsUniqueViolation(err, "ux_orders_order_number") ||
		dbpkg.IsUniqueViolation(err, "orders.order_number")
}

func transitionError(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func asTyped(err error, message string) error {
	return pkgerrors.FromDB(err, message)
}

func paidEvent(order *models.Order, paidAt time.Time) payloads.OrderPaidEvent {
	lines := make([]payloads.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, payloads.OrderLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}
	reference := order.OrderNumber
	if order.PaymentReference != nil {
		reference = *order.PaymentReference
	}
	return payloads.OrderPaidEvent{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerName: order.CustomerName,
		Email:        order.CustomerEmail,
		Lines:        lines,
		Subtotal:     order.Subtotal,
		ShippingFee:  order.ShippingFee,
		Tax:          order.Tax,
		Total:        order.Total,
		Currency:     order.Currency,
		Shipping: payloads.ShippingAddress{
			Address:   order.Address,
			Apartment: order.Apartment,
			City:      order.City,
			Postcode:  order.Postcode,
		},
		PaymentReference: reference,
		PaidAt:           paidAt,
	}
}
