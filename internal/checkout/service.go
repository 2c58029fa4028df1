package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kofabeauty/storefront-backend/internal/checkout/helpers"
	"github.com/kofabeauty/storefront-backend/internal/orders"
	"github.com/kofabeauty/storefront-backend/pkg/checkout"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/metrics"
	"github.com/kofabeauty/storefront-backend/pkg/paystack"
	"github.com/kofabeauty/storefront-backend/pkg/pricing"
)

const defaultVerifyTimeout = 10 * time.Second

const supportMessage = "we could not confirm your payment; please contact support and quote your order reference"

// Verification failure reasons callers branch on.
const (
	ReasonNotSuccessful      = "not_successful"
	ReasonCancelledOrderPaid = "cancelled_order_paid"
)

// Confirmation sources recorded on the payments metric.
const (
	SourceCallback  = "callback"
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
)

type catalogReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type orderLedger interface {
	CreateOrder(ctx context.Context, draft orders.OrderDraft, lines []orders.LineDraft) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, reference string) (*orders.TransitionResult, error)
}

type paymentVerifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Verification, error)
}

// Service orchestrates checkout and payment confirmation.
type Service interface {
	Checkout(ctx context.Context, req Request) (*Session, error)
	ConfirmPayment(ctx context.Context, reference string) (*Confirmation, error)
	CancelPayment(ctx context.Context, reference string) (*orders.OrderDTO, error)
}

// Request is the checkout submission: contact, shipping and the cart snapshot.
type Request struct {
	CustomerID *uuid.UUID
	Contact    helpers.Contact
	Items      []helpers.CartItem
}

// Session is the data the client needs to open the payment popup.
type Session struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Reference   string          `json:"reference"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amount_minor"`
	Currency    string          `json:"currency"`
	Email       string          `json:"email"`
	PublicKey   string          `json:"public_key,omitempty"`
}

// Confirmation is the outcome of a payment confirmation attempt.
type Confirmation struct {
	Order            *orders.OrderDTO `json:"order"`
	AlreadyConfirmed bool             `json:"already_confirmed"`
}

// ServiceParams wires the orchestrator.
type ServiceParams struct {
	Catalog       catalogReader
	Orders        orderLedger
	Verifier      paymentVerifier
	Engine        *pricing.Engine
	ShippingFee   decimal.Decimal
	TaxRate       decimal.Decimal
	Currency      string
	PublicKey     string
	VerifyTimeout time.Duration
	Metrics       *metrics.StorefrontMetrics
	Logger        *logger.Logger
}

type service struct {
	catalog       catalogReader
	orders        orderLedger
	verifier      paymentVerifier
	engine        *pricing.Engine
	shippingFee   decimal.Decimal
	taxRate       decimal.Decimal
	currency      string
	publicKey     string
	verifyTimeout time.Duration
	metrics       *metrics.StorefrontMetrics
	logg          *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("payment verifier required")
	}
	if params.ShippingFee.IsNegative() {
		return nil, fmt.Errorf("shipping fee cannot be negative")
	}
	if params.TaxRate.IsNegative() || params.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tax rate must be between 0 and 1")
	}
	engine := params.Engine
	if engine == nil {
		engine = pricing.NewEngine(nil)
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "GHS"
	}
	timeout := params.VerifyTimeout
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &service{
		catalog:       params.Catalog,
		orders:        params.Orders,
		verifier:      params.Verifier,
		engine:        engine,
		shippingFee:   params.ShippingFee,
		taxRate:       params.TaxRate,
		currency:      currency,
		publicKey:     params.PublicKey,
		verifyTimeout: timeout,
		metrics:       params.Metrics,
		logg:          params.Logger,
	}, nil
}

// Checkout prices the cart against the catalog at this instant and records a
// Pending Payment order. The returned reference is the order number.
func (s *service) Checkout(ctx context.Context, req Request) (*Session, error) {
	contact, err := helpers.ValidateContact(req.Contact)
	if err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	ids := make([]uuid.UUID, 0, len(req.Items))
	for i, item := range req.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required").
				WithDetails(map[string]any{"item": i})
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"item": i, "quantity": item.Quantity})
		}
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "load cart products")
	}

	lines := make([]helpers.PricedLine, 0, len(req.Items))
	stock := make([]checkout.StockValidationInput, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product not found").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		line := helpers.PriceLine(s.engine, product, item)
		if line.Drifted() && s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"product_id":     product.ID.String(),
				"reported_price": line.ReportedPrice.StringFixed(2),
				"charged_price":  line.UnitPrice.StringFixed(2),
			})
			s.logg.Warn(logCtx, "cart price differs from catalog price")
		}
		lines = append(lines, line)
		stock = append(stock, checkout.StockValidationInput{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.Stock,
			Quantity:    item.Quantity,
		})
	}
	if err := helpers.ValidateStock(mergeStock(stock)); err != nil {
		return nil, err
	}

	totals := helpers.ComputeTotals(lines, s.shippingFee, s.taxRate)

	drafts := make([]orders.LineDraft, 0, len(lines))
	for _, line := range lines {
		productID := line.Product.ID
		drafts = append(drafts, orders.LineDraft{
			ProductID:   &productID,
			ProductName: line.Product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}

	order, err := s.orders.CreateOrder(ctx, orders.OrderDraft{
		CustomerID:    req.CustomerID,
		CustomerName:  contact.FullName(),
		CustomerEmail: contact.Email,
		CustomerPhone: contact.Phone,
		Address:       contact.Address,
		Apartment:     contact.Apartment,
		City:          contact.City,
		Postcode:      contact.Postcode,
		ShippingFee:   totals.ShippingFee,
		Tax:           totals.Tax,
		Currency:      s.currency,
	}, drafts)
	if err != nil {
		return nil, err
	}
	s.metrics.IncOrdersCreated()

	return &Session{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Reference:   order.OrderNumber,
		Amount:      order.Total,
		AmountMinor: pricing.ToMinorUnits(order.Total),
		Currency:    order.Currency,
		Email:       order.CustomerEmail,
		PublicKey:   s.publicKey,
	}, nil
}

// ConfirmPayment verifies the reference with the gateway and, on success,
// moves the order to Processing. Repeated confirmations are harmless: the
// ledger only transitions once.
func (s *service) ConfirmPayment(ctx context.Context, reference string) (*Confirmation, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	order, err := s.orders.GetOrderByNumber(ctx, reference)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	}

	if order.Status.IsPaid() {
		return &Confirmation{Order: orders.ToDTO(order), AlreadyConfirmed: true}, nil
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, s.checkCancelled(ctx, order)
	}

	if err := s.verify(ctx, order); err != nil {
		return nil, err
	}

	result, err := s.orders.MarkPaid(ctx, order.ID, reference)
	if err != nil {
		return nil, err
	}
	if result.Transitioned {
		s.metrics.IncPaymentConfirmed(sourceFromContext(ctx))
	}
	return &Confirmation{Order: orders.ToDTO(result.Order), AlreadyConfirmed: !result.Transitioned}, nil
}

func (s *service) verify(ctx context.Context, order *models.Order) error {
	verifyCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	verification, err := s.verifier.VerifyTransaction(verifyCtx, order.OrderNumber)
	if err != nil {
		reason := "gateway_error"
		if verifyCtx.Err() != nil {
			reason = "timeout"
		}
		return s.unverified(ctx, order, reason, err)
	}
	if !verification.Successful() {
		return s.unverified(ctx, order, ReasonNotSuccessful, fmt.Errorf("gateway status %q: %s", verification.TxStatus, verification.GatewayResponse))
	}
	if verification.Reference != "" && verification.Reference != order.OrderNumber {
		return s.unverified(ctx, order, "reference_mismatch", fmt.Errorf("gateway reference %q", verification.Reference))
	}
	if expected := pricing.ToMinorUnits(order.Total); verification.AmountMinor != expected {
		return s.unverified(ctx, order, "amount_mismatch", fmt.Errorf("gateway amount %d, expected %d", verification.AmountMinor, expected))
	}
	if verification.Currency != "" && !strings.EqualFold(verification.Currency, order.Currency) {
		return s.unverified(ctx, order, "currency_mismatch", fmt.Errorf("gateway currency %q", verification.Currency))
	}
	return nil
}

// checkCancelled still asks the gateway about a cancelled order. A captured
// charge against it needs a refund or a manual reinstatement, so it surfaces as
// an unverified payment rather than a plain state conflict.
func (s *service) checkCancelled(ctx context.Context, order *models.Order) error {
	conflict := pkgerrors.New(pkgerrors.CodeStateConflict, "order was cancelled before payment was confirmed").
		WithDetails(map[string]any{"reference": order.OrderNumber, "status": order.Status})

	verifyCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	verification, err := s.verifier.VerifyTransaction(verifyCtx, order.OrderNumber)
	if err != nil {
		reason := "gateway_error"
		if verifyCtx.Err() != nil {
			reason = "timeout"
		}
		return s.unverified(ctx, order, reason, err)
	}
	if !verification.Successful() {
		return conflict
	}
	return s.unverified(ctx, order, ReasonCancelledOrderPaid,
		fmt.Errorf("gateway captured %d %s for an order cancelled as %q", verification.AmountMinor, verification.Currency, cancelReason(order)))
}

// FailureReason extracts the verification reason from a PaymentUnverified error.
func FailureReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodePaymentUnverified {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}

func cancelReason(order *models.Order) string {
	if order.CancelReason == nil {
		return ""
	}
	return *order.CancelReason
}

func (s *service) unverified(ctx context.Context, order *models.Order, reason string, cause error) error {
	s.metrics.IncVerificationFailure(reason)
	if s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "reason", reason), "payment verification failed", cause)
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentUnverified, cause, supportMessage).
		WithDetails(map[string]any{"reference": order.OrderNumber, "reason": reason})
}

// CancelPayment records that the customer closed the payment popup. The order
// stays in Pending Payment so a late gateway success can still confirm it.
func (s *service) CancelPayment(ctx context.Context, reference string) (*orders.OrderDTO, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	order, err := s.orders.GetOrderByNumber(ctx, reference)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderNumber(ctx, order.OrderNumber), "payment window closed by customer")
	}
	return orders.ToDTO(order), nil
}

func mergeStock(items []checkout.StockValidationInput) []checkout.StockValidationInput {
	index := make(map[uuid.UUID]int, len(items))
	out := make([]checkout.StockValidationInput, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}

type sourceKey struct{}

// WithSource tags the context with where a confirmation came from.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFromContext(ctx context.Context) string {
	if source, ok := ctx.Value(sourceKey{}).(string); ok && source != "" {
		return source
	}
	return SourceCallback
}
