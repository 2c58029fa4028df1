package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kofabeauty/storefront-backend/pkg/enums"
)

// OrderLine is the receipt view of an order line carried in events.
type OrderLine struct {
	ProductID   *uuid.UUID      `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// ShippingAddress is the destination block of an order.
type ShippingAddress struct {
	Address   string  `json:"address"`
	Apartment *string `json:"apartment,omitempty"`
	City      string  `json:"city"`
	Postcode  *string `json:"postcode,omitempty"`
}

// OrderCreatedEvent records a new order awaiting payment.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Email       string          `json:"email"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
}

// OrderPaidEvent is emitted once, when gateway verification moves an order to
// Processing. It carries everything the confirmation email needs.
type OrderPaidEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	CustomerName     string          `json:"customer_name"`
	Email            string          `json:"email"`
	Lines            []OrderLine     `json:"lines"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	ShippingFee      decimal.Decimal `json:"shipping_fee"`
	Tax              decimal.Decimal `json:"tax"`
	Total            decimal.Decimal `json:"total"`
	Currency         string          `json:"currency"`
	Shipping         ShippingAddress `json:"shipping"`
	PaymentReference string          `json:"payment_reference"`
	PaidAt           time.Time       `json:"paid_at"`
}

// OrderStatusChangedEvent records an administrative status change.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
}

// OrderCanceledEvent records a cancellation, including abandoned checkouts.
type OrderCanceledEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	Reason      string            `json:"reason,omitempty"`
	CanceledAt  time.Time         `json:"canceled_at"`
}

// PromotionAppliedEvent summarizes a category-wide discount.
type PromotionAppliedEvent struct {
	Category   string      `json:"category"`
	Percentage int         `json:"percentage"`
	EndsAt     *time.Time  `json:"ends_at,omitempty"`
	ProductIDs []uuid.UUID `json:"product_ids"`
}

// PromotionClearedEvent summarizes a category-wide discount removal.
type PromotionClearedEvent struct {
	Category   string      `json:"category"`
	ProductIDs []uuid.UUID `json:"product_ids"`
}
