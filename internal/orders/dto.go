package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	"github.com/kofabeauty/storefront-backend/pkg/pagination"
)

// OrderDraft carries the header of an order before it is persisted. An empty
// OrderNumber is filled by the generator.
type OrderDraft struct {
	OrderNumber   string
	CustomerID    *uuid.UUID
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Address       string
	Apartment     *string
	City          string
	Postcode      *string
	ShippingFee   decimal.Decimal
	Tax           decimal.Decimal
	Currency      string
}

// LineDraft is one priced line. UnitPrice is the effective price already
// resolved by the caller.
type LineDraft struct {
	ProductID   *uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// TransitionResult reports whether a conditional status change actually happened.
type TransitionResult struct {
	Order        *models.Order
	Transitioned bool
}

// ListParams filters the admin order listing.
type ListParams struct {
	Status     *enums.OrderStatus
	Email      string
	Pagination pagination.Params
}

// OrderSummary is the admin list row.
type OrderSummary struct {
	ID            uuid.UUID         `json:"id"`
	OrderNumber   string            `json:"order_number"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	Total         decimal.Decimal   `json:"total"`
	Currency      string            `json:"currency"`
	Status        enums.OrderStatus `json:"status"`
	ItemCount     int               `json:"item_count"`
	CreatedAt     time.Time         `json:"created_at"`
}

// OrderList is one page of the admin order listing.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// CustomerStats aggregates a customer's non-cancelled orders.
type CustomerStats struct {
	Email        string          `json:"email"`
	OrderCount   int             `json:"order_count"`
	TotalSpent   decimal.Decimal `json:"total_spent"`
	FirstOrderAt *time.Time      `json:"first_order_at,omitempty"`
	LastOrderAt  *time.Time      `json:"last_order_at,omitempty"`
}

// LineDTO is the receipt view of an order line.
type LineDTO struct {
	ProductID   *uuid.UUID      `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// OrderDTO is the full order view returned by the API.
type OrderDTO struct {
	ID               uuid.UUID         `json:"id"`
	OrderNumber      string            `json:"order_number"`
	CustomerName     string            `json:"customer_name"`
	CustomerEmail    string            `json:"customer_email"`
	CustomerPhone    string            `json:"customer_phone"`
	Address          string            `json:"address"`
	Apartment        *string           `json:"apartment,omitempty"`
	City             string            `json:"city"`
	Postcode         *string           `json:"postcode,omitempty"`
	Lines            []LineDTO         `json:"lines"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	ShippingFee      decimal.Decimal   `json:"shipping_fee"`
	Tax              decimal.Decimal   `json:"tax"`
	Total            decimal.Decimal   `json:"total"`
	Currency         string            `json:"currency"`
	Status           enums.OrderStatus `json:"status"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	CancelReason     *string           `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ToDTO maps a persisted order to its API view.
func ToDTO(order *models.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	dto := &OrderDTO{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		CustomerName:     order.CustomerName,
		CustomerEmail:    order.CustomerEmail,
		CustomerPhone:    order.CustomerPhone,
		Address:          order.Address,
		Apartment:        order.Apartment,
		City:             order.City,
		Postcode:         order.Postcode,
		Lines:            make([]LineDTO, 0, len(order.Lines)),
		Subtotal:         order.Subtotal,
		ShippingFee:      order.ShippingFee,
		Tax:              order.Tax,
		Total:            order.Total,
		Currency:         order.Currency,
		Status:           order.Status,
		PaymentReference: order.PaymentReference,
		PaidAt:           order.PaidAt,
		CancelReason:     order.CancelReason,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	for _, line := range order.Lines {
		dto.Lines = append(dto.Lines, LineDTO{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}
	return dto
}
