package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kofabeauty/storefront-backend/pkg/enums"
)

// Order is a customer order. OrderNumber doubles as the payment gateway
// reference and never changes once assigned.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber      string            `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID       *uuid.UUID        `gorm:"column:customer_id;type:uuid"`
	CustomerName     string            `gorm:"column:customer_name;not null"`
	CustomerEmail    string            `gorm:"column:customer_email;not null"`
	CustomerPhone    string            `gorm:"column:customer_phone;not null"`
	Address          string            `gorm:"column:shipping_address;not null"`
	Apartment        *string           `gorm:"column:shipping_apartment"`
	City             string            `gorm:"column:shipping_city;not null"`
	Postcode         *string           `gorm:"column:shipping_postcode"`
	Subtotal         decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingFee      decimal.Decimal   `gorm:"column:shipping_fee;type:numeric(12,2);not null;default:0"`
	Tax              decimal.Decimal   `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	Total            decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Currency         string            `gorm:"column:currency;not null;default:'GHS'"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'Pending Payment'"`
	PaymentReference *string           `gorm:"column:payment_reference"`
	PaidAt           *time.Time        `gorm:"column:paid_at"`
	CancelReason     *string           `gorm:"column:cancel_reason"`
	Lines            []OrderLine       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// LineValue sums unit price times quantity across the order's lines.
func (o Order) LineValue() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}
