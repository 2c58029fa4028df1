package helpers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/pricing"
)

// CartItem is one line of the client's cart snapshot. ReportedPrice is what
// the client displayed and is never charged.
type CartItem struct {
	ProductID     uuid.UUID
	Quantity      int
	ReportedPrice *decimal.Decimal
}

// PricedLine is a cart item resolved against the catalog at checkout time.
type PricedLine struct {
	Product       models.Product
	Quantity      int
	UnitPrice     decimal.Decimal
	LineTotal     decimal.Decimal
	ReportedPrice *decimal.Decimal
}

// Drifted reports whether the client saw a different unit price than the one charged.
func (l PricedLine) Drifted() bool {
	return l.ReportedPrice != nil && !pricing.Round2(*l.ReportedPrice).Equal(l.UnitPrice)
}

// Totals is the money breakdown of a checkout.
type Totals struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

// ComputeTotals sums line totals and applies the fixed fee and tax rate.
func ComputeTotals(lines []PricedLine, shippingFee, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal)
	}
	fee := pricing.Round2(shippingFee)
	tax := pricing.Round2(subtotal.Mul(taxRate))
	return Totals{
		Subtotal:    subtotal,
		ShippingFee: fee,
		Tax:         tax,
		Total:       subtotal.Add(fee).Add(tax),
	}
}

// PriceLine resolves one cart item against its product using the engine's clock.
func PriceLine(engine *pricing.Engine, product models.Product, item CartItem) PricedLine {
	unit := pricing.Round2(engine.EffectivePrice(pricing.FromProduct(product)))
	return PricedLine{
		Product:       product,
		Quantity:      item.Quantity,
		UnitPrice:     unit,
		LineTotal:     pricing.Round2(unit.Mul(decimal.NewFromInt(int64(item.Quantity)))),
		ReportedPrice: item.ReportedPrice,
	}
}
