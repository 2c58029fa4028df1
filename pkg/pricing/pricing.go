// Package pricing resolves the price a catalog item sells for at a given instant.
//
// All functions are pure: the current time is always passed in, either
// explicitly or through an Engine clock.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kofabeauty/storefront-backend/pkg/db/models"
)

// Places is the number of decimal places money is rounded to.
const Places = 2

var hundred = decimal.NewFromInt(100)

// expiryLayouts are tried in order when reading a stored sale expiry.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Item is the pricing view of a catalog item. SaleEnd is the raw stored expiry;
// an empty string means the sale never expires.
type Item struct {
	BasePrice decimal.Decimal
	SalePrice *decimal.Decimal
	SaleEnd   string
}

// FromProduct builds the pricing view of a persisted product.
func FromProduct(p models.Product) Item {
	item := Item{BasePrice: p.Price, SalePrice: p.SalePrice}
	if p.SaleEndDate != nil {
		item.SaleEnd = p.SaleEndDate.UTC().Format(time.RFC3339Nano)
	}
	return item
}

// ParseExpiry reads a stored sale expiry. ok is false when the value is
// present but cannot be parsed.
func ParseExpiry(raw string) (t time.Time, present bool, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false, true
	}
	for _, layout := range expiryLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, true, true
		}
	}
	return time.Time{}, true, false
}

// IsSaleActive reports whether the item's sale price applies at now.
//
// A sale price at or above the base price is never active. An expiry that
// cannot be parsed is treated as expired. The expiry instant itself is still
// inside the sale window.
func IsSaleActive(item Item, now time.Time) bool {
	if item.SalePrice == nil {
		return false
	}
	if item.SalePrice.GreaterThanOrEqual(item.BasePrice) {
		return false
	}
	expiry, present, ok := ParseExpiry(item.SaleEnd)
	if !ok {
		return false
	}
	if !present {
		return true
	}
	return !now.After(expiry)
}

// EffectivePrice returns the sale price while the sale is active, otherwise
// the base price.
func EffectivePrice(item Item, now time.Time) decimal.Decimal {
	if IsSaleActive(item, now) {
		return *item.SalePrice
	}
	return item.BasePrice
}

// DiscountedPrice applies a whole-number percentage discount to base and
// rounds half-up to two places. The result is always derived from base, so
// repeated application never compounds.
func DiscountedPrice(base decimal.Decimal, percentage int) decimal.Decimal {
	multiplier := hundred.Sub(decimal.NewFromInt(int64(percentage)))
	return base.Mul(multiplier).Div(hundred).Round(Places)
}

// Round2 rounds an amount half-up to two places.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Places)
}

// ToMinorUnits converts an amount to the gateway's minor unit (pesewas, cents).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts a gateway minor-unit amount back to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -Places)
}
