package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kofabeauty/storefront-backend/pkg/db/models"
)

// Clock returns the current instant.
type Clock func() time.Time

// Engine evaluates prices against an injected clock.
type Engine struct {
	now Clock
}

// NewEngine builds an Engine. A nil clock uses time.Now in UTC.
func NewEngine(clock Clock) *Engine {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{now: clock}
}

func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) IsSaleActive(item Item) bool {
	return IsSaleActive(item, e.now())
}

func (e *Engine) EffectivePrice(item Item) decimal.Decimal {
	return EffectivePrice(item, e.now())
}

// Quote is the resolved price of a product at one instant.
type Quote struct {
	BasePrice      decimal.Decimal
	EffectivePrice decimal.Decimal
	OnSale         bool
}

// QuoteProduct resolves a product's price. OnSale and EffectivePrice come
// from the same evaluation instant so they can never disagree.
func (e *Engine) QuoteProduct(p models.Product) Quote {
	now := e.now()
	item := FromProduct(p)
	active := IsSaleActive(item, now)
	price := item.BasePrice
	if active {
		price = *item.SalePrice
	}
	return Quote{BasePrice: item.BasePrice, EffectivePrice: price, OnSale: active}
}
