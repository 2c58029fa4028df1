package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/pricing"
)

// ProductDTO is the storefront view of a catalog item with its resolved price.
type ProductDTO struct {
	ID             uuid.UUID        `json:"id"`
	Name           string           `json:"name"`
	Description    *string          `json:"description,omitempty"`
	Category       string           `json:"category"`
	Price          decimal.Decimal  `json:"price"`
	SalePrice      *decimal.Decimal `json:"sale_price,omitempty"`
	SaleEndDate    *time.Time       `json:"sale_end_date,omitempty"`
	EffectivePrice decimal.Decimal  `json:"effective_price"`
	OnSale         bool             `json:"on_sale"`
	Stock          int              `json:"stock"`
	InStock        bool             `json:"in_stock"`
	ImageURL       *string          `json:"image_url,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ProductListResult is one page of the catalog.
type ProductListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func toDTO(p models.Product, quote pricing.Quote) ProductDTO {
	dto := ProductDTO{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Category:       p.Category,
		Price:          p.Price,
		EffectivePrice: quote.EffectivePrice,
		OnSale:         quote.OnSale,
		Stock:          p.Stock,
		InStock:        p.Stock > 0,
		ImageURL:       p.ImageURL,
		CreatedAt:      p.CreatedAt,
	}
	// an inactive sale price is not advertised
	if quote.OnSale {
		dto.SalePrice = p.SalePrice
		dto.SaleEndDate = p.SaleEndDate
	}
	return dto
}
