package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/pagination"
	"github.com/kofabeauty/storefront-backend/pkg/pricing"
)

// Service exposes the public catalog with prices resolved at request time.
type Service interface {
	ListProducts(ctx context.Context, params ListParams) (*ProductListResult, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
}

type catalogReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, params ListParams) ([]models.Product, *pagination.Cursor, error)
}

type service struct {
	repo   catalogReader
	engine *pricing.Engine
}

// NewService constructs the catalog service.
func NewService(repo catalogReader, engine *pricing.Engine) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if engine == nil {
		engine = pricing.NewEngine(nil)
	}
	return &service{repo: repo, engine: engine}, nil
}

func (s *service) ListProducts(ctx context.Context, params ListParams) (*ProductListResult, error) {
	if _, err := pagination.ParseCursor(params.Pagination.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "list products")
	}

	result := &ProductListResult{Products: make([]ProductDTO, 0, len(rows))}
	for _, row := range rows {
		result.Products = append(result.Products, toDTO(row, s.engine.QuoteProduct(row)))
	}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.FromDB(err, "load product")
	}
	dto := toDTO(*row, s.engine.QuoteProduct(*row))
	return &dto, nil
}
