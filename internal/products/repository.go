package product

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/pagination"
)

// Repository reads the catalog and applies targeted sale updates.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// FindByID loads a single product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads the requested products keyed by id. Missing ids are simply
// absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// ListByCategory returns every product in the category, oldest first.
func (r *Repository) ListByCategory(ctx context.Context, category string) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("category = ?", category).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListWithSaleFields returns products that carry a sale price or a sale end
// date, optionally restricted to one category.
func (r *Repository) ListWithSaleFields(ctx context.Context, category string) ([]models.Product, error) {
	query := r.db.WithContext(ctx).
		Where("sale_price IS NOT NULL OR sale_end_date IS NOT NULL")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var rows []models.Product
	err := query.Order("category ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}

// ListParams filters the public catalog listing.
type ListParams struct {
	Category   string
	Pagination pagination.Params
}

// List pages through the catalog newest first.
func (r *Repository) List(ctx context.Context, params ListParams) ([]models.Product, *pagination.Cursor, error) {
	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, nil, err
	}
	limit := pagination.NormalizeLimit(params.Pagination.Limit)

	query := r.db.WithContext(ctx).Model(&models.Product{})
	if category := strings.TrimSpace(params.Category); category != "" {
		query = query.Where("category = ?", category)
	}

	var rows []models.Product
	if err := pagination.Keyset(query, cursor).
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	rows, next := pagination.Trim(rows, limit, func(row models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}

// UpdateSale writes only the sale columns of one product and reports whether
// the row existed.
func (r *Repository) UpdateSale(ctx context.Context, id uuid.UUID, salePrice *decimal.Decimal, saleEnd *time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sale_price":    salePrice,
			"sale_end_date": saleEnd,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
