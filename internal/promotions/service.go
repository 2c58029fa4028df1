package promotions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	product "github.com/kofabeauty/storefront-backend/internal/products"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/metrics"
	"github.com/kofabeauty/storefront-backend/pkg/outbox"
	"github.com/kofabeauty/storefront-backend/pkg/outbox/payloads"
	"github.com/kofabeauty/storefront-backend/pkg/pricing"
)

// Service applies and clears category-wide sale prices.
type Service interface {
	ApplyPromotion(ctx context.Context, promo Promotion) (*Result, error)
	ClearPromotion(ctx context.Context, category string) (*Result, error)
	ActivePromotions(ctx context.Context) ([]ActivePromotion, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type catalogStore interface {
	ListByCategory(ctx context.Context, category string) ([]models.Product, error)
	ListWithSaleFields(ctx context.Context, category string) ([]models.Product, error)
	UpdateSale(ctx context.Context, id uuid.UUID, salePrice *decimal.Decimal, saleEnd *time.Time) (bool, error)
}

// ServiceParams wires the promotion service.
type ServiceParams struct {
	DB      txRunner
	Repo    *product.Repository
	Outbox  outboxEmitter
	Engine  *pricing.Engine
	Logger  *logger.Logger
	Metrics *metrics.StorefrontMetrics
}

type service struct {
	db      txRunner
	repo    catalogStore
	bind    func(tx *gorm.DB) catalogStore
	outbox  outboxEmitter
	engine  *pricing.Engine
	logg    *logger.Logger
	metrics *metrics.StorefrontMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	engine := params.Engine
	if engine == nil {
		engine = pricing.NewEngine(nil)
	}
	repo := params.Repo
	return &service{
		db:      params.DB,
		repo:    repo,
		bind:    func(tx *gorm.DB) catalogStore { return repo.WithTx(tx) },
		outbox:  params.Outbox,
		engine:  engine,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func validatePromotion(promo Promotion) (Promotion, error) {
	promo.Category = strings.TrimSpace(promo.Category)
	if promo.Category == "" {
		return promo, pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}
	if promo.Percentage < 1 || promo.Percentage > 100 {
		return promo, pkgerrors.New(pkgerrors.CodeValidation, "percentage must be between 1 and 100").
			WithDetails(map[string]any{"percentage": promo.Percentage})
	}
	if promo.Duration != nil {
		if promo.Duration.Value <= 0 {
			return promo, pkgerrors.New(pkgerrors.CodeValidation, "duration value must be positive")
		}
		if !promo.Duration.Unit.IsValid() {
			return promo, pkgerrors.New(pkgerrors.CodeValidation, "duration unit must be hours or days").
				WithDetails(map[string]any{"unit": promo.Duration.Unit})
		}
		if int64(promo.Duration.Value) > int64(MaxDuration/promo.Duration.Unit.Span()) {
			return promo, pkgerrors.New(pkgerrors.CodeValidation, "duration must not exceed 3650 days").
				WithDetails(map[string]any{"value": promo.Duration.Value, "unit": promo.Duration.Unit})
		}
	}
	return promo, nil
}

// ApplyPromotion discounts every item in the category from its base price.
// The batch is one transaction; each item update runs under its own savepoint
// so failures are reported per item before the whole batch is rolled back.
func (s *service) ApplyPromotion(ctx context.Context, promo Promotion) (*Result, error) {
	promo, err := validatePromotion(promo)
	if err != nil {
		return nil, err
	}

	now := s.engine.Now()
	var endsAt *time.Time
	if promo.Duration != nil {
		end := now.Add(promo.Duration.Span())
		endsAt = &end
	}

	result := &Result{Category: promo.Category, EndsAt: endsAt, Succeeded: []uuid.UUID{}, Failed: []ItemFailure{}}
	txErr := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.bind(tx)
		items, err := repo.ListByCategory(ctx, promo.Category)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load category items")
		}
		if len(items) == 0 {
			result.Warning = warningNoItems
			return nil
		}

		var errs []error
		for _, item := range items {
			salePrice := pricing.DiscountedPrice(item.Price, promo.Percentage)
			if err := s.updateItem(ctx, tx, item.ID, &salePrice, endsAt); err != nil {
				result.Failed = append(result.Failed, ItemFailure{ProductID: item.ID, Error: err.Error()})
				errs = append(errs, fmt.Errorf("product %s: %w", item.ID, err))
				continue
			}
			result.Succeeded = append(result.Succeeded, item.ID)
		}
		if len(errs) > 0 {
			return multierr.Combine(errs...)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPromotionApplied,
			AggregateType: enums.AggregatePromotion,
			AggregateID:   aggregateID(promo.Category),
			OccurredAt:    now,
			Data: payloads.PromotionAppliedEvent{
				Category:   promo.Category,
				Percentage: promo.Percentage,
				EndsAt:     endsAt,
				ProductIDs: result.Succeeded,
			},
		})
	})

	ctx = s.withFields(ctx, promo.Category)
	if txErr != nil {
		if len(result.Failed) > 0 {
			result.RolledBack = true
			s.warn(ctx, "promotion batch rolled back", txErr)
			return result, pkgerrors.Wrap(pkgerrors.CodeInternal, txErr, "promotion could not be applied to every item").
				WithDetails(map[string]any{"failed": result.Failed})
		}
		return nil, asTyped(txErr, "apply promotion")
	}

	result.Affected = len(result.Succeeded)
	s.metrics.AddPromotionItems("apply", result.Affected)
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"percentage": promo.Percentage,
			"affected":   result.Affected,
		}), "promotion applied")
	}
	return result, nil
}

// ClearPromotion removes sale prices from the category. Nothing on sale is a no-op.
func (s *service) ClearPromotion(ctx context.Context, category string) (*Result, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}

	result := &Result{Category: category, Succeeded: []uuid.UUID{}, Failed: []ItemFailure{}}
	txErr := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.bind(tx)
		items, err := repo.ListWithSaleFields(ctx, category)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load discounted items")
		}
		if len(items) == 0 {
			return nil
		}

		var errs []error
		for _, item := range items {
			if err := s.updateItem(ctx, tx, item.ID, nil, nil); err != nil {
				result.Failed = append(result.Failed, ItemFailure{ProductID: item.ID, Error: err.Error()})
				errs = append(errs, fmt.Errorf("product %s: %w", item.ID, err))
				continue
			}
			result.Succeeded = append(result.Succeeded, item.ID)
		}
		if len(errs) > 0 {
			return multierr.Combine(errs...)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPromotionCleared,
			AggregateType: enums.AggregatePromotion,
			AggregateID:   aggregateID(category),
			OccurredAt:    s.engine.Now(),
			Data: payloads.PromotionClearedEvent{
				Category:   category,
				ProductIDs: result.Succeeded,
			},
		})
	})

	ctx = s.withFields(ctx, category)
	if txErr != nil {
		if len(result.Failed) > 0 {
			result.RolledBack = true
			s.warn(ctx, "promotion clear rolled back", txErr)
			return result, pkgerrors.Wrap(pkgerrors.CodeInternal, txErr, "promotion could not be cleared from every item").
				WithDetails(map[string]any{"failed": result.Failed})
		}
		return nil, asTyped(txErr, "clear promotion")
	}

	result.Affected = len(result.Succeeded)
	s.metrics.AddPromotionItems("clear", result.Affected)
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "affected", result.Affected), "promotion cleared")
	}
	return result, nil
}

// ActivePromotions groups the items whose sale price applies right now by category.
func (s *service) ActivePromotions(ctx context.Context) ([]ActivePromotion, error) {
	rows, err := s.repo.ListWithSaleFields(ctx, "")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load discounted items")
	}

	now := s.engine.Now()
	byCategory := map[string]*ActivePromotion{}
	for _, row := range rows {
		if !pricing.IsSaleActive(pricing.FromProduct(row), now) {
			continue
		}
		entry, ok := byCategory[row.Category]
		if !ok {
			entry = &ActivePromotion{Category: row.Category}
			byCategory[row.Category] = entry
		}
		entry.Items++
		if row.SaleEndDate == nil {
			entry.Indefinite = true
			continue
		}
		if entry.EarliestExpiry == nil || row.SaleEndDate.Before(*entry.EarliestExpiry) {
			end := *row.SaleEndDate
			entry.EarliestExpiry = &end
		}
	}

	out := make([]ActivePromotion, 0, len(byCategory))
	for _, entry := range byCategory {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

var errItemMissing = errors.New("product no longer exists")

func (s *service) updateItem(ctx context.Context, tx *gorm.DB, id uuid.UUID, salePrice *decimal.Decimal, saleEnd *time.Time) error {
	return tx.Transaction(func(sp *gorm.DB) error {
		ok, err := s.bind(sp).UpdateSale(ctx, id, salePrice, saleEnd)
		if err != nil {
			return err
		}
		if !ok {
			return errItemMissing
		}
		return nil
	})
}

func (s *service) withFields(ctx context.Context, category string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithField(ctx, "category", category)
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func asTyped(err error, message string) error {
	return pkgerrors.FromDB(err, message)
}
