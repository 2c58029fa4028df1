package controllers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/kofabeauty/storefront-backend/api/responses"
	"github.com/kofabeauty/storefront-backend/api/validators"
	"github.com/kofabeauty/storefront-backend/internal/promotions"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
)

type promotionRequest struct {
	Category   string                    `json:"category" validate:"required"`
	Percentage int                       `json:"percentage" validate:"min=1,max=100"`
	Duration   *promotionDurationRequest `json:"duration,omitempty"`
}

type promotionDurationRequest struct {
	Value int    `json:"value" validate:"min=1,max=87600"`
	Unit  string `json:"unit" validate:"oneof=hours days"`
}

// AdminApplyPromotion discounts a whole category. A rolled back batch is
// reported with its itemized result next to the error.
func AdminApplyPromotion(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}

		var payload promotionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		promo := promotions.Promotion{
			Category:   validators.SanitizeString(payload.Category, 100),
			Percentage: payload.Percentage,
		}
		if payload.Duration != nil {
			promo.Duration = &promotions.Duration{
				Value: payload.Duration.Value,
				Unit:  enums.DurationUnit(payload.Duration.Unit),
			}
		}

		result, err := svc.ApplyPromotion(r.Context(), promo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminClearPromotion removes sale prices from a category.
func AdminClearPromotion(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}
		category, err := url.PathUnescape(chi.URLParam(r, "category"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
			return
		}

		result, err := svc.ClearPromotion(r.Context(), validators.SanitizeString(category, 100))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminActivePromotions(svc promotions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}
		active, err := svc.ActivePromotions(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"promotions": active})
	}
}
