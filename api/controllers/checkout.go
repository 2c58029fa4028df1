package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kofabeauty/storefront-backend/api/responses"
	"github.com/kofabeauty/storefront-backend/api/validators"
	checkoutsvc "github.com/kofabeauty/storefront-backend/internal/checkout"
	"github.com/kofabeauty/storefront-backend/internal/checkout/helpers"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
)

type checkoutRequest struct {
	CustomerID *string               `json:"customerId,omitempty" validate:"omitempty,uuid"`
	Email      string                `json:"email"`
	FirstName  string                `json:"firstName"`
	LastName   string                `json:"lastName"`
	Phone      string                `json:"phone"`
	Address    string                `json:"address"`
	Apartment  *string               `json:"apartment,omitempty"`
	City       string                `json:"city"`
	Postcode   *string               `json:"postcode,omitempty"`
	Items      []checkoutItemRequest `json:"items" validate:"dive"`
}

type checkoutItemRequest struct {
	ProductID string           `json:"productId" validate:"required,uuid"`
	Quantity  int              `json:"quantity" validate:"min=1"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

func (c checkoutRequest) toServiceRequest() checkoutsvc.Request {
	req := checkoutsvc.Request{
		Contact: helpers.Contact{
			Email:     c.Email,
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Phone:     c.Phone,
			Address:   c.Address,
			Apartment: c.Apartment,
			City:      c.City,
			Postcode:  c.Postcode,
		},
		Items: make([]helpers.CartItem, 0, len(c.Items)),
	}
	if c.CustomerID != nil {
		if id, err := uuid.Parse(*c.CustomerID); err == nil {
			req.CustomerID = &id
		}
	}
	for _, item := range c.Items {
		// validated as a uuid by the body validator
		id, _ := uuid.Parse(item.ProductID)
		req.Items = append(req.Items, helpers.CartItem{
			ProductID:     id,
			Quantity:      item.Quantity,
			ReportedPrice: item.Price,
		})
	}
	return req
}

// Checkout creates a Pending Payment order and returns the payment popup session.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Checkout(r.Context(), payload.toServiceRequest())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// CheckoutConfirm handles the popup success callback. The gateway is asked
// for the outcome; the client's word is never taken for it.
func CheckoutConfirm(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		reference, err := referenceParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := checkoutsvc.WithSource(r.Context(), checkoutsvc.SourceCallback)
		if logg != nil {
			ctx = logg.WithOrderNumber(ctx, reference)
		}
		confirmation, err := svc.ConfirmPayment(ctx, reference)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmation)
	}
}

// CheckoutCancel records that the customer closed the popup. The order stays
// Pending Payment.
func CheckoutCancel(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		reference, err := referenceParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CancelPayment(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func referenceParam(r *http.Request) (string, error) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	return reference, nil
}
