package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kofabeauty/storefront-backend/api/responses"
	"github.com/kofabeauty/storefront-backend/api/validators"
	internalorders "github.com/kofabeauty/storefront-backend/internal/orders"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/pagination"
)

// receipt is what a customer sees for an order number; contact details stay
// behind the admin surface.
type receipt struct {
	OrderNumber  string                   `json:"order_number"`
	Status       enums.OrderStatus        `json:"status"`
	CustomerName string                   `json:"customer_name"`
	City         string                   `json:"city"`
	Lines        []internalorders.LineDTO `json:"lines"`
	Subtotal     decimal.Decimal          `json:"subtotal"`
	ShippingFee  decimal.Decimal          `json:"shipping_fee"`
	Tax          decimal.Decimal          `json:"tax"`
	Total        decimal.Decimal          `json:"total"`
	Currency     string                   `json:"currency"`
	PaidAt       *time.Time               `json:"paid_at,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
}

func newReceipt(order *models.Order) receipt {
	dto := internalorders.ToDTO(order)
	return receipt{
		OrderNumber:  dto.OrderNumber,
		Status:       dto.Status,
		CustomerName: dto.CustomerName,
		City:         dto.City,
		Lines:        dto.Lines,
		Subtotal:     dto.Subtotal,
		ShippingFee:  dto.ShippingFee,
		Tax:          dto.Tax,
		Total:        dto.Total,
		Currency:     dto.Currency,
		PaidAt:       dto.PaidAt,
		CreatedAt:    dto.CreatedAt,
	}
}

// Receipt returns the public view of an order by its number.
func Receipt(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order number is required"))
			return
		}

		order, err := svc.GetOrderByNumber(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReceipt(order))
	}
}

// List returns a page of orders for the admin console, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalorders.ListParams{
			Email: validators.QueryString(r, "email", 254),
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: validators.QueryString(r, "cursor", 256),
			},
		}
		if raw := validators.QueryString(r, "status", 32); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}

		list, err := svc.ListOrders(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns the full order with lines and contact details.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ToDTO(order))
	}
}

type statusRequest struct {
	Status string  `json:"status" validate:"required"`
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=255"`
}

// UpdateStatus moves an order along the fulfilment state machine and returns
// the persisted order.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload statusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status").
				WithDetails(map[string]any{"status": payload.Status}))
			return
		}

		var order *models.Order
		if status == enums.OrderStatusCancelled && payload.Reason != nil && strings.TrimSpace(*payload.Reason) != "" {
			order, err = svc.CancelOrder(r.Context(), orderID, validators.SanitizeString(*payload.Reason, 255))
		} else {
			order, err = svc.UpdateStatus(r.Context(), orderID, status)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ToDTO(order))
	}
}

// Delete removes an order and its lines.
func Delete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteOrder(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CustomerStats reports order count and spend for one customer email.
func CustomerStats(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		email := validators.QueryString(r, "email", 254)
		if email == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "email query parameter is required"))
			return
		}

		stats, err := svc.CustomerStats(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return id, nil
}
