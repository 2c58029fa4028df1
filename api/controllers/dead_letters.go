package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kofabeauty/storefront-backend/api/responses"
	"github.com/kofabeauty/storefront-backend/api/validators"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
)

// DeadLetters is the admin surface over outbox_dlq.
type DeadLetters interface {
	List(ctx context.Context, reason string, limit int) ([]models.OutboxDLQ, error)
	Get(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

type deadLetterView struct {
	EventID       uuid.UUID       `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	Reason        string          `json:"reason"`
	Message       *string         `json:"message,omitempty"`
	AttemptCount  int             `json:"attemptCount"`
	FailedAt      time.Time       `json:"failedAt"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func toDeadLetterView(entry models.OutboxDLQ, withPayload bool) deadLetterView {
	view := deadLetterView{
		EventID:       entry.EventID,
		EventType:     string(entry.EventType),
		AggregateType: string(entry.AggregateType),
		AggregateID:   entry.AggregateID,
		Reason:        string(entry.ErrorReason),
		Message:       entry.ErrorMessage,
		AttemptCount:  entry.AttemptCount,
		FailedAt:      entry.FailedAt,
	}
	if withPayload {
		view.Payload = entry.Payload
	}
	return view
}

func AdminDeadLetters(svc DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), validators.QueryString(r, "reason", 32), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]deadLetterView, 0, len(rows))
		for _, row := range rows {
			views = append(views, toDeadLetterView(row, false))
		}
		responses.WriteSuccess(w, map[string]any{"deadLetters": views})
	}
}

func AdminDeadLetter(svc DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter service unavailable"))
			return
		}
		id, err := eventIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toDeadLetterView(*entry, true))
	}
}

// AdminRequeueDeadLetter sends a dead-lettered event back to the publisher.
func AdminRequeueDeadLetter(svc DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter service unavailable"))
			return
		}
		id, err := eventIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Requeue(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{"eventId": id, "requeued": true})
	}
}

func eventIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "eventId")))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event id")
	}
	return id, nil
}
