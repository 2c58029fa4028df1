package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
)

type stubDeadLetters struct {
	reason   string
	limit    int
	entry    *models.OutboxDLQ
	requeued []uuid.UUID
}

func (s *stubDeadLetters) List(_ context.Context, reason string, limit int) ([]models.OutboxDLQ, error) {
	s.reason, s.limit = reason, limit
	if s.entry == nil {
		return nil, nil
	}
	return []models.OutboxDLQ{*s.entry}, nil
}

func (s *stubDeadLetters) Get(_ context.Context, id uuid.UUID) (*models.OutboxDLQ, error) {
	if s.entry == nil || s.entry.EventID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
	}
	return s.entry, nil
}

func (s *stubDeadLetters) Requeue(_ context.Context, id uuid.UUID) error {
	s.requeued = append(s.requeued, id)
	return nil
}

func sampleDeadLetter() *models.OutboxDLQ {
	msg := "no route for event type order_refunded"
	return &models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.OutboxEventType("order_refunded"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		ErrorReason:   enums.OutboxDLQReasonUnroutable,
		ErrorMessage:  &msg,
		FailedAt:      time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestAdminDeadLettersListsWithoutPayload(t *testing.T) {
	svc := &stubDeadLetters{entry: sampleDeadLetter()}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/outbox/dead-letters?reason=unroutable&limit=10", nil)
	AdminDeadLetters(svc, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unroutable", svc.reason)
	assert.Equal(t, 10, svc.limit)
	assert.Contains(t, rec.Body.String(), svc.entry.EventID.String())
	assert.NotContains(t, rec.Body.String(), `"payload"`)
}

func TestAdminDeadLettersRejectsLimitOutOfRange(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/outbox/dead-letters?limit=1000", nil)
	AdminDeadLetters(&stubDeadLetters{}, testLogger()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminDeadLetterIncludesPayload(t *testing.T) {
	svc := &stubDeadLetters{entry: sampleDeadLetter()}
	rec := httptest.NewRecorder()
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "eventId", svc.entry.EventID.String())
	AdminDeadLetter(svc, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payload":{"version":1}`)
}

func TestAdminDeadLetterMissingIs404(t *testing.T) {
	rec := httptest.NewRecorder()
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "eventId", uuid.NewString())
	AdminDeadLetter(&stubDeadLetters{}, testLogger()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRequeueDeadLetter(t *testing.T) {
	svc := &stubDeadLetters{}
	id := uuid.New()

	rec := httptest.NewRecorder()
	req := withParam(httptest.NewRequest(http.MethodPost, "/", nil), "eventId", id.String())
	AdminRequeueDeadLetter(svc, testLogger()).ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []uuid.UUID{id}, svc.requeued)

	rec = httptest.NewRecorder()
	req = withParam(httptest.NewRequest(http.MethodPost, "/", nil), "eventId", "not-a-uuid")
	AdminRequeueDeadLetter(svc, testLogger()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
