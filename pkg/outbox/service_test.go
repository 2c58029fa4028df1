package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kofabeauty/storefront-backend/pkg/db/dbtest"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
)

func newOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return dbtest.Open(t)
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)
	stamped := time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return stamped }
	orderID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{Email: "ama@example.com", Role: "customer"},
			Data:          map[string]string{"order_number": "KB-1"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, "ama@example.com", envelope.Actor.Email)
	assert.True(t, envelope.OccurredAt.Equal(stamped))
	assert.JSONEq(t, `{"order_number":"KB-1"}`, string(envelope.Data))
}

func TestEmitRejectsMissingTxAndUnknownType(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated})
	require.Error(t, err)

	err = svc.Emit(context.Background(), db, DomainEvent{EventType: "order_refunded", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()})
	require.Error(t, err)

	err = svc.Emit(context.Background(), db, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder})
	require.ErrorContains(t, err, "aggregate id required")

	err = svc.Emit(context.Background(), db, DomainEvent{EventType: enums.EventPromotionApplied, AggregateType: enums.AggregateOrder, AggregateID: uuid.New()})
	require.ErrorContains(t, err, "belongs to promotion aggregates")
}

func TestEmitIfNotExistsQueuesOnce(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)
	orderID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          map[string]string{"order_number": "KB-1"},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", orderID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := newOutboxTestDB(t)
	repo := NewRepository(db)

	first := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(db, first))
	require.NoError(t, repo.Insert(db, second))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(db, rows[1].ID, errors.New("pubsub unavailable")))

	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "pubsub unavailable", *rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(db, rows[0].ID, errors.New("bad payload"), 3))
	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)

	exists, err := repo.ExistsTx(db, enums.EventOrderPaid, enums.AggregateOrder, second.AggregateID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsTx(db, enums.EventOrderCanceled, enums.AggregateOrder, second.AggregateID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeletePublishedBeforePrunesOldRows(t *testing.T) {
	db := newOutboxTestDB(t)
	repo := NewRepository(db)
	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-time.Hour)
	recent := cutoff.Add(time.Hour)

	rows := []models.OutboxEvent{
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &old, CreatedAt: old},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &recent, CreatedAt: old},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), AttemptCount: 10, CreatedAt: old},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), AttemptCount: 1, CreatedAt: old},
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := repo.Insert(tx, row); err != nil {
				return err
			}
		}
		return nil
	}))

	var deleted int64
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(context.Background(), tx, cutoff, 5)
		return err
	}))
	assert.Equal(t, int64(2), deleted)

	var remaining int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}

func seedDeadLetter(t *testing.T, db *gorm.DB, reason enums.OutboxDLQErrorReason, failedAt time.Time) models.OutboxDLQ {
	t.Helper()
	msg := "publish failed"
	entry := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  10,
		FailedAt:      failedAt,
	}
	require.NoError(t, NewDLQRepository(db).InsertTx(db, entry))
	return entry
}

func TestDeadLetterServiceListFiltersByReason(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewDeadLetterService(db, nil)
	now := time.Now().UTC()
	older := seedDeadLetter(t, db, enums.OutboxDLQReasonMaxAttempts, now.Add(-time.Hour))
	newer := seedDeadLetter(t, db, enums.OutboxDLQReasonMaxAttempts, now)
	seedDeadLetter(t, db, enums.OutboxDLQReasonUnroutable, now)

	rows, err := svc.List(context.Background(), "max_attempts", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newer.EventID, rows[0].EventID)
	assert.Equal(t, older.EventID, rows[1].EventID)

	all, err := svc.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.List(context.Background(), "exploded", 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeadLetterServiceGetMissing(t *testing.T) {
	svc := NewDeadLetterService(newOutboxTestDB(t), nil)
	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeadLetterServiceRequeueResetsParkedRow(t *testing.T) {
	db := newOutboxTestDB(t)
	repo := NewRepository(db)
	svc := NewDeadLetterService(db, nil)

	row := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(db, row))
	require.NoError(t, repo.MarkTerminalTx(db, row.ID, errors.New("bad payload"), 10))

	msg := "bad payload"
	require.NoError(t, NewDLQRepository(db).InsertTx(db, models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   enums.OutboxDLQReasonDecodeFailed,
		ErrorMessage:  &msg,
		FailedAt:      time.Now().UTC(),
	}))

	require.NoError(t, svc.Requeue(context.Background(), row.ID))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, row.ID, rows[0].ID)
	assert.Zero(t, rows[0].AttemptCount)
	assert.Nil(t, rows[0].LastError)

	_, err = svc.Get(context.Background(), row.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeadLetterServiceRequeueRecreatesPrunedRow(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewDeadLetterService(db, nil)
	entry := seedDeadLetter(t, db, enums.OutboxDLQReasonMaxAttempts, time.Now().UTC())

	require.NoError(t, svc.Requeue(context.Background(), entry.EventID))

	var recreated models.OutboxEvent
	require.NoError(t, db.First(&recreated, "id = ?", entry.EventID).Error)
	assert.Equal(t, entry.AggregateID, recreated.AggregateID)
	assert.JSONEq(t, string(entry.Payload), string(recreated.Payload))
}

func TestDeleteFailedBeforePrunesOldDeadLetters(t *testing.T) {
	db := newOutboxTestDB(t)
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	seedDeadLetter(t, db, enums.OutboxDLQReasonMaxAttempts, cutoff.Add(-time.Minute))
	kept := seedDeadLetter(t, db, enums.OutboxDLQReasonMaxAttempts, cutoff.Add(time.Minute))

	deleted, err := NewDLQRepository(db).DeleteFailedBeforeTx(context.Background(), db, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	rows, err := NewDLQRepository(db).List(context.Background(), DLQFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, kept.EventID, rows[0].EventID)
}
