package outbox

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
)

const maxDLQListed = 200

// DeadLetterService lets staff inspect and requeue dead-lettered events.
type DeadLetterService struct {
	db     *gorm.DB
	dlq    *DLQRepository
	events *Repository
	logg   *logger.Logger
}

func NewDeadLetterService(db *gorm.DB, logg *logger.Logger) *DeadLetterService {
	return &DeadLetterService{
		db:     db,
		dlq:    NewDLQRepository(db),
		events: NewRepository(db),
		logg:   logg,
	}
}

func (s *DeadLetterService) List(ctx context.Context, reason string, limit int) ([]models.OutboxDLQ, error) {
	filter := DLQFilter{Limit: min(limit, maxDLQListed)}
	if reason != "" {
		parsed, err := enums.ParseOutboxDLQErrorReason(reason)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown dead letter reason").
				WithDetails(map[string]any{"field": "reason"})
		}
		filter.Reason = parsed
	}
	rows, err := s.dlq.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "list dead letters")
	}
	return rows, nil
}

func (s *DeadLetterService) Get(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	entry, err := s.dlq.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "load dead letter")
	}
	if entry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
	}
	return entry, nil
}

// Requeue hands a dead-lettered event back to the publisher with a fresh
// attempt budget and removes its dead letters.
func (s *DeadLetterService) Requeue(ctx context.Context, eventID uuid.UUID) error {
	entry, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.events.RequeueTx(tx, *entry); err != nil {
			return err
		}
		return s.dlq.DeleteByEventIDTx(tx, eventID)
	})
	if err != nil {
		return pkgerrors.FromDB(err, "requeue dead letter")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"outbox_id":    eventID.String(),
			"event_type":   entry.EventType,
			"error_reason": entry.ErrorReason,
		}), "dead letter requeued")
	}
	return nil
}
