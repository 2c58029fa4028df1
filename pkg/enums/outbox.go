package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType is the aggregate_type column of outbox rows.
type OutboxAggregateType string

const (
	AggregateOrder     OutboxAggregateType = "order"
	AggregatePromotion OutboxAggregateType = "promotion"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregatePromotion
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	a := OutboxAggregateType(value)
	if !a.IsValid() {
		return "", fmt.Errorf("invalid aggregate type %q", value)
	}
	return a, nil
}

// OutboxEventType is the event_type column of outbox rows.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderCanceled      OutboxEventType = "order_canceled"
	EventPromotionApplied   OutboxEventType = "promotion_applied"
	EventPromotionCleared   OutboxEventType = "promotion_cleared"
)

// eventAggregates fixes the aggregate every event type belongs to.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:       AggregateOrder,
	EventOrderPaid:          AggregateOrder,
	EventOrderStatusChanged: AggregateOrder,
	EventOrderCanceled:      AggregateOrder,
	EventPromotionApplied:   AggregatePromotion,
	EventPromotionCleared:   AggregatePromotion,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the owning aggregate, or "" for unknown event types.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// OutboxEventTypes lists every event type in a stable order.
func OutboxEventTypes() []OutboxEventType {
	types := make([]OutboxEventType, 0, len(eventAggregates))
	for e := range eventAggregates {
		types = append(types, e)
	}
	slices.Sort(types)
	return types
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}
