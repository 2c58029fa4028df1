package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/kofabeauty/storefront-backend/pkg/config"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	"github.com/kofabeauty/storefront-backend/pkg/outbox"
)

// Route says where an event type is published and which aggregate owns it.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed routing and decoding.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// Router validates outbox rows and picks their topic.
type Router struct {
	routes   map[enums.OutboxEventType]Route
	decoders *Decoders
}

// TerminalError marks a row that must go to the dead letter table instead
// of being retried.
type TerminalError struct {
	Reason enums.OutboxDLQErrorReason
	Err    error
}

func (e *TerminalError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err with a dead letter reason.
func Terminal(reason enums.OutboxDLQErrorReason, err error) error {
	return &TerminalError{Reason: reason, Err: err}
}

// TerminalReason reports whether err stops retries, and why.
func TerminalReason(err error) (enums.OutboxDLQErrorReason, bool) {
	var terminal *TerminalError
	if !errors.As(err, &terminal) {
		return "", false
	}
	return terminal.Reason, true
}

// NewRouter maps every produced event type onto the configured topics.
func NewRouter(cfg config.PubSubConfig) (*Router, error) {
	var err error
	for name, topic := range map[string]string{
		"orders":       cfg.OrdersTopic,
		"notification": cfg.NotificationTopic,
		"promotions":   cfg.PromotionsTopic,
	} {
		if topic == "" {
			err = multierr.Append(err, fmt.Errorf("%s topic is required", name))
		}
	}
	if err != nil {
		return nil, err
	}

	r := &Router{
		routes:   map[enums.OutboxEventType]Route{},
		decoders: ProducerDecoders(),
	}
	aggregateTopics := map[enums.OutboxAggregateType]string{
		enums.AggregateOrder:     cfg.OrdersTopic,
		enums.AggregatePromotion: cfg.PromotionsTopic,
	}
	for _, eventType := range enums.OutboxEventTypes() {
		topic := aggregateTopics[eventType.Aggregate()]
		if eventType == enums.EventOrderPaid {
			topic = cfg.NotificationTopic
		}
		r.routes[eventType] = Route{EventType: eventType, AggregateType: eventType.Aggregate(), Topic: topic}
	}
	return r, nil
}

// Topics lists the distinct topics events are routed to.
func (r *Router) Topics() []string {
	seen := map[string]bool{}
	var topics []string
	for _, route := range r.routes {
		if !seen[route.Topic] {
			seen[route.Topic] = true
			topics = append(topics, route.Topic)
		}
	}
	return topics
}

// Resolve checks the row against its route and decodes the payload. Every
// error it returns is terminal.
func (r *Router) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	if !ok {
		return nil, Terminal(enums.OutboxDLQReasonUnroutable, fmt.Errorf("no route for event type %s", event.EventType))
	}
	if route.AggregateType != event.AggregateType {
		return nil, Terminal(enums.OutboxDLQReasonDecodeFailed,
			fmt.Errorf("%s belongs to %s aggregates, row has %s", event.EventType, route.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, Terminal(enums.OutboxDLQReasonDecodeFailed, errors.New("missing aggregate_id"))
	}

	decoded, err := r.decoders.Decode(event.EventType, event.Payload)
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return nil, Terminal(enums.OutboxDLQReasonUnroutable, err)
	case err != nil:
		return nil, Terminal(enums.OutboxDLQReasonDecodeFailed, err)
	}
	return &ResolvedEvent{Route: route, Envelope: decoded.Envelope, Payload: decoded.Payload}, nil
}
