package notifications

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/kofabeauty/storefront-backend/pkg/enums"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/outbox/idempotency"
	"github.com/kofabeauty/storefront-backend/pkg/outbox/payloads"
	"github.com/kofabeauty/storefront-backend/pkg/outbox/registry"
)

// ConfirmationScope names the dedup markers this consumer writes.
const ConfirmationScope = "order-confirmation-email"

type eventGuard interface {
	Begin(ctx context.Context, id string) (idempotency.Outcome, error)
	Complete(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

// Consumer turns order_paid events into confirmation emails.
type Consumer struct {
	service      Service
	subscription *pubsub.Subscriber
	guard        eventGuard
	decoders     *registry.Decoders
	logg         *logger.Logger
}

// NewConsumer builds an order confirmation consumer.
func NewConsumer(service Service, subscription *pubsub.Subscriber, guard eventGuard, logg *logger.Logger) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		service:      service,
		subscription: subscription,
		guard:        guard,
		decoders:     registry.ConsumerDecoders(),
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// processResult is acked unless nack is set.
type processResult struct {
	nack bool
	sent bool
}

// process only nacks when the dedup store is unreachable. Delivery failures are
// logged and acked so a broken mailbox never blocks the subscription.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventOrderPaid) {
		return processResult{}
	}

	decoded, err := c.decoders.Decode(enums.EventOrderPaid, msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode order_paid message", err)
		return processResult{}
	}
	eventID, err := uuid.Parse(decoded.Envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{}
	}
	payload := *decoded.Payload.(*payloads.OrderPaidEvent)
	logCtx = c.logg.WithOrderNumber(logCtx, payload.OrderNumber)

	outcome, err := c.guard.Begin(ctx, eventID.String())
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	switch outcome {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	case idempotency.InFlight:
		// another worker holds the claim; redelivery settles it
		return processResult{nack: true}
	}

	messageID, err := c.service.SendOrderConfirmation(ctx, payload)
	if err != nil {
		c.logg.Error(logCtx, "order confirmation email failed", err)
		if relErr := c.guard.Release(ctx, eventID.String()); relErr != nil {
			c.logg.Error(logCtx, "release idempotency claim failed", relErr)
		}
		return processResult{}
	}
	if err := c.guard.Complete(ctx, eventID.String()); err != nil {
		c.logg.Error(logCtx, "complete idempotency claim failed", err)
	}
	c.logg.Info(c.logg.WithField(logCtx, "email_id", messageID), "order confirmation sent")
	return processResult{sent: true}
}
