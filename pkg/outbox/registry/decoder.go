package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kofabeauty/storefront-backend/pkg/enums"
	"github.com/kofabeauty/storefront-backend/pkg/outbox"
	"github.com/kofabeauty/storefront-backend/pkg/outbox/payloads"
)

// ErrUnknownEvent is returned for an event type or version no decoder handles.
var ErrUnknownEvent = errors.New("no decoder registered")

// ErrEmptyPayload is returned when the envelope carries no data.
var ErrEmptyPayload = errors.New("payload missing")

type decodeFunc func(json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoders turns a published envelope back into its typed payload on the
// consumer side. Payloads are versioned through the envelope's version field.
type Decoders struct {
	mu    sync.RWMutex
	funcs map[decoderKey]decodeFunc
}

// Decoded is an envelope with its payload unmarshalled.
type Decoded struct {
	Envelope outbox.PayloadEnvelope
	Payload  any
}

func NewDecoders() *Decoders {
	return &Decoders{funcs: map[decoderKey]decodeFunc{}}
}

// ConsumerDecoders registers every payload the workers consume.
func ConsumerDecoders() *Decoders {
	d := NewDecoders()
	Register[payloads.OrderPaidEvent](d, enums.EventOrderPaid, 1)
	Register[payloads.OrderCreatedEvent](d, enums.EventOrderCreated, 1)
	Register[payloads.OrderStatusChangedEvent](d, enums.EventOrderStatusChanged, 1)
	Register[payloads.OrderCanceledEvent](d, enums.EventOrderCanceled, 1)
	return d
}

// ProducerDecoders registers every payload the outbox publisher may route.
func ProducerDecoders() *Decoders {
	d := ConsumerDecoders()
	Register[payloads.PromotionAppliedEvent](d, enums.EventPromotionApplied, 1)
	Register[payloads.PromotionClearedEvent](d, enums.EventPromotionCleared, 1)
	return d
}

// Register makes d decode eventType at version into a *T.
func Register[T any](d *Decoders, eventType enums.OutboxEventType, version int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funcs[decoderKey{eventType, version}] = func(raw json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Decode parses the envelope in body and its payload. A zero version is read
// as version 1.
func (d *Decoders) Decode(eventType enums.OutboxEventType, body []byte) (*Decoded, error) {
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	version := env.Version
	if version == 0 {
		version = 1
	}

	d.mu.RLock()
	fn, ok := d.funcs[decoderKey{eventType, version}]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrUnknownEvent, eventType, version)
	}

	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w for %s", ErrEmptyPayload, eventType)
	}
	payload, err := fn(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return &Decoded{Envelope: env, Payload: payload}, nil
}
