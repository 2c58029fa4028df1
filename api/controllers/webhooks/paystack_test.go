package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kofabeauty/storefront-backend/pkg/outbox/idempotency"
	"github.com/kofabeauty/storefront-backend/pkg/paystack"
)

const secret = "sk_test_webhook"

type recordingService struct {
	events []string
	err    error
}

func (s *recordingService) HandleEvent(ctx context.Context, event *paystack.WebhookEvent) error {
	s.events = append(s.events, event.Data.Reference)
	return s.err
}

type memoryGuard struct {
	state    map[string]idempotency.Outcome
	released []string
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{state: map[string]idempotency.Outcome{}}
}

func (g *memoryGuard) Begin(ctx context.Context, key string) (idempotency.Outcome, error) {
	if outcome, ok := g.state[key]; ok {
		if outcome == idempotency.Claimed {
			return idempotency.InFlight, nil
		}
		return outcome, nil
	}
	g.state[key] = idempotency.Claimed
	return idempotency.Claimed, nil
}

func (g *memoryGuard) Complete(ctx context.Context, key string) error {
	g.state[key] = idempotency.Done
	return nil
}

func (g *memoryGuard) Release(ctx context.Context, key string) error {
	delete(g.state, key)
	g.released = append(g.released, key)
	return nil
}

func deliver(t *testing.T, handler http.Handler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(paystack.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

const chargeBody = `{"event":"charge.success","data":{"id":7,"status":"success","reference":"KB-1","amount":5000,"currency":"GHS"}}`

func TestPaystackWebhookRejectsUnsignedDelivery(t *testing.T) {
	svc := &recordingService{}
	handler := PaystackWebhook(svc, secret, newMemoryGuard(), nil)

	if rec := deliver(t, handler, chargeBody, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", rec.Code)
	}
	if rec := deliver(t, handler, chargeBody, paystack.Sign("other-secret", []byte(chargeBody))); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", rec.Code)
	}
	if len(svc.events) != 0 {
		t.Fatalf("expected no events dispatched, got %v", svc.events)
	}
}

func TestPaystackWebhookDeduplicatesDeliveries(t *testing.T) {
	svc := &recordingService{}
	handler := PaystackWebhook(svc, secret, newMemoryGuard(), nil)
	sig := paystack.Sign(secret, []byte(chargeBody))

	for i := 0; i < 3; i++ {
		if rec := deliver(t, handler, chargeBody, sig); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
		}
	}
	if len(svc.events) != 1 {
		t.Fatalf("expected a single dispatch, got %d", len(svc.events))
	}
}

func TestPaystackWebhookReleasesKeyOnFailure(t *testing.T) {
	svc := &recordingService{err: errors.New("verify timeout")}
	guard := newMemoryGuard()
	handler := PaystackWebhook(svc, secret, guard, nil)
	sig := paystack.Sign(secret, []byte(chargeBody))

	if rec := deliver(t, handler, chargeBody, sig); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on handler failure, got %d", rec.Code)
	}
	if len(guard.released) != 1 {
		t.Fatalf("expected delivery key released, got %v", guard.released)
	}

	svc.err = nil
	if rec := deliver(t, handler, chargeBody, sig); rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if len(svc.events) != 2 {
		t.Fatalf("expected retry to reach the service, got %d calls", len(svc.events))
	}
}

func TestPaystackWebhookRejectsMalformedEvent(t *testing.T) {
	body := `{"event":`
	handler := PaystackWebhook(&recordingService{}, secret, newMemoryGuard(), nil)
	if rec := deliver(t, handler, body, paystack.Sign(secret, []byte(body))); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed event, got %d", rec.Code)
	}
}

func TestPaystackWebhookInFlightDeliveryConflicts(t *testing.T) {
	svc := &recordingService{}
	guard := newMemoryGuard()
	guard.state["charge.success:KB-1"] = idempotency.Claimed
	handler := PaystackWebhook(svc, secret, guard, nil)

	if rec := deliver(t, handler, chargeBody, paystack.Sign(secret, []byte(chargeBody))); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while another delivery holds the claim, got %d", rec.Code)
	}
	if len(svc.events) != 0 {
		t.Fatalf("expected no dispatch, got %v", svc.events)
	}
}
