package paystack

import (
	"errors"
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"KB-1","status":"success","amount":10500,"currency":"GHS"}}`)
	sig := Sign("sk_test", body)

	if err := VerifySignature("sk_test", body, sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := VerifySignature("sk_test", body, strings.ToUpper(sig)); err != nil {
		t.Fatalf("signature comparison should ignore hex case, got %v", err)
	}
	if err := VerifySignature("sk_other", body, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if err := VerifySignature("sk_test", body, ""); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected missing signature, got %v", err)
	}
}

func TestParseWebhookEvent(t *testing.T) {
	event, err := ParseWebhookEvent([]byte(`{"event":"charge.success","data":{"id":7,"reference":"KB-1","status":"success","amount":10500,"currency":"GHS"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Event != EventChargeSuccess || event.Data.Reference != "KB-1" || event.Data.Amount != 10500 {
		t.Fatalf("unexpected event %+v", event)
	}

	if _, err := ParseWebhookEvent([]byte(`{"data":{}}`)); err == nil {
		t.Fatalf("expected missing event type to fail")
	}
	if _, err := ParseWebhookEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected invalid json to fail")
	}
}
