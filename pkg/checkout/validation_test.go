package checkout

import (
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
)

func TestValidateStock_NoViolations(t *testing.T) {
	items := []StockValidationInput{
		{
			ProductID:   uuid.New(),
			ProductName: "Exact Stock",
			Available:   2,
			Quantity:    2,
		},
		{
			ProductID:   uuid.New(),
			ProductName: "Plenty",
			Available:   40,
			Quantity:    1,
		},
	}
	if err := ValidateStock(items); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStock_Violations(t *testing.T) {
	items := []StockValidationInput{
		{
			ProductID:   uuid.New(),
			ProductName: "Shortfall Product",
			Available:   3,
			Quantity:    5,
		},
		{
			ProductID:   uuid.New(),
			ProductName: "Sold Out",
			Available:   0,
			Quantity:    1,
		},
		{
			ProductID:   uuid.New(),
			ProductName: "Fine",
			Available:   9,
			Quantity:    1,
		},
	}
	err := ValidateStock(items)
	if err == nil {
		t.Fatal("expected error for stock violation")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	violations, ok := details["violations"].([]StockViolationDetail)
	if !ok {
		t.Fatalf("expected violations slice, got %T", details["violations"])
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(violations))
	}
	if violations[0].ProductName != "Shortfall Product" || violations[0].RequestedQty != 5 {
		t.Fatalf("unexpected first violation %+v", violations[0])
	}
}
