package helpers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kofabeauty/storefront-backend/pkg/checkout"
	"github.com/kofabeauty/storefront-backend/pkg/db/models"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/pricing"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestValidateContact(t *testing.T) {
	t.Parallel()
	blank := "  "
	contact, err := ValidateContact(Contact{
		Email:     " ama@example.com ",
		FirstName: "Ama",
		LastName:  "Mensah",
		Phone:     "+233200000000",
		Address:   "12 Ring Road",
		City:      "Accra",
		Apartment: &blank,
	})
	if err != nil {
		t.Fatalf("expected valid contact, got %v", err)
	}
	if contact.Email != "ama@example.com" {
		t.Fatalf("expected trimmed email, got %q", contact.Email)
	}
	if contact.Apartment != nil {
		t.Fatalf("expected blank apartment to be dropped")
	}
	if contact.FullName() != "Ama Mensah" {
		t.Fatalf("unexpected full name %q", contact.FullName())
	}
}

func TestValidateContactReportsMissingFields(t *testing.T) {
	t.Parallel()
	_, err := ValidateContact(Contact{Email: "ama@example.com", FirstName: "Ama"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := typed.Details().(map[string]any)["fields"].([]string)
	want := []string{"lastName", "address", "city", "phone"}
	if len(fields) != len(want) {
		t.Fatalf("expected %v, got %v", want, fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, fields)
		}
	}

	_, err = ValidateContact(Contact{
		Email: "not-an-email", FirstName: "A", LastName: "B", Phone: "1", Address: "x", City: "y",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected invalid email to fail, got %v", err)
	}
}

func TestPriceLineUsesActiveSale(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	engine := pricing.NewEngine(func() time.Time { return now })

	sale := dec("16.99")
	end := now.Add(time.Hour)
	product := models.Product{ID: uuid.New(), Name: "Toner", Price: dec("19.99"), SalePrice: &sale, SaleEndDate: &end}
	reported := dec("19.99")

	line := PriceLine(engine, product, CartItem{ProductID: product.ID, Quantity: 3, ReportedPrice: &reported})
	if !line.UnitPrice.Equal(dec("16.99")) {
		t.Fatalf("expected sale price, got %s", line.UnitPrice)
	}
	if !line.LineTotal.Equal(dec("50.97")) {
		t.Fatalf("expected 50.97, got %s", line.LineTotal)
	}
	if !line.Drifted() {
		t.Fatal("expected reported base price to be flagged as drift")
	}

	expired := now.Add(-time.Second)
	product.SaleEndDate = &expired
	line = PriceLine(engine, product, CartItem{ProductID: product.ID, Quantity: 1})
	if !line.UnitPrice.Equal(dec("19.99")) {
		t.Fatalf("expected base price after expiry, got %s", line.UnitPrice)
	}
	if line.Drifted() {
		t.Fatal("no reported price means no drift")
	}
}

func TestComputeTotals(t *testing.T) {
	t.Parallel()
	lines := []PricedLine{
		{LineTotal: dec("60.00")},
		{LineTotal: dec("30.00")},
	}
	totals := ComputeTotals(lines, dec("15"), decimal.Zero)
	if totals.Total.StringFixed(2) != "105.00" {
		t.Fatalf("expected 105.00, got %s", totals.Total.StringFixed(2))
	}

	taxed := ComputeTotals([]PricedLine{{LineTotal: dec("33.35")}}, dec("0"), dec("0.03"))
	if !taxed.Tax.Equal(dec("1.00")) {
		t.Fatalf("expected tax 1.00, got %s", taxed.Tax)
	}
	if !taxed.Total.Equal(dec("34.35")) {
		t.Fatalf("expected total 34.35, got %s", taxed.Total)
	}
}

func TestValidateStockDelegates(t *testing.T) {
	t.Parallel()
	err := ValidateStock([]checkout.StockValidationInput{{ProductID: uuid.New(), Available: 1, Quantity: 2}})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
