package helpers

import (
	"net/mail"
	"strings"

	"github.com/kofabeauty/storefront-backend/pkg/checkout"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
)

// Contact is the customer and shipping block submitted with a checkout.
type Contact struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Address   string
	Apartment *string
	City      string
	Postcode  *string
}

// ValidateContact ensures every required contact and shipping field is present
// and returns a normalized copy.
func ValidateContact(c Contact) (Contact, error) {
	out := Contact{
		Email:     strings.TrimSpace(c.Email),
		FirstName: strings.TrimSpace(c.FirstName),
		LastName:  strings.TrimSpace(c.LastName),
		Phone:     strings.TrimSpace(c.Phone),
		Address:   strings.TrimSpace(c.Address),
		City:      strings.TrimSpace(c.City),
		Apartment: trimOptional(c.Apartment),
		Postcode:  trimOptional(c.Postcode),
	}

	required := map[string]string{
		"email":     out.Email,
		"firstName": out.FirstName,
		"lastName":  out.LastName,
		"phone":     out.Phone,
		"address":   out.Address,
		"city":      out.City,
	}
	var missing []string
	for _, field := range []string{"email", "firstName", "lastName", "address", "city", "phone"} {
		if required[field] == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return Contact{}, pkgerrors.New(pkgerrors.CodeValidation, "missing required checkout fields").
			WithDetails(map[string]any{"fields": missing})
	}
	if _, err := mail.ParseAddress(out.Email); err != nil {
		return Contact{}, pkgerrors.New(pkgerrors.CodeValidation, "email is invalid").
			WithDetails(map[string]any{"fields": []string{"email"}})
	}
	return out, nil
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ValidateStock enforces stock availability.
func ValidateStock(items []checkout.StockValidationInput) error {
	return checkout.ValidateStock(items)
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
