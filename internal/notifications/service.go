package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/kofabeauty/storefront-backend/pkg/email"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/metrics"
	"github.com/kofabeauty/storefront-backend/pkg/outbox/payloads"
)

type sender interface {
	Send(ctx context.Context, msg email.Message) (string, error)
}

// Service builds and delivers order confirmation emails.
type Service interface {
	SendOrderConfirmation(ctx context.Context, event payloads.OrderPaidEvent) (string, error)
}

type service struct {
	sender  sender
	metrics *metrics.StorefrontMetrics
}

// NewService wires the email sender.
func NewService(sender sender, m *metrics.StorefrontMetrics) (Service, error) {
	if sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "email sender required")
	}
	return &service{sender: sender, metrics: m}, nil
}

func (s *service) SendOrderConfirmation(ctx context.Context, event payloads.OrderPaidEvent) (string, error) {
	to := strings.TrimSpace(event.Email)
	if to == "" {
		s.metrics.IncNotification("skipped")
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order has no customer email")
	}
	id, err := s.sender.Send(ctx, email.Message{
		To:      []string{to},
		Subject: fmt.Sprintf("Order %s confirmed", event.OrderNumber),
		Text:    ConfirmationText(event),
		Tags: map[string]string{
			"category":     "order_confirmation",
			"order_number": event.OrderNumber,
		},
	})
	if err != nil {
		s.metrics.IncNotification("failed")
		return "", err
	}
	s.metrics.IncNotification("sent")
	return id, nil
}

// ConfirmationText renders the plain-text receipt sent to the customer.
func ConfirmationText(event payloads.OrderPaidEvent) string {
	var b strings.Builder
	name := strings.TrimSpace(event.CustomerName)
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Thank you for your order. We have received your payment for order %s.\n\n", event.OrderNumber)

	b.WriteString("Items:\n")
	for _, line := range event.Lines {
		fmt.Fprintf(&b, "  %d x %s @ %s %s = %s %s\n",
			line.Quantity, line.ProductName,
			event.Currency, line.UnitPrice.StringFixed(2),
			event.Currency, line.LineTotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s %s\n", event.Currency, event.Subtotal.StringFixed(2))
	fmt.Fprintf(&b, "Shipping: %s %s\n", event.Currency, event.ShippingFee.StringFixed(2))
	if !event.Tax.IsZero() {
		fmt.Fprintf(&b, "Tax: %s %s\n", event.Currency, event.Tax.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total: %s %s\n\n", event.Currency, event.Total.StringFixed(2))

	b.WriteString("Shipping to:\n")
	fmt.Fprintf(&b, "  %s\n", event.Shipping.Address)
	if event.Shipping.Apartment != nil && *event.Shipping.Apartment != "" {
		fmt.Fprintf(&b, "  %s\n", *event.Shipping.Apartment)
	}
	city := event.Shipping.City
	if event.Shipping.Postcode != nil && *event.Shipping.Postcode != "" {
		city = city + " " + *event.Shipping.Postcode
	}
	fmt.Fprintf(&b, "  %s\n\n", city)
	fmt.Fprintf(&b, "Payment reference: %s\n", event.PaymentReference)
	return b.String()
}
