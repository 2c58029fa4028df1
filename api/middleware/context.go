package middleware

import (
	"context"

	"github.com/kofabeauty/storefront-backend/pkg/enums"
)

type staffKey struct{}

// Staff is the admin console identity taken from a verified access token.
type Staff struct {
	ID    string
	Email string
	Role  enums.StaffRole
}

// WithStaff stores the authenticated staff member on ctx.
func WithStaff(ctx context.Context, staff Staff) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, staffKey{}, staff)
}

// StaffFromContext reports the staff member set by Auth, if any.
func StaffFromContext(ctx context.Context) (Staff, bool) {
	if ctx == nil {
		return Staff{}, false
	}
	staff, ok := ctx.Value(staffKey{}).(Staff)
	return staff, ok
}
