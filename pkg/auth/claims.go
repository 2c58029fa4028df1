package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kofabeauty/storefront-backend/pkg/enums"
)

// Staff is the identity a token is minted for.
type Staff struct {
	ID    uuid.UUID
	Email string
	Role  enums.StaffRole
}

// StaffClaims is the JWT body carried by admin console requests.
type StaffClaims struct {
	StaffID uuid.UUID       `json:"staff_id"`
	Email   string          `json:"email,omitempty"`
	Role    enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *StaffClaims) Staff() Staff {
	return Staff{ID: c.StaffID, Email: c.Email, Role: c.Role}
}
