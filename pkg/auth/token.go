package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kofabeauty/storefront-backend/pkg/config"
)

const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

// Signer mints and verifies staff tokens with one shared HMAC secret.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	}
	return &Signer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.Expiration(),
		now:    time.Now,
	}, nil
}

// Mint returns a signed token for staff and the time it expires.
func (s *Signer) Mint(staff Staff) (string, time.Time, error) {
	if staff.ID == uuid.Nil {
		return "", time.Time{}, errors.New("staff id is required")
	}
	if !staff.Role.IsValid() {
		return "", time.Time{}, fmt.Errorf("invalid staff role %q", staff.Role)
	}

	issued := s.now().UTC()
	expires := issued.Add(s.ttl)
	claims := StaffClaims{
		StaffID: staff.ID,
		Email:   strings.ToLower(strings.TrimSpace(staff.Email)),
		Role:    staff.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   staff.ID.String(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign staff token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies signature, issuer and expiry, then checks the role.
func (s *Signer) Parse(token string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.StaffID == uuid.Nil {
		return nil, errors.New("token has no staff id")
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("invalid staff role %q", claims.Role)
	}
	return claims, nil
}
