// Command staff-token mints an admin console bearer token for a staff
// member. Only the STOREFRONT_JWT_* settings are read.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/kofabeauty/storefront-backend/pkg/auth"
	"github.com/kofabeauty/storefront-backend/pkg/config"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
)

type options struct {
	staffID string
	email   string
	role    string
	asJSON  bool
}

func main() {
	opts := options{}
	flag.StringVar(&opts.staffID, "id", "", "staff id (uuid); a new one is generated when empty")
	flag.StringVar(&opts.email, "email", "", "staff email")
	flag.StringVar(&opts.role, "role", string(enums.StaffRoleSupport), "staff role: admin|support")
	flag.BoolVar(&opts.asJSON, "json", false, "print token and expiry as JSON")
	flag.Parse()

	_ = godotenv.Load()
	var jwtCfg config.JWTConfig
	if err := envconfig.Process("", &jwtCfg); err != nil {
		fmt.Fprintf(os.Stderr, "staff-token: %v\n", err)
		os.Exit(1)
	}
	if err := run(jwtCfg, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "staff-token: %v\n", err)
		os.Exit(1)
	}
}

func run(jwtCfg config.JWTConfig, opts options, out io.Writer) error {
	role, err := enums.ParseStaffRole(strings.ToLower(strings.TrimSpace(opts.role)))
	if err != nil {
		return err
	}
	if strings.TrimSpace(opts.email) == "" {
		return errors.New("missing -email")
	}
	id := uuid.New()
	if opts.staffID != "" {
		if id, err = uuid.Parse(opts.staffID); err != nil {
			return fmt.Errorf("invalid -id: %w", err)
		}
	}

	signer, err := auth.NewSigner(jwtCfg)
	if err != nil {
		return err
	}
	token, expires, err := signer.Mint(auth.Staff{ID: id, Email: opts.email, Role: role})
	if err != nil {
		return err
	}

	if opts.asJSON {
		return json.NewEncoder(out).Encode(map[string]any{
			"staffId":   id,
			"role":      role,
			"token":     token,
			"expiresAt": expires,
		})
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
