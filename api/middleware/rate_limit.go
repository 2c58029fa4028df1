package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kofabeauty/storefront-backend/api/responses"
	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
)

// maxRateLimitBody caps how much of a request body is buffered to find a key.
const maxRateLimitBody = 64 << 10

// RateLimitStore counts requests per key within a window.
type RateLimitStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// RateKeyFunc extracts the value a rule counts against. An empty string skips
// the rule for that request.
type RateKeyFunc func(r *http.Request, body []byte) string

// RateRule caps requests sharing the same key.
type RateRule struct {
	Scope     string
	Limit     int
	Key       RateKeyFunc
	NeedsBody bool
	// Hashed keys never reach logs or redis in the clear.
	Hashed bool
}

// ByClientIP counts per caller address.
func ByClientIP(limit int) RateRule {
	return RateRule{Scope: "ip", Limit: limit, Key: func(r *http.Request, _ []byte) string { return clientIP(r) }}
}

// ByJSONEmail counts per normalized top-level "email" field of a JSON body.
func ByJSONEmail(limit int) RateRule {
	return RateRule{
		Scope:     "email",
		Limit:     limit,
		NeedsBody: true,
		Hashed:    true,
		Key: func(_ *http.Request, body []byte) string {
			var payload struct {
				Email string `json:"email"`
			}
			if json.Unmarshal(body, &payload) != nil {
				return ""
			}
			return strings.ToLower(strings.TrimSpace(payload.Email))
		},
	}
}

// RateLimitPolicy groups the rules applied to one traffic surface.
type RateLimitPolicy struct {
	Name   string
	Window time.Duration
	Rules  []RateRule
}

func NewRateLimitPolicy(name string, window time.Duration, rules ...RateRule) RateLimitPolicy {
	active := make([]RateRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Limit > 0 && rule.Key != nil {
			active = append(active, rule)
		}
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "public"
	}
	return RateLimitPolicy{Name: name, Window: window, Rules: active}
}

func (p RateLimitPolicy) needsBody() bool {
	for _, rule := range p.Rules {
		if rule.NeedsBody {
			return true
		}
	}
	return false
}

// RateLimit rejects a request with 429 once any rule's counter passes its
// limit inside the policy window. Store failures surface as 503.
func RateLimit(policy RateLimitPolicy, store RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || policy.Window <= 0 || len(policy.Rules) == 0 {
			return next
		}
		readBody := policy.needsBody()

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if readBody && r.Body != nil {
				buf, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitBody))
				if err != nil {
					responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				body = buf
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), r.Body))
			}

			for _, rule := range policy.Rules {
				value := rule.Key(r, body)
				if value == "" {
					continue
				}
				if rule.Hashed {
					value = hashValue(value)
				}
				count, err := store.IncrWithTTL(ctx, store.RateLimitKey(policy.Name+":"+rule.Scope+":"+value), policy.Window)
				if err != nil {
					responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(rule.Limit) {
					rejectRateLimited(ctx, logg, w, policy, rule, value, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, rule RateRule, value string, count int64) {
	retryAfter := int(policy.Window.Seconds())
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":   policy.Name,
			"scope":    rule.Scope,
			"key":      value,
			"attempts": count,
			"limit":    rule.Limit,
		}), "rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").
		WithDetails(map[string]any{"retry_after_seconds": retryAfter}))
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(forwarded) != "" {
		return strings.TrimSpace(forwarded)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
