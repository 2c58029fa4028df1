package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	markerPending = "pending"
	markerDone    = "done"

	defaultLease = 5 * time.Minute
)

// Store is the redis surface a Guard needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Outcome is the result of claiming an id.
type Outcome int

const (
	// Claimed means the caller owns the id and must Complete or Release it.
	Claimed Outcome = iota
	// Done means an earlier holder completed the id.
	Done
	// InFlight means another holder claimed the id and has not finished.
	InFlight
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case Done:
		return "done"
	case InFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}

// Guard deduplicates work per scope. A claim is a short lease; completing it
// swaps the lease for a marker that lives for the retention TTL. Keys follow
// `sf:idempotency:<scope>:<id>`.
type Guard struct {
	store     Store
	scope     string
	retention time.Duration
	lease     time.Duration
}

type Option func(*Guard)

// WithLease bounds how long an unfinished claim blocks other holders.
func WithLease(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.lease = d
		}
	}
}

func NewGuard(store Store, scope string, retention time.Duration, opts ...Option) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	if retention < 0 {
		return nil, errors.New("retention must be non-negative")
	}
	g := &Guard{store: store, scope: scope, retention: retention, lease: defaultLease}
	for _, opt := range opts {
		opt(g)
	}
	if retention > 0 && g.lease > retention {
		g.lease = retention
	}
	return g, nil
}

func (g *Guard) Scope() string { return g.scope }

// Begin claims id for the caller unless it is already done or held.
func (g *Guard) Begin(ctx context.Context, id string) (Outcome, error) {
	key, err := g.key(id)
	if err != nil {
		return 0, err
	}
	claimed, err := g.store.SetNX(ctx, key, markerPending, g.lease)
	if err != nil {
		return 0, fmt.Errorf("claim %s: %w", key, err)
	}
	if claimed {
		return Claimed, nil
	}
	marker, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// lease expired between the two calls
		return InFlight, nil
	case err != nil:
		return 0, fmt.Errorf("read %s: %w", key, err)
	case marker == markerPending:
		return InFlight, nil
	default:
		return Done, nil
	}
}

// Complete records id as processed for the retention TTL.
func (g *Guard) Complete(ctx context.Context, id string) error {
	key, err := g.key(id)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, key, markerDone, g.retention); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

// Release drops a claim so the id can be retried.
func (g *Guard) Release(ctx context.Context, id string) error {
	key, err := g.key(id)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("idempotency id is required")
	}
	return g.store.IdempotencyKey(g.scope, id), nil
}
