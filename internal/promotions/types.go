package promotions

import (
	"time"

	"github.com/google/uuid"

	"github.com/kofabeauty/storefront-backend/pkg/enums"
)

// MaxDuration caps a promotion window at ten years.
const MaxDuration = 3650 * 24 * time.Hour

// Duration bounds a promotion window. A nil Duration means the sale never expires.
type Duration struct {
	Value int                `json:"value"`
	Unit  enums.DurationUnit `json:"unit"`
}

// Span returns the wall-clock length of the window.
func (d Duration) Span() time.Duration {
	return time.Duration(d.Value) * d.Unit.Span()
}

// Promotion is a category-wide percentage discount.
type Promotion struct {
	Category   string    `json:"category"`
	Percentage int       `json:"percentage"`
	Duration   *Duration `json:"duration,omitempty"`
}

// ItemFailure records why a single catalog item could not be updated.
type ItemFailure struct {
	ProductID uuid.UUID `json:"product_id"`
	Error     string    `json:"error"`
}

// Result itemizes a promotion batch. When Failed is non-empty the whole batch
// was rolled back and RolledBack is set.
type Result struct {
	Category   string        `json:"category"`
	Affected   int           `json:"affected"`
	Succeeded  []uuid.UUID   `json:"succeeded"`
	Failed     []ItemFailure `json:"failed"`
	RolledBack bool          `json:"rolled_back,omitempty"`
	EndsAt     *time.Time    `json:"ends_at,omitempty"`
	Warning    string        `json:"warning,omitempty"`
}

// ActivePromotion summarizes the items of one category currently on sale.
type ActivePromotion struct {
	Category       string     `json:"category"`
	Items          int        `json:"items"`
	EarliestExpiry *time.Time `json:"earliest_expiry,omitempty"`
	Indefinite     bool       `json:"indefinite"`
}

const warningNoItems = "no items in category"

// aggregateID gives every category a stable outbox aggregate id.
func aggregateID(category string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("storefront:promotion:"+category))
}
