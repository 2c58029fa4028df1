package orders

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	DefaultNumberPrefix = "KB"
	randomBytes         = 5
)

// crockford drops I, L, O and U so numbers read back over the phone unambiguously.
var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// NumberGenerator produces order numbers of the form PREFIX-TTTTTT-RRRRRRRR:
// the last six digits of the unix millisecond clock followed by 40 random bits.
type NumberGenerator struct {
	prefix string
	now    func() time.Time
	random io.Reader
}

func NewNumberGenerator(prefix string, now func() time.Time) *NumberGenerator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &NumberGenerator{prefix: prefix, now: now, random: rand.Reader}
}

func (g *NumberGenerator) Next() (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	millis := g.now().UnixMilli() % 1_000_000
	return fmt.Sprintf("%s-%06d-%s", g.prefix, millis, crockford.EncodeToString(buf)), nil
}
