package orders

import (
	"bytes"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var numberPattern = regexp.MustCompile(`^KB-\d{6}-[0-9A-HJKMNP-TV-Z]{8}$`)

func TestNumberGeneratorFormat(t *testing.T) {
	now := time.UnixMilli(1_717_000_123_456)
	gen := NewNumberGenerator("kb", func() time.Time { return now })

	number, err := gen.Next()
	require.NoError(t, err)
	assert.Regexp(t, numberPattern, number)
	assert.Equal(t, "KB-123456-", number[:10])
}

func TestNumberGeneratorUnique(t *testing.T) {
	fixed := time.UnixMilli(42)
	gen := NewNumberGenerator("", func() time.Time { return fixed })

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		number, err := gen.Next()
		require.NoError(t, err)
		require.Regexp(t, numberPattern, number)
		_, dup := seen[number]
		require.False(t, dup, "duplicate order number %s", number)
		seen[number] = struct{}{}
	}
}

func TestNumberGeneratorRandomFailure(t *testing.T) {
	gen := NewNumberGenerator("KB", nil)
	gen.random = bytes.NewReader([]byte{1, 2})

	_, err := gen.Next()
	assert.Error(t, err)
}
