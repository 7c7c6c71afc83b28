package orders

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOrderNumberFormat(t *testing.T) {
	now := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	number, err := GenerateOrderNumber(now)
	require.NoError(t, err)

	parts := strings.Split(number, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "SL", parts[0])
	assert.Equal(t, "20260314", parts[1])
	require.Len(t, parts[2], 6)
	for _, ch := range parts[2] {
		assert.Contains(t, orderNumberAlphabet, string(ch))
	}
}

func TestGenerateOrderNumberVaries(t *testing.T) {
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		number, err := GenerateOrderNumber(now)
		require.NoError(t, err)
		seen[number] = true
	}
	// 32^6 suffixes make a collision in 50 draws vanishingly unlikely
	assert.Greater(t, len(seen), 45)
}
