package orders

import (
	"crypto/rand"
	"fmt"
	"time"
)

// crockford base32: no I, L, O, U so numbers survive being read aloud.
const orderNumberAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	orderNumberPrefix       = "SL"
	orderNumberSuffixLength = 6
)

// GenerateOrderNumber builds a human-facing order number of the form
// SL-YYYYMMDD-XXXXXX. The random suffix keeps the space large enough that
// collisions are rare; the insert path still retries on one.
func GenerateOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, orderNumberSuffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random suffix: %w", err)
	}
	suffix := make([]byte, orderNumberSuffixLength)
	for i, b := range buf {
		suffix[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", orderNumberPrefix, now.UTC().Format("20060102"), suffix), nil
}
