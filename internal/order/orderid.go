package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const orderIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOrderID returns a human-shareable identifier such as
// TV20240501103015123-7QK4M: UTC timestamp with millis plus a random suffix.
func NewOrderID(now time.Time) string {
	now = now.UTC()

	datePart := now.Format("20060102150405")
	millis := now.Nanosecond() / int(time.Millisecond)

	suffix := make([]byte, 5)
	base := big.NewInt(int64(len(orderIDAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			// fallback: time-based entropy
			n = big.NewInt((now.UnixNano() >> (i * 5)) % int64(len(orderIDAlphabet)))
		}
		suffix[i] = orderIDAlphabet[n.Int64()]
	}

	return fmt.Sprintf("TV%s%03d-%s", datePart, millis, suffix)
}
