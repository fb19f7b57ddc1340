package xid

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed random id such as "sale-9f1c...".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// Barcode returns a numeric barcode from the current time plus a random suffix.
func Barcode(now time.Time) string {
	return fmt.Sprintf("%d%03d", now.UnixMilli(), rand.IntN(1000))
}

// Short returns n lowercase hex characters of a fresh uuid, for local child ids.
func Short(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n <= 0 || n > len(id) {
		return id
	}
	return id[:n]
}
