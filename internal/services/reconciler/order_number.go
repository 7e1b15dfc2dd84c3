package reconciler

import (
	"fmt"
	"math/rand"
	"time"
)

// NewOutOrderNo generates a merchant-side split order number:
// "PS" + unix milliseconds + 8 zero-padded random digits. Generated
// once per attempt and reused across every poll of that attempt.
func NewOutOrderNo(now time.Time) string {
	return fmt.Sprintf("PS%d%08d", now.UnixMilli(), rand.Intn(100000000))
}
