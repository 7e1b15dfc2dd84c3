package reconciler_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kevin07696/commission-service/internal/services/reconciler"
)

// Test NewOutOrderNo - "PS" + unix millis + 8 random digits
func TestNewOutOrderNo_Format(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	got := reconciler.NewOutOrderNo(now)

	prefix := fmt.Sprintf("PS%d", now.UnixMilli())
	assert.True(t, strings.HasPrefix(got, prefix), "got %q", got)
	assert.Len(t, got, len(prefix)+8)

	for _, r := range got[len(prefix):] {
		assert.True(t, r >= '0' && r <= '9', "non-digit suffix in %q", got)
	}
}

func TestNewOutOrderNo_Uniqueness(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		no := reconciler.NewOutOrderNo(now)
		assert.False(t, seen[no], "duplicate order number %q", no)
		seen[no] = true
	}
}
