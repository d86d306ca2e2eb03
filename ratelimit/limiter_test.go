package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimiterPerKeyIsolation(t *testing.T) {
	t.Parallel()

	l := New(1, 1)

	require.True(t, l.Allow("1.2.3.4"))
	require.False(t, l.Allow("1.2.3.4"))

	// A distinct key has its own bucket.
	require.True(t, l.Allow("5.6.7.8"))
}
