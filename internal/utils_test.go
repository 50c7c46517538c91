package internal

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffPolicyBounds(t *testing.T) {
	backoff := NewBackoffPolicyFrom(rand.New(rand.NewSource(1)), 10*time.Millisecond, time.Second)

	prev := time.Duration(0)
	for retry := 0; retry < 40; retry++ {
		d := backoff(retry)
		require.GreaterOrEqual(t, d, 10*time.Millisecond)
		require.LessOrEqual(t, d, time.Second)
		if retry < 5 {
			require.Greater(t, d, prev)
		}
		prev = d
	}
	require.Equal(t, time.Second, backoff(100))
}
