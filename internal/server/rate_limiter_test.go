package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindowCap(t *testing.T) {
	req := require.New(t)

	rl := newRateLimiter(5, time.Second)
	base := time.Now()

	for i := 0; i < 5; i++ {
		req.True(rl.Admit(base.Add(time.Duration(i)*time.Millisecond)), "admission %d", i+1)
	}

	// The sixth event inside the same window is rejected, and so is
	// everything after it until the window turns over.
	req.False(rl.Admit(base.Add(5 * time.Millisecond)))
	req.False(rl.Admit(base.Add(500 * time.Millisecond)))
}

func TestRateLimiterWindowReset(t *testing.T) {
	req := require.New(t)

	rl := newRateLimiter(3, time.Second)
	base := time.Now()

	for i := 0; i < 3; i++ {
		req.True(rl.Admit(base))
	}
	req.False(rl.Admit(base))

	// A full window later the counter resets and a fresh burst fits.
	next := base.Add(time.Second)
	for i := 0; i < 3; i++ {
		req.True(rl.Admit(next), "admission %d after reset", i+1)
	}
	req.False(rl.Admit(next))
}

func TestRateLimiterDefaults(t *testing.T) {
	req := require.New(t)

	rl := newRateLimiter(0, 0)
	req.Equal(1, rl.capacity)
	req.Equal(time.Second, rl.width)

	base := time.Now()
	req.True(rl.Admit(base))
	req.False(rl.Admit(base))
}
