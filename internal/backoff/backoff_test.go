package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_Fixed(t *testing.T) {
	p := Policy{Delay: 60 * time.Second, Exponential: false}

	for attempt := 0; attempt < 5; attempt++ {
		assert.Equal(t, 60*time.Second, Delay(p, attempt))
	}
}

func TestDelay_ExponentialBounds(t *testing.T) {
	p := Policy{Delay: 60 * time.Second, Exponential: true, Max: 600 * time.Second}

	for attempt := 0; attempt < 10; attempt++ {
		for i := 0; i < 50; i++ {
			d := Delay(p, attempt)
			assert.GreaterOrEqual(t, d, p.Delay, "attempt %d", attempt)
			assert.LessOrEqual(t, d, p.Max, "attempt %d", attempt)
		}
	}
}

func TestDelay_ExponentialGrowth(t *testing.T) {
	p := Policy{Delay: 1 * time.Second, Exponential: true, Max: 1 * time.Hour}

	// Attempt 3's ceiling is 8s; sample enough to see values past the
	// attempt 0 ceiling of 1s.
	seenAboveBase := false
	for i := 0; i < 200; i++ {
		if Delay(p, 3) > 2*time.Second {
			seenAboveBase = true
			break
		}
	}
	assert.True(t, seenAboveBase)
}

func TestDelay_NegativeAttemptClamped(t *testing.T) {
	p := Policy{Delay: 10 * time.Second, Exponential: true, Max: 100 * time.Second}

	d := Delay(p, -1)
	assert.GreaterOrEqual(t, d, 10*time.Second)
	assert.LessOrEqual(t, d, 10*time.Second) // ceiling == floor at attempt 0
}
