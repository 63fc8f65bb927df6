package swirl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffIsMonotoneNonDecreasing(t *testing.T) {
	var prev time.Duration
	for retries := int32(0); retries <= MaxRetries; retries++ {
		d := backoff(retries)
		assert.GreaterOrEqualf(t, d, prev, "backoff(%d) should be >= backoff(%d)", retries, retries-1)
		prev = d
	}
}

func TestBackoffZeroRetriesIsOneMinute(t *testing.T) {
	assert.Equal(t, time.Minute, backoff(0))
}

func TestBackoffDoublesPerRetry(t *testing.T) {
	assert.Equal(t, 2*time.Minute, backoff(1))
	assert.Equal(t, 4*time.Minute, backoff(2))
	assert.Equal(t, 8*time.Minute, backoff(3))
}
