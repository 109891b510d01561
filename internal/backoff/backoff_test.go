package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	b := &ExponentialBackoff{
		Interval: 5 * time.Second,
		Base:     2,
		Max:      30 * time.Minute,
	}

	testCases := []struct {
		name     string
		retries  int
		expected time.Duration
	}{
		{"first retry", 0, 5 * time.Second},
		{"second retry", 1, 10 * time.Second},
		{"third retry", 2, 20 * time.Second},
		{"fourth retry", 3, 40 * time.Second},
		{"eighth retry", 7, 640 * time.Second},
		{"capped", 9, 30 * time.Minute},
		{"well past cap", 20, 30 * time.Minute},
		{"negative clamps to zero", -3, 5 * time.Second},
		{"huge retry count does not overflow", 1 << 20, 30 * time.Minute},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, b.Duration(tc.retries))
		})
	}
}

func TestExponentialBackoffNoMax(t *testing.T) {
	t.Parallel()

	b := &ExponentialBackoff{Interval: time.Second, Base: 2}
	assert.Equal(t, 1024*time.Second, b.Duration(10))
}

func TestConstantBackoff(t *testing.T) {
	t.Parallel()

	b := &ConstantBackoff{Interval: 7 * time.Second}
	for _, retries := range []int{0, 1, 5, 100} {
		assert.Equal(t, 7*time.Second, b.Duration(retries))
	}
}
