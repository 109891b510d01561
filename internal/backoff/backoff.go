package backoff

import "time"

type Backoff interface {
	Duration(retries int) time.Duration
}

// ExponentialBackoff returns Interval * Base^retries, capped at Max.
// The exponent is clamped to [0, 30] so absurd retry counts cannot
// overflow the shift.
type ExponentialBackoff struct {
	Interval time.Duration
	Base     int
	Max      time.Duration
}

var _ Backoff = &ExponentialBackoff{}

const maxExponent = 30

func (b *ExponentialBackoff) Duration(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	if retries > maxExponent {
		retries = maxExponent
	}

	d := b.Interval
	for i := 0; i < retries; i++ {
		d *= time.Duration(b.Base)
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

type ConstantBackoff struct {
	Interval time.Duration
}

var _ Backoff = &ConstantBackoff{}

func (b *ConstantBackoff) Duration(_ int) time.Duration {
	return b.Interval
}
