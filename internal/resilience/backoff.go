package resilience

import (
	"math"
	"math/rand"
	"time"

	cenkaltibackoff "github.com/cenkalti/backoff/v4"
)

// ExponentialBackoff doubles the delay each attempt starting from Base, up
// to Max, with up to JitterFrac*delay of random jitter added. Modeled on
// the doubling-per-attempt backoff used by the workflow engine this package
// was adapted from.
type ExponentialBackoff struct {
	Base       time.Duration
	Max        time.Duration
	JitterFrac float64
}

// NewExponentialBackoff returns an ExponentialBackoff with sensible
// defaults (1s base, 60s cap, 20% jitter).
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{Base: time.Second, Max: 60 * time.Second, JitterFrac: 0.2}
}

func (b *ExponentialBackoff) BaseDelay() time.Duration { return b.Base }

func (b *ExponentialBackoff) ComputeDelay(attemptNo int, _ *AttemptError) time.Duration {
	if attemptNo < 1 {
		attemptNo = 1
	}
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	delay := time.Duration(math.Pow(2, float64(attemptNo-1))) * base
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	if b.JitterFrac > 0 {
		jitter := time.Duration(rand.Float64() * b.JitterFrac * float64(delay))
		delay += jitter
	}
	return delay
}

var _ BackoffPolicy = (*ExponentialBackoff)(nil)

// CenkaltiBackoff adapts github.com/cenkalti/backoff/v4's ExponentialBackOff
// to the BackoffPolicy interface. Unlike ExponentialBackoff, the delay
// sequence here is stateful (NextBackOff advances internal state) rather
// than a pure function of attemptNo.
type CenkaltiBackoff struct {
	inner *cenkaltibackoff.ExponentialBackOff
}

// NewCenkaltiBackoff wraps a freshly reset cenkalti ExponentialBackOff.
func NewCenkaltiBackoff() *CenkaltiBackoff {
	b := cenkaltibackoff.NewExponentialBackOff()
	b.Reset()
	return &CenkaltiBackoff{inner: b}
}

func (c *CenkaltiBackoff) BaseDelay() time.Duration { return c.inner.InitialInterval }

func (c *CenkaltiBackoff) ComputeDelay(_ int, _ *AttemptError) time.Duration {
	d := c.inner.NextBackOff()
	if d == cenkaltibackoff.Stop {
		return c.inner.MaxInterval
	}
	return d
}

var _ BackoffPolicy = (*CenkaltiBackoff)(nil)
