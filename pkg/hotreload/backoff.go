package hotreload

import (
	"context"
	"math/rand/v2"
	"time"
)

// Default reconnect schedule.
const (
	DefaultInitialBackoff = 250 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultBackoffFactor  = 2.0
	DefaultJitter         = 0.2
)

// Backoff produces exponentially growing, jittered delays.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64

	// Jitter spreads each delay uniformly over ±Jitter of its nominal value.
	Jitter float64

	current time.Duration
	rand    func() float64
}

// NewBackoff returns a Backoff with the default schedule.
func NewBackoff() *Backoff {
	return &Backoff{
		Initial: DefaultInitialBackoff,
		Max:     DefaultMaxBackoff,
		Factor:  DefaultBackoffFactor,
		Jitter:  DefaultJitter,
	}
}

// Next returns the delay before the next attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
	} else {
		b.current = time.Duration(float64(b.current) * b.Factor)
	}
	if b.current > b.Max {
		b.current = b.Max
	}

	d := b.current
	if b.Jitter > 0 {
		r := rand.Float64
		if b.rand != nil {
			r = b.rand
		}
		d = time.Duration(float64(d) * (1 - b.Jitter + 2*b.Jitter*r()))
	}
	return d
}

// Reset restarts the schedule at Initial.
func (b *Backoff) Reset() {
	b.current = 0
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
