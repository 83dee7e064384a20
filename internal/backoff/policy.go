package backoff

import (
	"context"
	"time"
)

// Policy bundles the parameters of a backoff schedule. The zero Policy
// never waits.
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
	Strategy   Strategy
}

// Default returns exponential backoff starting at initial and capped at max.
func Default(initial, max time.Duration) Policy {
	return Policy{
		Initial:    initial,
		Max:        max,
		Multiplier: 2.0,
		Jitter:     0.1,
		Strategy:   Exponential{},
	}
}

// Delay returns the pause to take after the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Initial <= 0 {
		return 0
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 1
	}
	s := p.Strategy
	if s == nil {
		s = Exponential{}
	}
	return s.Delay(attempt, p)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
