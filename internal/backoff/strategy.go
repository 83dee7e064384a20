// Package backoff computes retry pauses and sleeps them under a context.
package backoff

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Strategy turns an attempt number into a delay for a Policy.
type Strategy interface {
	Delay(attempt int, p Policy) time.Duration
}

// Exponential grows the delay by Multiplier each attempt and adds up to
// Jitter*delay of uniform noise. It never exceeds Max.
type Exponential struct{}

// Delay implements Strategy.
func (Exponential) Delay(attempt int, p Policy) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// keeps the float product finite
	if attempt > 30 {
		attempt = 30
	}

	d := time.Duration(float64(p.Initial) * pow(p.Multiplier, attempt))
	if d < 0 || d > p.Max {
		d = p.Max
	}

	if j := clampJitter(p.Jitter); j > 0 {
		extra := time.Duration(float64(d) * j * rand.Float64())
		if d+extra > p.Max {
			return p.Max
		}
		d += extra
	}
	return d
}

// Decorrelated picks a random delay between Initial and Initial*3^attempt,
// capped at Max. Attempt 0 always yields Initial.
type Decorrelated struct{}

// Delay implements Strategy.
func (Decorrelated) Delay(attempt int, p Policy) time.Duration {
	if attempt <= 0 {
		return p.Initial
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(p.Initial)
	upper := base * pow(3.0, attempt)
	if upper > float64(p.Max) || upper < 0 {
		upper = float64(p.Max)
	}
	if upper < base {
		upper = base
	}

	d := time.Duration(base + rand.Float64()*(upper-base))
	if d < 0 || d > p.Max {
		d = p.Max
	}
	return d
}

// StrategyByName resolves a configured strategy name. The empty name is
// Exponential.
func StrategyByName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "exponential":
		return Exponential{}, nil
	case "decorrelated":
		return Decorrelated{}, nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", name)
	}
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
