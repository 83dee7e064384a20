package foxytools

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/weapp/foxytools/internal/backoff"
)

// RateLimit describes how often permits are granted. The zero value sets
// nothing: it throttles nothing and, as a Config.Merge override, keeps the
// base policy. NoRateLimit switches throttling off explicitly.
type RateLimit struct {
	// Interval is the minimum gap between two permits.
	Interval time.Duration
	// At most Requests permits are granted in any window of length Per.
	Requests int
	Per      time.Duration
	// Disabled turns throttling off, overriding any base policy.
	Disabled bool
}

// NoRateLimit disables throttling.
var NoRateLimit = RateLimit{Disabled: true}

// Interval returns a policy granting at most one permit every d.
func Interval(d time.Duration) RateLimit {
	return RateLimit{Interval: d}
}

// Window returns a policy granting at most n permits per window.
func Window(n int, per time.Duration) RateLimit {
	return RateLimit{Requests: n, Per: per}
}

// IsZero reports whether the policy throttles nothing.
func (r RateLimit) IsZero() bool {
	return r.Disabled || (r.Interval <= 0 && (r.Requests <= 0 || r.Per <= 0))
}

func (r RateLimit) isSet() bool {
	return r != RateLimit{}
}

func (r RateLimit) String() string {
	switch {
	case r.Disabled:
		return "none"
	case r.Interval > 0:
		return "interval " + r.Interval.String()
	case r.Requests > 0 && r.Per > 0:
		return fmt.Sprintf("%d per %s", r.Requests, r.Per)
	default:
		return "none"
	}
}

func (r RateLimit) validate() []string {
	var problems []string
	if r.Disabled && (r.Interval != 0 || r.Requests != 0 || r.Per != 0) {
		problems = append(problems, "rate limit is disabled but sets a policy")
	}
	if r.Interval < 0 {
		problems = append(problems, "rate limit interval must be non-negative")
	}
	if r.Interval > 0 && (r.Requests != 0 || r.Per != 0) {
		problems = append(problems, "rate limit sets both an interval and a window")
	}
	if (r.Requests > 0) != (r.Per > 0) && r.Interval == 0 {
		problems = append(problems, "rate limit window needs both requests and per to be positive")
	}
	return problems
}

// RateLimiter paces permits for one Client. Waiters are admitted one at a
// time in the order they called Wait. A nil *RateLimiter never blocks.
type RateLimiter struct {
	policy RateLimit

	// turn holds one token; blocked receivers are served first come first
	// served, and the holder keeps it until its permit is granted.
	turn chan struct{}

	// interval policy: a bucket of one token refilled every Interval
	bucket *rate.Limiter

	// window policy: grant times of the last Requests permits, oldest first
	grants []time.Time

	metrics *MetricsCollector
	logger  Logger
}

// NewRateLimiter returns a limiter for policy, or nil when the policy
// throttles nothing.
func NewRateLimiter(policy RateLimit) *RateLimiter {
	if policy.IsZero() {
		return nil
	}
	rl := &RateLimiter{
		policy: policy,
		turn:   make(chan struct{}, 1),
	}
	rl.turn <- struct{}{}
	if policy.Interval > 0 {
		rl.bucket = rate.NewLimiter(rate.Every(policy.Interval), 1)
	} else {
		rl.grants = make([]time.Time, 0, policy.Requests)
	}
	return rl
}

// Policy returns the configured policy.
func (rl *RateLimiter) Policy() RateLimit {
	if rl == nil {
		return NoRateLimit
	}
	return rl.policy
}

// Wait blocks until a permit is available. It fails only when ctx is done
// before the permit is granted.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}

	start := time.Now()
	err := rl.acquire(ctx)
	waited := time.Since(start)

	rl.metrics.RecordRateLimitWait(waited)
	if rl.logger != nil {
		if err != nil {
			rl.logger.Debug("Rate limit wait aborted", "policy", rl.policy.String(), "waited", waited, "error", err.Error())
		} else {
			rl.logger.Debug("Rate limit permit granted", "policy", rl.policy.String(), "waited", waited)
		}
	}
	return err
}

func (rl *RateLimiter) acquire(ctx context.Context) error {
	select {
	case <-rl.turn:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { rl.turn <- struct{}{} }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if rl.bucket != nil {
		return rl.waitInterval(ctx)
	}
	return rl.waitWindow(ctx)
}

func (rl *RateLimiter) waitInterval(ctx context.Context) error {
	r := rl.bucket.Reserve()
	if err := backoff.Sleep(ctx, r.Delay()); err != nil {
		r.Cancel()
		return err
	}
	return nil
}

// waitWindow keeps the grant log: permit k+Requests is granted no earlier
// than Per after permit k.
func (rl *RateLimiter) waitWindow(ctx context.Context) error {
	if len(rl.grants) == rl.policy.Requests {
		if err := backoff.Sleep(ctx, time.Until(rl.grants[0].Add(rl.policy.Per))); err != nil {
			return err
		}
		n := copy(rl.grants, rl.grants[1:])
		rl.grants = rl.grants[:n]
	}
	rl.grants = append(rl.grants, time.Now())
	return nil
}
