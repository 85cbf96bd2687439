// Package budget decides when a run must stop spending resources. Three
// independent signals are watched: remote API quota, the lifetime budget of
// the whole process, and the timeout of the current invocation.
package budget

import (
	"context"
	"time"

	"github.com/factkit/sweep/internal/gh"
)

// Reason identifies which signal stopped the run. The empty reason means
// no signal has fired.
type Reason string

const (
	// ReasonNone means no stop signal has fired.
	ReasonNone Reason = ""
	// ReasonQuota means remaining API quota fell below the safety threshold.
	ReasonQuota Reason = "quota"
	// ReasonLifetime means the process is close to its lifetime budget.
	ReasonLifetime Reason = "lifetime"
	// ReasonTimeout means this invocation is close to its timeout.
	ReasonTimeout Reason = "timeout"
)

// DefaultQuotaThreshold is the remaining-request floor below which the
// guard stops a run. Matches the safety margin judge jobs leave so that
// report generation after the sweep still has quota to work with.
const DefaultQuotaThreshold = 50

// safetyFraction stops time-based budgets at 90% so the tail of the run
// (marker persistence, summaries) fits inside the real limit.
const safetyFraction = 0.9

// Awareness toggles each of the guard's three signals independently.
// A disabled signal never fires.
type Awareness struct {
	Quota    bool
	Lifetime bool
	Timeout  bool
}

// Aware returns awareness with every signal enabled.
func Aware() Awareness {
	return Awareness{Quota: true, Lifetime: true, Timeout: true}
}

// Guard evaluates the three stop signals in a fixed order: quota first,
// then lifetime, then timeout. The first signal that fires decides; later
// signals are not evaluated, so the remote quota call happens at most once
// per decision. Once a decision to stop is made it is cached, and further
// calls are free. The guard only decides; logging the stop is the
// caller's concern.
type Guard struct {
	oracle    gh.Oracle
	threshold int
	lifetime  time.Duration // 0 means unbounded
	timeout   time.Duration // 0 means unbounded
	epoch     time.Time
	kickoff   time.Time

	now     func() time.Time
	decided Reason
}

// Config holds guard construction parameters.
type Config struct {
	// Oracle answers quota checks. Required when the quota signal is used.
	Oracle gh.Oracle
	// QuotaThreshold is the remaining-request floor. Zero means DefaultQuotaThreshold.
	QuotaThreshold int
	// Lifetime is the wall-clock budget measured from Epoch. Zero disables it.
	Lifetime time.Duration
	// Timeout is the budget for one invocation measured from Kickoff. Zero disables it.
	Timeout time.Duration
	// Epoch is when the long-lived process started.
	Epoch time.Time
	// Kickoff is when this invocation started.
	Kickoff time.Time
}

// NewGuard creates a guard.
func NewGuard(cfg Config) *Guard {
	threshold := cfg.QuotaThreshold
	if threshold <= 0 {
		threshold = DefaultQuotaThreshold
	}
	return &Guard{
		oracle:    cfg.Oracle,
		threshold: threshold,
		lifetime:  cfg.Lifetime,
		timeout:   cfg.Timeout,
		epoch:     cfg.Epoch,
		kickoff:   cfg.Kickoff,
		now:       time.Now,
	}
}

// ShouldStop evaluates the enabled signals and returns the first that
// fires, or ReasonNone. A quota oracle failure propagates to the caller.
func (g *Guard) ShouldStop(ctx context.Context, aw Awareness) (Reason, error) {
	if g.decided != ReasonNone {
		return g.decided, nil
	}

	if aw.Quota && g.oracle != nil {
		off, err := g.oracle.OffQuota(ctx, g.threshold)
		if err != nil {
			return ReasonNone, err
		}
		if off {
			return g.decide(ReasonQuota), nil
		}
	}

	if aw.Lifetime && g.lifetime > 0 {
		if g.elapsed(g.epoch) > g.scaled(g.lifetime) {
			return g.decide(ReasonLifetime), nil
		}
	}

	if aw.Timeout && g.timeout > 0 {
		if g.elapsed(g.kickoff) > g.scaled(g.timeout) {
			return g.decide(ReasonTimeout), nil
		}
	}

	return ReasonNone, nil
}

func (g *Guard) decide(r Reason) Reason {
	g.decided = r
	return r
}

func (g *Guard) elapsed(since time.Time) time.Duration {
	return g.now().Sub(since)
}

func (g *Guard) scaled(budget time.Duration) time.Duration {
	return time.Duration(float64(budget) * safetyFraction)
}
