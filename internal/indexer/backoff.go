package indexer

import (
	"context"
	"time"

	"statsScope/internal/chain"
)

// Action is what the caller should do after a failed attempt.
type Action int

const (
	// ActionWait means sleep Delay and retry the same range.
	ActionWait Action = iota
	// ActionAbandon means drop this sub-range and mark the result partial.
	ActionAbandon
	// ActionGiveUp means the consecutive-failure budget is spent.
	ActionGiveUp
)

func (a Action) String() string {
	switch a {
	case ActionWait:
		return "wait"
	case ActionAbandon:
		return "abandon"
	default:
		return "give_up"
	}
}

// Decision is the controller's answer to a failure.
type Decision struct {
	Action Action
	Delay  time.Duration
}

// BackoffPolicy holds the tunables for one call class.
type BackoffPolicy struct {
	BaseDelay              time.Duration
	MaxDelay               time.Duration
	MaxConsecutiveFailures int
	// MaxHintedDelay caps a provider-supplied wait.
	MaxHintedDelay time.Duration
	// AbandonAbove makes the caller drop the sub-range instead of waiting
	// when the hinted wait is longer than this.
	AbandonAbove time.Duration
}

// LogsPolicy is used for eth_getLogs range scans.
func LogsPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:              2 * time.Second,
		MaxDelay:               60 * time.Second,
		MaxConsecutiveFailures: 5,
		MaxHintedDelay:         10 * time.Minute,
		AbandonAbove:           60 * time.Second,
	}
}

// StatePolicy is used for eth_call state reads.
func StatePolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:              time.Second,
		MaxDelay:               30 * time.Second,
		MaxConsecutiveFailures: 3,
		MaxHintedDelay:         10 * time.Minute,
		AbandonAbove:           60 * time.Second,
	}
}

func (p BackoffPolicy) normalized() BackoffPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.MaxConsecutiveFailures <= 0 {
		p.MaxConsecutiveFailures = 3
	}
	if p.MaxHintedDelay <= 0 {
		p.MaxHintedDelay = 10 * time.Minute
	}
	if p.AbandonAbove <= 0 {
		p.AbandonAbove = time.Minute
	}
	return p
}

// Controller tracks consecutive failures and turns errors into decisions. It
// performs no I/O.
type Controller struct {
	policy   BackoffPolicy
	failures int
}

func NewController(policy BackoffPolicy) *Controller {
	return &Controller{policy: policy.normalized()}
}

// Failures returns the current consecutive-failure streak.
func (c *Controller) Failures() int {
	return c.failures
}

// Reset clears the failure streak after a success.
func (c *Controller) Reset() {
	c.failures = 0
}

// Next records a failure of the given kind and decides what to do next.
// hint is the provider's requested wait, zero if none.
func (c *Controller) Next(kind chain.ErrorKind, hint time.Duration) Decision {
	if c.failures >= c.policy.MaxConsecutiveFailures {
		return Decision{Action: ActionGiveUp}
	}
	if kind == chain.KindCanceled {
		return Decision{Action: ActionAbandon}
	}

	if hint > 0 {
		c.failures++
		if hint > c.policy.AbandonAbove {
			return Decision{Action: ActionAbandon, Delay: minDuration(hint, c.policy.MaxHintedDelay)}
		}
		return Decision{Action: ActionWait, Delay: minDuration(hint, c.policy.MaxHintedDelay)}
	}

	delay := c.policy.BaseDelay
	for i := 0; i < c.failures && delay < c.policy.MaxDelay; i++ {
		delay *= 2
	}
	c.failures++
	return Decision{Action: ActionWait, Delay: minDuration(delay, c.policy.MaxDelay)}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryCall runs fn, retrying rate-limit and transient failures under policy.
// Other errors, abandonment and give-up return the last error.
func RetryCall(ctx context.Context, policy BackoffPolicy, sleep Sleeper, fn func(context.Context) error) error {
	if sleep == nil {
		sleep = SleepContext
	}
	ctrl := NewController(policy)
	for {
		err := fn(ctx)
		if err == nil {
			ctrl.Reset()
			return nil
		}

		kind, hint := chain.Classify(err)
		if kind != chain.KindRateLimit && kind != chain.KindTransient {
			return err
		}
		decision := ctrl.Next(kind, hint)
		if decision.Action != ActionWait {
			return err
		}
		if serr := sleep(ctx, decision.Delay); serr != nil {
			return err
		}
	}
}
