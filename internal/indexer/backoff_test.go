package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"statsScope/internal/chain"
)

func TestControllerExponentialBackoff(t *testing.T) {
	ctrl := NewController(BackoffPolicy{
		BaseDelay:              time.Second,
		MaxDelay:               5 * time.Second,
		MaxConsecutiveFailures: 4,
	})

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, expected := range want {
		d := ctrl.Next(chain.KindTransient, 0)
		if d.Action != ActionWait {
			t.Fatalf("attempt %d: expected wait, got %s", i, d.Action)
		}
		if d.Delay != expected {
			t.Fatalf("attempt %d: delay %s != %s", i, d.Delay, expected)
		}
	}

	if d := ctrl.Next(chain.KindTransient, 0); d.Action != ActionGiveUp {
		t.Fatalf("expected give up after max failures, got %s", d.Action)
	}
}

func TestControllerResetClearsStreak(t *testing.T) {
	ctrl := NewController(BackoffPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, MaxConsecutiveFailures: 3})
	ctrl.Next(chain.KindRateLimit, 0)
	ctrl.Next(chain.KindRateLimit, 0)
	if ctrl.Failures() != 2 {
		t.Fatalf("expected 2 failures, got %d", ctrl.Failures())
	}

	ctrl.Reset()
	d := ctrl.Next(chain.KindRateLimit, 0)
	if d.Delay != time.Second {
		t.Fatalf("expected base delay after reset, got %s", d.Delay)
	}
}

func TestControllerHintedDelay(t *testing.T) {
	ctrl := NewController(LogsPolicy())
	d := ctrl.Next(chain.KindRateLimit, 5*time.Second)
	if d.Action != ActionWait || d.Delay != 5*time.Second {
		t.Fatalf("expected wait 5s, got %s %s", d.Action, d.Delay)
	}
}

func TestControllerAbandonsLongHint(t *testing.T) {
	ctrl := NewController(LogsPolicy())
	d := ctrl.Next(chain.KindRateLimit, 700000*time.Millisecond)
	if d.Action != ActionAbandon {
		t.Fatalf("expected abandon for 700s hint, got %s", d.Action)
	}
	if d.Delay > 10*time.Minute {
		t.Fatalf("hinted delay not capped: %s", d.Delay)
	}
}

func TestRetryCallRetriesTransient(t *testing.T) {
	var slept []time.Duration
	sleeper := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	err := RetryCall(context.Background(), StatePolicy(), sleeper, func(context.Context) error {
		calls++
		if calls < 3 {
			return chain.ErrTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected sleeps: %v", slept)
	}
}

func TestRetryCallStopsOnUnknownError(t *testing.T) {
	reverted := errors.New("execution reverted")
	calls := 0
	err := RetryCall(context.Background(), StatePolicy(), nil, func(context.Context) error {
		calls++
		return reverted
	})
	if !errors.Is(err, reverted) {
		t.Fatalf("expected reverted error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetryCallGivesUp(t *testing.T) {
	calls := 0
	err := RetryCall(context.Background(), StatePolicy(), func(context.Context, time.Duration) error { return nil }, func(context.Context) error {
		calls++
		return chain.ErrTransient
	})
	if !errors.Is(err, chain.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != StatePolicy().MaxConsecutiveFailures+1 {
		t.Fatalf("unexpected call count %d", calls)
	}
}
