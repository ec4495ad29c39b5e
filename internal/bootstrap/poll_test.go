package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_MaxWait(t *testing.T) {
	if got := SessionPollPolicy.MaxWait(); got != 2500*time.Millisecond {
		t.Errorf("SessionPollPolicy.MaxWait() = %v, want 2.5s", got)
	}
	if got := ProfilePollPolicy.MaxWait(); got != time.Second {
		t.Errorf("ProfilePollPolicy.MaxWait() = %v, want 1s", got)
	}
}

func TestPoll_StopsAtFirstHit(t *testing.T) {
	sleeper := &fakeSleeper{}
	calls := 0

	result, err := Poll(context.Background(), RetryPolicy{Attempts: 5, Interval: time.Second}, sleeper, "test",
		func(context.Context) (string, bool, error) {
			calls++
			return "value", calls == 3, nil
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Found || result.Value != "value" {
		t.Errorf("result = %+v, want found value", result)
	}
	if result.Attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", result.Attempts, calls)
	}
	if sleeper.count() != 2 {
		t.Errorf("sleeps = %d, want 2", sleeper.count())
	}
}

func TestPoll_ExhaustedWaitsAfterEveryMiss(t *testing.T) {
	sleeper := &fakeSleeper{}
	policy := RetryPolicy{Attempts: 4, Interval: 100 * time.Millisecond}

	result, err := Poll(context.Background(), policy, sleeper, "test",
		func(context.Context) (int, bool, error) { return 0, false, nil },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Found {
		t.Error("expected not found")
	}
	if result.Attempts != 4 {
		t.Errorf("attempts = %d, want 4", result.Attempts)
	}
	if sleeper.total() != policy.MaxWait() {
		t.Errorf("total wait = %v, want %v", sleeper.total(), policy.MaxWait())
	}
}

func TestPoll_FetchErrorCountsAsMiss(t *testing.T) {
	sleeper := &fakeSleeper{}
	calls := 0

	result, err := Poll(context.Background(), RetryPolicy{Attempts: 3, Interval: time.Millisecond}, sleeper, "test",
		func(context.Context) (string, bool, error) {
			calls++
			if calls == 1 {
				return "", false, errors.New("temporary failure")
			}
			return "ok", true, nil
		},
	)
	if err != nil {
		t.Fatalf("provider error should not surface, got %v", err)
	}
	if !result.Found || result.Attempts != 2 {
		t.Errorf("result = %+v, want found on attempt 2", result)
	}
}

func TestPoll_CanceledDuringSleep_ReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeper := &fakeSleeper{onSleep: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	calls := 0

	result, err := Poll(ctx, RetryPolicy{Attempts: 10, Interval: time.Second}, sleeper, "test",
		func(context.Context) (string, bool, error) {
			calls++
			return "", false, nil
		},
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 2 || result.Attempts != 2 {
		t.Errorf("calls = %d, attempts = %d, want 2", calls, result.Attempts)
	}
}

func TestTimerSleeper_WaitsForDuration(t *testing.T) {
	start := time.Now()
	if err := (TimerSleeper{}).Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 20ms", elapsed)
	}
}

func TestTimerSleeper_CanceledContext_ReturnsEarly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := (TimerSleeper{}).Sleep(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("sleep should return early, elapsed = %v", elapsed)
	}
}
