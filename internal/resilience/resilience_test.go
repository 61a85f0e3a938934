package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/nadimtuhin/loopwork/internal/resilience"
)

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	res := resilience.Do(context.Background(), resilience.Config{
		Retry: resilience.FixedRetry{Max: 3},
	}, nil, func(ctx context.Context, attemptNo int) (any, *resilience.AttemptError) {
		calls++
		return "ok", nil
	})

	if !res.Success {
		t.Fatalf("Success = false, want true")
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if calls != 1 {
		t.Errorf("call count = %d, want 1", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	res := resilience.Do(context.Background(), resilience.Config{
		Retry:   resilience.FixedRetry{Max: 3},
		Backoff: &resilience.ExponentialBackoff{Base: time.Millisecond, Max: 10 * time.Millisecond},
	}, nil, func(ctx context.Context, attemptNo int) (any, *resilience.AttemptError) {
		calls++
		if attemptNo < 3 {
			return nil, &resilience.AttemptError{Classification: "failure"}
		}
		return "ok", nil
	})

	if !res.Success {
		t.Fatalf("Success = false, want true")
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
}

func TestDoStopsAtMaxAttemptsLimit(t *testing.T) {
	calls := 0
	res := resilience.Do(context.Background(), resilience.Config{
		Retry:   resilience.FixedRetry{Max: 2},
		Backoff: &resilience.ExponentialBackoff{Base: time.Millisecond},
	}, nil, func(ctx context.Context, attemptNo int) (any, *resilience.AttemptError) {
		calls++
		return nil, &resilience.AttemptError{Classification: "failure"}
	})

	if res.Success {
		t.Errorf("Success = true, want false")
	}
	if calls != 2 {
		t.Errorf("call count = %d, want 2 (bounded by maxAttempts)", calls)
	}
	if res.Attempts > 2 {
		t.Errorf("Attempts = %d, want <= 2", res.Attempts)
	}
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	res := resilience.Do(context.Background(), resilience.Config{
		Retry: resilience.FixedRetry{Max: 5, NonRetryable: map[string]bool{"spawn-error": true}},
	}, nil, func(ctx context.Context, attemptNo int) (any, *resilience.AttemptError) {
		calls++
		return nil, &resilience.AttemptError{Classification: "spawn-error"}
	})

	if calls != 1 {
		t.Errorf("call count = %d, want 1", calls)
	}
	if res.Success {
		t.Errorf("Success = true, want false")
	}
}

func TestDoCancellationStopsBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res := resilience.Do(ctx, resilience.Config{
		Retry:   resilience.FixedRetry{Max: 5},
		Backoff: &resilience.ExponentialBackoff{Base: 50 * time.Millisecond, JitterFrac: 0},
	}, nil, func(ctx context.Context, attemptNo int) (any, *resilience.AttemptError) {
		calls++
		if attemptNo == 1 {
			cancel()
		}
		return nil, &resilience.AttemptError{Classification: "failure"}
	})

	if res.Success {
		t.Errorf("Success = true, want false")
	}
	if calls > 2 {
		t.Errorf("call count = %d, want attempts to stop shortly after cancellation", calls)
	}
}

func TestStatsAccumulateMonotonically(t *testing.T) {
	var stats resilience.Stats
	resilience.Do(context.Background(), resilience.Config{Retry: resilience.FixedRetry{Max: 1}}, &stats,
		func(ctx context.Context, attemptNo int) (any, *resilience.AttemptError) { return "ok", nil })
	resilience.Do(context.Background(), resilience.Config{Retry: resilience.FixedRetry{Max: 1}}, &stats,
		func(ctx context.Context, attemptNo int) (any, *resilience.AttemptError) {
			return nil, &resilience.AttemptError{Classification: "failure"}
		})

	snap := stats.Snapshot()
	if snap.TotalOps != 2 || snap.SuccessfulOps != 1 || snap.FailedOps != 1 {
		t.Errorf("Snapshot() = %+v, want TotalOps=2 SuccessfulOps=1 FailedOps=1", snap)
	}
}
