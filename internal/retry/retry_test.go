package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamenight/internal/cloud"
)

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func TestDoRecoversAfterTransientFailures(t *testing.T) {
	transient := &cloud.RemoteError{Code: cloud.CodeUnavailable, Message: "host down"}

	calls := 0
	op := func(context.Context) error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	}

	r := New(Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, nil, WithSleeper(noSleep))
	if err := r.Do(context.Background(), op); err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("operation invoked %d times, want 3", calls)
	}
}

func TestDoFatalErrorInvokedOnceAndUnwrapped(t *testing.T) {
	fatal := &cloud.RemoteError{Code: cloud.CodePermissionDenied, Message: "nope"}

	calls := 0
	r := New(Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, nil, WithSleeper(noSleep))
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})

	if calls != 1 {
		t.Fatalf("operation invoked %d times, want 1", calls)
	}
	if err != fatal {
		t.Fatalf("expected the original error back, got %v", err)
	}
}

func TestDoExhaustionReturnsOriginalError(t *testing.T) {
	transient := &cloud.RemoteError{Code: cloud.CodeInternal}

	calls := 0
	r := New(Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil, WithSleeper(noSleep))
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return transient
	})

	if calls != 3 {
		t.Fatalf("operation invoked %d times, want 3", calls)
	}
	if err != transient {
		t.Fatalf("expected the original error back, got %v", err)
	}
}

func TestDoUnknownStructuredCodeIsFatal(t *testing.T) {
	weird := &cloud.RemoteError{Code: "solar_flare"}

	calls := 0
	r := New(Policy{MaxAttempts: 4, BaseDelay: time.Millisecond}, nil, WithSleeper(noSleep))
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return weird
	})

	if calls != 1 {
		t.Fatalf("operation invoked %d times, want 1", calls)
	}
	if err != weird {
		t.Fatalf("expected the original error back, got %v", err)
	}
}

func TestDoTransportErrorRetries(t *testing.T) {
	calls := 0
	r := New(Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, nil, WithSleeper(noSleep))
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("dial tcp: connection refused")
	})

	if calls != 2 {
		t.Fatalf("operation invoked %d times, want 2", calls)
	}
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
}

func TestDoObserverSeesEachRetry(t *testing.T) {
	transient := &cloud.RemoteError{Code: cloud.CodeDeadlineExceeded}

	var attempts []int
	obs := func(attempt int, err error, delay time.Duration) {
		if err != transient {
			t.Fatalf("observer got wrong error: %v", err)
		}
		attempts = append(attempts, attempt)
	}

	calls := 0
	r := New(Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil,
		WithSleeper(noSleep), WithObserver(obs))
	_ = r.Do(context.Background(), func(context.Context) error {
		calls++
		return transient
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("observer attempts = %v, want [1 2]", attempts)
	}
}

func TestDoCancellationStopsRetriesAndObserver(t *testing.T) {
	transient := &cloud.RemoteError{Code: cloud.CodeUnavailable}
	ctx, cancel := context.WithCancel(context.Background())

	observed := 0
	calls := 0
	r := New(Policy{MaxAttempts: 10, BaseDelay: time.Millisecond}, nil,
		WithSleeper(noSleep),
		WithObserver(func(int, error, time.Duration) { observed++ }))

	err := r.Do(ctx, func(context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return transient
	})

	if calls != 2 {
		t.Fatalf("operation invoked %d times after cancel, want 2", calls)
	}
	if observed != 1 {
		t.Fatalf("observer fired %d times, want 1 (never after cancellation)", observed)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoCancelledBeforeStartNeverInvokes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	r := New(Policy{MaxAttempts: 3}, nil, WithSleeper(noSleep))
	err := r.Do(ctx, func(context.Context) error {
		calls++
		return nil
	})

	if calls != 0 {
		t.Fatalf("operation invoked %d times on dead context, want 0", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoOnceNeverRetries(t *testing.T) {
	transient := &cloud.RemoteError{Code: cloud.CodeUnavailable}

	calls := 0
	r := New(Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, nil, WithSleeper(noSleep))
	err := r.DoOnce(context.Background(), func(context.Context) error {
		calls++
		return transient
	})

	if calls != 1 {
		t.Fatalf("operation invoked %d times, want exactly 1", calls)
	}
	if err != transient {
		t.Fatalf("expected the original error back, got %v", err)
	}
}
