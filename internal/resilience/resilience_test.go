package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("executor unavailable")

func TestBreaker_ClosedAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected call through closed breaker, err=%v called=%v", err, called)
	}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	fail := func(context.Context) error { return errTest }

	for i := 0; i < 2; i++ {
		if err := b.Execute(context.Background(), fail); !errors.Is(err, errTest) {
			t.Fatalf("expected errTest, got %v", err)
		}
	}

	if err := b.Execute(context.Background(), fail); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(1, time.Second)
	clock := time.Unix(1000, 0)
	b.now = func() time.Time { return clock }

	_ = b.Execute(context.Background(), func(context.Context) error { return errTest })
	if err := b.Execute(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	// After the timeout the breaker lets one probe through.
	clock = clock.Add(2 * time.Second)
	if err := b.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to succeed, got %v", err)
	}
	if b.Failures() != 0 {
		t.Fatalf("expected failure count reset, got %d", b.Failures())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, time.Second)
	clock := time.Unix(1000, 0)
	b.now = func() time.Time { return clock }

	_ = b.Execute(context.Background(), func(context.Context) error { return errTest })
	clock = clock.Add(2 * time.Second)
	_ = b.Execute(context.Background(), func(context.Context) error { return errTest })

	if err := b.Execute(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}

func TestRetryPolicy_SucceedsWithoutRetry(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Delay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		if attempt != calls {
			t.Fatalf("attempt %d != calls %d", attempt, calls)
		}
		return nil
	}, nil)
	if err != nil || calls != 1 {
		t.Fatalf("expected single successful call, err=%v calls=%d", err, calls)
	}
}

func TestRetryPolicy_ExhaustsAndReturnsLastError(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, Delay: time.Millisecond}
	calls := 0
	var retries []int
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errTest
	}, func(attempt int, err error) {
		retries = append(retries, attempt)
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("expected errTest, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(retries) != 2 || retries[0] != 2 || retries[1] != 3 {
		t.Fatalf("unexpected retry notifications: %v", retries)
	}
}

func TestRetryPolicy_CancelledBetweenAttempts(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, Delay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Do(ctx, func(context.Context, int) error {
		calls++
		cancel()
		return errTest
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", calls)
	}
}
