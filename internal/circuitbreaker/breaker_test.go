package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func testConfig() Config {
	return Config{
		MaxRequests:      5,
		Interval:         200 * time.Millisecond,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("test", testConfig(), zaptest.NewLogger(t))

	if b.State() != StateClosed {
		t.Fatalf("expected initial state closed, got %s", b.State())
	}

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("successes must not trip the breaker, got %s", b.State())
	}

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errors.New("upstream down") }); err == nil {
			t.Fatal("expected error")
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %s", b.State())
	}

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen while open, got %v", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := New("test", testConfig(), zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errors.New("upstream down") })
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(75 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", b.State())
	}

	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d failed: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probes, got %s", b.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := New("test", testConfig(), zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errors.New("upstream down") })
	}
	time.Sleep(75 * time.Millisecond)

	_ = b.Execute(func() error { return errors.New("still down") })
	if b.State() != StateOpen {
		t.Fatalf("expected reopen on half-open failure, got %s", b.State())
	}
}
