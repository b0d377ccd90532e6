package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	ragonometrics "github.com/badbayesian/ragonometrics-sub003"
)

func TestConstant(t *testing.T) {
	t.Parallel()

	c := NewConstant(5 * time.Second)
	for _, attempt := range []int{1, 2, 10} {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Fatalf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	t.Parallel()

	e := NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitterBounds(t *testing.T) {
	t.Parallel()

	e := NewExponentialWithJitter(time.Second, 8*time.Second)
	for attempt := 1; attempt <= 6; attempt++ {
		ceiling := time.Duration(float64(time.Second) * float64(int(1)<<(attempt-1)))
		if ceiling > 8*time.Second {
			ceiling = 8 * time.Second
		}
		for n := 0; n < 50; n++ {
			d := e.Delay(attempt)
			if d < 0 || d > ceiling {
				t.Fatalf("Delay(%d) = %v outside [0, %v]", attempt, d, ceiling)
			}
		}
	}
}

func TestPolicyRetriesTransient(t *testing.T) {
	t.Parallel()

	var calls int
	p := Policy{MaxAttempts: 3, Strategy: NewConstant(0)}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return ragonometrics.E(ragonometrics.CodeTransient, "rate limited", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestPolicyStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	var calls int
	p := Policy{MaxAttempts: 5, Strategy: NewConstant(0)}
	fatal := ragonometrics.E(ragonometrics.CodeValidation, "bad prompt", nil)
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want wrapped fatal", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry of validation errors)", calls)
	}
}

func TestPolicyExhaustsBudget(t *testing.T) {
	t.Parallel()

	var calls int
	p := Policy{MaxAttempts: 4, Strategy: NewConstant(0)}
	transient := ragonometrics.E(ragonometrics.CodeTransient, "still down", nil)
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("err = %v, want transient", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestPolicyContextCancelDuringSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, Strategy: NewConstant(time.Hour)}

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			return ragonometrics.E(ragonometrics.CodeTransient, "down", nil)
		})
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}
