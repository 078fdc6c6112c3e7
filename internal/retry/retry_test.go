package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShouldRetry(t *testing.T) {
	p := Policy{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 60 * time.Second}

	want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60, 60, 60}
	for attempt, w := range want {
		retry, delay := p.ShouldRetry(attempt, errors.New("boom"))
		if !retry {
			t.Fatalf("ShouldRetry(%d) retry = false, want true", attempt)
		}
		if delay != w*time.Second {
			t.Errorf("ShouldRetry(%d) delay = %v, want %v", attempt, delay, w*time.Second)
		}
	}

	if retry, delay := p.ShouldRetry(10, errors.New("boom")); retry || delay != 0 {
		t.Errorf("ShouldRetry(10) = %v, %v, want false, 0", retry, delay)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	tc := []struct {
		attempt int
		retry   bool
		delay   time.Duration
	}{
		{0, true, time.Second},
		{1, true, 2 * time.Second},
		{2, true, 4 * time.Second},
		{3, false, 0},
		{4, false, 0},
		{-1, false, 0},
	}

	for _, tt := range tc {
		retry, delay := p.ShouldRetry(tt.attempt, nil)
		if retry != tt.retry || delay != tt.delay {
			t.Errorf("ShouldRetry(%d) = %v, %v, want %v, %v", tt.attempt, retry, delay, tt.retry, tt.delay)
		}
	}
}

func TestDelayCapsLargeAttempts(t *testing.T) {
	p := Policy{MaxRetries: 1000, BaseDelay: time.Second, MaxDelay: time.Minute}
	if got := p.Delay(500); got != time.Minute {
		t.Errorf("Delay(500) = %v, want %v", got, time.Minute)
	}
}

func newTestRetrier(p Policy) (*Retrier, *[]time.Duration) {
	r := New(p, nil)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return r, &slept
}

func TestRetrierDo(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		r, slept := newTestRetrier(DefaultPolicy())

		calls := 0
		err := r.Do(context.Background(), "fetch", func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("temporary")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
			t.Errorf("slept = %v, want [1s 2s]", *slept)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		r, slept := newTestRetrier(DefaultPolicy())
		boom := errors.New("boom")

		calls := 0
		err := r.Do(context.Background(), "fetch", func(context.Context) error {
			calls++
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Do() error = %v, want %v", err, boom)
		}
		if calls != 4 {
			t.Errorf("calls = %d, want 4 (1 + 3 retries)", calls)
		}
		if len(*slept) != 3 {
			t.Errorf("sleeps = %d, want 3", len(*slept))
		}
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		r, _ := newTestRetrier(DefaultPolicy())
		ctx, cancel := context.WithCancel(context.Background())

		calls := 0
		err := r.Do(ctx, "fetch", func(context.Context) error {
			calls++
			cancel()
			return errors.New("boom")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("zero retries calls once", func(t *testing.T) {
		r, slept := newTestRetrier(Policy{MaxRetries: 0, BaseDelay: time.Second})
		calls := 0
		r.Do(context.Background(), "fetch", func(context.Context) error {
			calls++
			return errors.New("boom")
		})
		if calls != 1 || len(*slept) != 0 {
			t.Errorf("calls = %d, sleeps = %d, want 1, 0", calls, len(*slept))
		}
	})
}

func TestValue(t *testing.T) {
	r, _ := newTestRetrier(DefaultPolicy())

	calls := 0
	got, err := Value(context.Background(), r, "count", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("Value() = %v, %v, want 42, nil", got, err)
	}
}

func TestSleepWithContext(t *testing.T) {
	if err := sleepWithContext(context.Background(), 0); err != nil {
		t.Errorf("zero sleep error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepWithContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled sleep error = %v, want %v", err, context.Canceled)
	}
}
