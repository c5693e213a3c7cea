package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:  maxRetries,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		Multiplier:  2.0,
		JitterRatio: 0,
	}
}

func TestDo(t *testing.T) {
	errTemporary := errors.New("overloaded")
	errPermanent := errors.New("invalid api key")

	tests := []struct {
		name       string
		maxRetries int
		failures   int   // calls that fail before success
		failErr    error // error returned on failing calls
		wantCalls  int
		wantErr    error
	}{
		{"first call succeeds", 3, 0, nil, 1, nil},
		{"recovers after retryable errors", 3, 2, Retryable(errTemporary), 3, nil},
		{"gives up after budget", 2, 10, Retryable(errTemporary), 3, errTemporary},
		{"stops on permanent error", 3, 10, errPermanent, 1, errPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := Do(context.Background(), fastConfig(tt.maxRetries), func() (string, error) {
				calls++
				if calls <= tt.failures {
					return "", tt.failErr
				}
				return "tailored", nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != "tailored" {
					t.Errorf("result = %q, want %q", got, "tailored")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if IsRetryable(err) {
				t.Error("final error should be unwrapped from RetryableError")
			}
		})
	}
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, cfg, func() (int, error) {
		return 0, Retryable(errors.New("rate_limit"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should return nil")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain error should not be retryable")
	}
	base := errors.New("503")
	wrapped := Retryable(base)
	if !IsRetryable(wrapped) {
		t.Error("wrapped error should be retryable")
	}
	if !errors.Is(wrapped, base) {
		t.Error("RetryableError should unwrap to the original error")
	}
}

func TestCalculateDelay(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond, Multiplier: 2}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond, // capped
	}
	for attempt, w := range want {
		if got := cfg.calculateDelay(attempt); got != w {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, w)
		}
	}
}

func TestCalculateDelayJitterBounds(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterRatio: 0.1}
	for i := 0; i < 50; i++ {
		d := cfg.calculateDelay(0)
		if d < 90*time.Millisecond || d > 110*time.Millisecond {
			t.Fatalf("delay %v outside jitter bounds", d)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 || cfg.BaseDelay != time.Second || cfg.MaxDelay != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10)
	if rl.maxTokens != 10 || rl.refillRate != 10 {
		t.Fatalf("unexpected bucket: max=%v refill=%v", rl.maxTokens, rl.refillRate)
	}

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("initial burst took %v", elapsed)
	}

	time.Sleep(150 * time.Millisecond)
	start = time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("refilled token took %v", elapsed)
	}
}

func TestRateLimiterContextCancelled(t *testing.T) {
	rl := NewRateLimiter(1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
