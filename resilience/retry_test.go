package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:        maxRetries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryableErrors:   DefaultRetryableErrors,
	}
}

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("temporary error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(2), func() error {
		attempts++
		return errors.New("persistent error")
	})
	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 3 { // Initial attempt + 2 retries
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	permanent := errors.New("bad request")
	config := fastRetry(3)
	config.RetryableErrors = func(err error) bool { return !errors.Is(err, permanent) }

	attempts := 0
	err := Retry(context.Background(), config, func() error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("Expected the permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	config := fastRetry(5)
	config.InitialBackoff = 100 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := Retry(ctx, config, func() error {
		attempts++
		return errors.New("temporary error")
	})
	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected the backoff wait to be cut by the context, got %d attempts", attempts)
	}
}

func TestRetryWithStats(t *testing.T) {
	attempts := 0
	stats, err := RetryWithStats(context.Background(), fastRetry(2), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if stats.TotalAttempts != 3 || stats.TotalRetries != 2 || stats.SuccessfulCalls != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if stats.AverageBackoff <= 0 {
		t.Errorf("Expected positive average backoff, got %v", stats.AverageBackoff)
	}
}

func TestDefaultRetryableErrors(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("network error"), true},
		{ErrCircuitBreakerOpen, false},
		{ErrCircuitBreakerTimeout, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		if got := DefaultRetryableErrors(tt.err); got != tt.retryable {
			t.Errorf("Error %v: expected retryable=%v, got %v", tt.err, tt.retryable, got)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	config := RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
	}
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1 * time.Second},
		{9, 1 * time.Second},
	}
	for _, tt := range tests {
		if result := calculateBackoff(tt.attempt, config); result != tt.expected {
			t.Errorf("Attempt %d: expected %v, got %v", tt.attempt, tt.expected, result)
		}
	}

	config.Jitter = true
	for range 10 {
		d := calculateBackoff(1, config)
		if d < 180*time.Millisecond || d > 220*time.Millisecond {
			t.Errorf("Jittered backoff %v outside expected range [180ms, 220ms]", d)
		}
	}
}
