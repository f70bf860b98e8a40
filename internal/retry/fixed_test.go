package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFixedDelayStrategy_Success(t *testing.T) {
	strategy := NewFixedDelayStrategy(3, 10*time.Millisecond)

	err := strategy.Execute(context.Background(), func() error {
		return nil // Success on first try
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestFixedDelayStrategy_SuccessAfterRetries(t *testing.T) {
	strategy := NewFixedDelayStrategy(3, 10*time.Millisecond)

	attempts := 0
	err := strategy.Execute(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error after retries, got: %v", err)
	}

	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got: %d", attempts)
	}
}

func TestFixedDelayStrategy_AttemptsExhausted(t *testing.T) {
	strategy := NewFixedDelayStrategy(3, 1*time.Millisecond)

	attempts := 0
	err := strategy.Execute(context.Background(), func() error {
		attempts++
		return errors.New("remote unavailable") // Always fail
	})

	if err == nil {
		t.Error("Expected error after all attempts exhausted")
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestFixedDelayStrategy_RetriesAnyError(t *testing.T) {
	// Unlike the backoff strategy, fixed delay does not classify errors:
	// every failure is retried until the bound.
	strategy := NewFixedDelayStrategy(2, 1*time.Millisecond)

	attempts := 0
	err := strategy.Execute(context.Background(), func() error {
		attempts++
		return errors.New("invalid data")
	})

	if err == nil {
		t.Error("Expected error after all attempts exhausted")
	}

	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got: %d", attempts)
	}
}

func TestFixedDelayStrategy_ContextCancellation(t *testing.T) {
	strategy := NewFixedDelayStrategy(10, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := strategy.Execute(ctx, func() error {
		attempts++
		return errors.New("timeout")
	})

	if err == nil {
		t.Error("Expected error due to context cancellation")
	}

	if attempts < 1 {
		t.Errorf("Expected at least 1 attempt, got: %d", attempts)
	}
}

func TestFixedDelayStrategy_MinimumOneAttempt(t *testing.T) {
	strategy := NewFixedDelayStrategy(0, time.Millisecond)

	attempts := 0
	_ = strategy.Execute(context.Background(), func() error {
		attempts++
		return nil
	})

	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt, got: %d", attempts)
	}
}
