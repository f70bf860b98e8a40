package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FixedDelayStrategy retries with a constant delay between attempts.
// Every error is retried until the attempt bound is reached; after that the
// last error is returned to the caller.
type FixedDelayStrategy struct {
	maxAttempts int
	delay       time.Duration
}

// NewFixedDelayStrategy creates a new FixedDelayStrategy
func NewFixedDelayStrategy(maxAttempts int, delay time.Duration) *FixedDelayStrategy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &FixedDelayStrategy{
		maxAttempts: maxAttempts,
		delay:       delay,
	}
}

// Execute runs the operation, retrying with a fixed delay
func (s *FixedDelayStrategy) Execute(ctx context.Context, operation Operation) error {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 1 {
				slog.Info("Operation succeeded after retry",
					"attempt", attempt,
					"max_attempts", s.maxAttempts)
			}
			return nil
		}

		lastErr = err

		if attempt >= s.maxAttempts {
			break
		}

		slog.Warn("Operation failed, retrying after fixed delay",
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"delay", s.delay,
			"error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(s.delay):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", s.maxAttempts, lastErr)
}

// Name returns the strategy name
func (s *FixedDelayStrategy) Name() string {
	return "FixedDelay"
}
