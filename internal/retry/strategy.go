package retry

import (
	"context"
	"log/slog"
)

// Strategy defines the interface for retry strategies
type Strategy interface {
	// Execute runs the operation with the configured retry logic
	Execute(ctx context.Context, operation Operation) error

	// Name returns the name of the strategy for logging
	Name() string
}

// Operation is a function that can be retried
type Operation func() error

// NewStrategy creates a retry strategy based on configuration
func NewStrategy(config Config) Strategy {
	switch config.Strategy {
	case "none":
		slog.Info("Retry disabled, using NoRetryStrategy")
		return NewNoRetryStrategy()
	case "exponential":
		slog.Info("Retry enabled, using ExponentialBackoffStrategy",
			"max_attempts", config.MaxAttempts,
			"initial_delay", config.Delay,
			"max_delay", config.MaxDelay,
		)
		return NewExponentialBackoffStrategy(config.MaxAttempts, config.Delay, config.MaxDelay)
	default:
		slog.Info("Retry enabled, using FixedDelayStrategy",
			"max_attempts", config.MaxAttempts,
			"delay", config.Delay,
		)
		return NewFixedDelayStrategy(config.MaxAttempts, config.Delay)
	}
}
