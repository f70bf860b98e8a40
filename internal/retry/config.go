package retry

import (
	"os"
	"strconv"
	"time"
)

// Config holds retry configuration
type Config struct {
	Strategy    string        // "fixed" (default), "exponential" or "none"
	MaxAttempts int           // Total attempts, including the first one
	Delay       time.Duration // Delay between attempts (initial delay for exponential)
	MaxDelay    time.Duration // Cap on the delay for exponential backoff
}

// LoadConfig loads retry configuration from environment variables
func LoadConfig() Config {
	return Config{
		Strategy:    getEnvStr("RETRY_STRATEGY", "fixed"),
		MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		Delay:       time.Duration(getEnvAsInt("RETRY_DELAY_MS", 2000)) * time.Millisecond,
		MaxDelay:    time.Duration(getEnvAsInt("RETRY_MAX_DELAY_SEC", 60)) * time.Second,
	}
}

// Helper: get string from env
func getEnvStr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Helper: get int from env
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
