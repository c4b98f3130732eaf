package config

import "time"

// ResilienceConfig holds the per-destination circuit breaker and retry
// settings applied to outbound DIMSE SCU dispatch. It is plain
// configuration data; cmd/gatewayd (resilienceFor) converts it into a
// resilience.ResilienceConfig per destination AET when building the SCU.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
	Retry          RetryConfig          `koanf:"retry"`
}

// CircuitBreakerConfig mirrors resilience.CircuitBreakerConfig's fields so
// they can be loaded from TOML without this package importing resilience.
type CircuitBreakerConfig struct {
	MaxRequests      int           `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold int           `koanf:"failure_threshold"`
}

// RetryConfig mirrors resilience.RetryConfig's fields for the same reason.
type RetryConfig struct {
	MaxAttempts  int           `koanf:"max_attempts"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
	Multiplier   float64       `koanf:"multiplier"`
}

// DefaultResilienceConfig returns the gateway's default dial resilience
// policy: max 3 retry attempts with 1s/2s/4s backoff, circuit breaker trips
// after 5 consecutive failures.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      3,
			Interval:         10 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     4 * time.Second,
			Multiplier:   2.0,
		},
	}
}
