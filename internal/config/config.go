// Package config loads and validates the voicebridge service configuration.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 8790,
			Bind: "loopback",
		},
		Executor: ExecutorConfig{
			MaxAttempts:       3,
			RetryBaseMs:       500,
			RetryMaxMs:        30000,
			MaxConcurrentRuns: 32,
			ActionTimeoutSec:  30,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			TimeoutSec:  30,
			IntervalSec: 60,
		},
		Storage: StorageConfig{
			Backend:       "sqlite",
			RetentionDays: 30,
			SweepSchedule: "0 3 * * *",
		},
		Panel: PanelConfig{
			TokenTTLHours: 12,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
