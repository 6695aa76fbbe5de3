package config

import (
	"fmt"
	"slices"

	"github.com/robfig/cron/v3"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	if cfg.Gateway.WebhookSecret == "" && !cfg.Gateway.SkipVerify {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.webhookSecret",
			Message: "required unless gateway.skipVerify is set",
		})
	}

	if cfg.Executor.MaxAttempts < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "executor.maxAttempts",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Executor.MaxAttempts),
		})
	}
	if cfg.Executor.RetryBaseMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "executor.retryBaseMs",
			Message: "must not be negative",
		})
	}
	if cfg.Executor.RetryMaxMs < cfg.Executor.RetryBaseMs {
		issues = append(issues, ValidationIssue{
			Path:    "executor.retryMaxMs",
			Message: fmt.Sprintf("must be >= retryBaseMs (%d), got %d", cfg.Executor.RetryBaseMs, cfg.Executor.RetryMaxMs),
		})
	}
	if cfg.Executor.MaxConcurrentRuns < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "executor.maxConcurrentRuns",
			Message: "must be at least 1",
		})
	}

	validBackends := []string{"sqlite", "memory"}
	if cfg.Storage.Backend != "" && !slices.Contains(validBackends, cfg.Storage.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "storage.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Storage.Backend),
		})
	}
	if cfg.Storage.RetentionDays < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "storage.retentionDays",
			Message: "must be at least 1",
		})
	}
	if cfg.Storage.SweepSchedule != "" {
		if _, err := cronParser.Parse(cfg.Storage.SweepSchedule); err != nil {
			issues = append(issues, ValidationIssue{
				Path:    "storage.sweepSchedule",
				Message: "invalid cron spec: " + err.Error(),
			})
		}
	}
	if cfg.Agents.ReloadSchedule != "" {
		if _, err := cronParser.Parse(cfg.Agents.ReloadSchedule); err != nil {
			issues = append(issues, ValidationIssue{
				Path:    "agents.reloadSchedule",
				Message: "invalid cron spec: " + err.Error(),
			})
		}
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	// Adapter sections are optional but must be complete when present.
	if m := cfg.Adapters.Mail; m != nil {
		if m.CredentialsFile == "" {
			issues = append(issues, ValidationIssue{
				Path:    "adapters.mail.credentialsFile",
				Message: "required",
			})
		}
		if m.TokenFile == "" {
			issues = append(issues, ValidationIssue{
				Path:    "adapters.mail.tokenFile",
				Message: "required",
			})
		}
	}
	if c := cfg.Adapters.Calendar; c != nil {
		if c.CredentialsFile == "" {
			issues = append(issues, ValidationIssue{
				Path:    "adapters.calendar.credentialsFile",
				Message: "required",
			})
		}
		if c.CalendarID == "" {
			issues = append(issues, ValidationIssue{
				Path:    "adapters.calendar.calendarId",
				Message: "required",
			})
		}
	}
	if s := cfg.Adapters.Sheets; s != nil && s.CredentialsFile == "" {
		issues = append(issues, ValidationIssue{
			Path:    "adapters.sheets.credentialsFile",
			Message: "required",
		})
	}

	if cfg.Platform.BaseURL == "" && cfg.Platform.APIKey != "" {
		issues = append(issues, ValidationIssue{
			Path:    "platform.baseUrl",
			Message: "required when platform.apiKey is set",
		})
	}

	return issues
}
