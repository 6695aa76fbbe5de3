package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.WebhookSecret = expandEnvVars(cfg.Gateway.WebhookSecret)
	cfg.Gateway.Token = expandEnvVars(cfg.Gateway.Token)
	cfg.Platform.APIKey = expandEnvVars(cfg.Platform.APIKey)
	cfg.Panel.JWTSecret = expandEnvVars(cfg.Panel.JWTSecret)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			expandSensitiveFields(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults after a
// partial config file has been unmarshalled over Defaults().
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = def.Gateway.Bind
	}
	if cfg.Executor.MaxAttempts == 0 {
		cfg.Executor.MaxAttempts = def.Executor.MaxAttempts
	}
	if cfg.Executor.RetryBaseMs == 0 {
		cfg.Executor.RetryBaseMs = def.Executor.RetryBaseMs
	}
	if cfg.Executor.RetryMaxMs == 0 {
		cfg.Executor.RetryMaxMs = def.Executor.RetryMaxMs
	}
	if cfg.Executor.MaxConcurrentRuns == 0 {
		cfg.Executor.MaxConcurrentRuns = def.Executor.MaxConcurrentRuns
	}
	if cfg.Executor.ActionTimeoutSec == 0 {
		cfg.Executor.ActionTimeoutSec = def.Executor.ActionTimeoutSec
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = def.Breaker.MaxFailures
	}
	if cfg.Breaker.TimeoutSec == 0 {
		cfg.Breaker.TimeoutSec = def.Breaker.TimeoutSec
	}
	if cfg.Breaker.IntervalSec == 0 {
		cfg.Breaker.IntervalSec = def.Breaker.IntervalSec
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Storage.RetentionDays == 0 {
		cfg.Storage.RetentionDays = def.Storage.RetentionDays
	}
	if cfg.Storage.SweepSchedule == "" {
		cfg.Storage.SweepSchedule = def.Storage.SweepSchedule
	}
	if cfg.Panel.TokenTTLHours == 0 {
		cfg.Panel.TokenTTLHours = def.Panel.TokenTTLHours
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

// applyEnvOverrides reads VOICEBRIDGE_* environment variables and overrides
// config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICEBRIDGE_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("VOICEBRIDGE_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("VOICEBRIDGE_WEBHOOK_SECRET"); v != "" {
		cfg.Gateway.WebhookSecret = v
	}
	if v := os.Getenv("VOICEBRIDGE_SKIP_VERIFY"); v != "" {
		cfg.Gateway.SkipVerify = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("VOICEBRIDGE_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("VOICEBRIDGE_PLATFORM_API_KEY"); v != "" {
		cfg.Platform.APIKey = v
	}
	if v := os.Getenv("VOICEBRIDGE_PANEL_JWT_SECRET"); v != "" {
		cfg.Panel.JWTSecret = v
	}
	if v := os.Getenv("VOICEBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
