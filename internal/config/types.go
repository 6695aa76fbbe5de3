package config

// Config is the root service configuration for voicebridge.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Agents   AgentsConfig   `yaml:"agents,omitempty"`
	Executor ExecutorConfig `yaml:"executor,omitempty"`
	Breaker  BreakerConfig  `yaml:"breaker,omitempty"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Adapters AdaptersConfig `yaml:"adapters,omitempty"`
	Platform PlatformConfig `yaml:"platform,omitempty"`
	Panel    PanelConfig    `yaml:"panel,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// GatewayConfig controls the webhook HTTP server.
type GatewayConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	// WebhookSecret is the shared HMAC secret for platform signatures.
	// Supports ${ENV_VAR} expansion.
	WebhookSecret string `yaml:"webhookSecret,omitempty"`
	// SkipVerify disables webhook signature checks. Local development only.
	SkipVerify bool `yaml:"skipVerify,omitempty"`
	// Token protects the admin endpoints and the run-event stream.
	Token          string   `yaml:"token,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// AgentsConfig locates the agent definitions and the global rule matrix.
type AgentsConfig struct {
	// Dir holds one JSON file per agent. Files starting with "_" are ignored.
	Dir string `yaml:"dir,omitempty"`
	// Matrix is the path to the company-wide rule matrix JSON file.
	Matrix string `yaml:"matrix,omitempty"`
	// ReloadSchedule is an optional cron spec for periodic reloads
	// (e.g. "@every 5m"). Empty disables scheduled reloads.
	ReloadSchedule string `yaml:"reloadSchedule,omitempty"`
}

// ExecutorConfig tunes workflow execution and retry behavior.
type ExecutorConfig struct {
	// MaxAttempts bounds retries of transient adapter failures per action.
	MaxAttempts int `yaml:"maxAttempts,omitempty"`
	// RetryBaseMs is the initial backoff delay in milliseconds.
	RetryBaseMs int `yaml:"retryBaseMs,omitempty"`
	// RetryMaxMs caps the backoff delay in milliseconds.
	RetryMaxMs int `yaml:"retryMaxMs,omitempty"`
	// MaxConcurrentRuns bounds the number of workflow runs in flight.
	MaxConcurrentRuns int `yaml:"maxConcurrentRuns,omitempty"`
	// ActionTimeoutSec bounds one adapter call.
	ActionTimeoutSec int `yaml:"actionTimeoutSec,omitempty"`
}

// BreakerConfig tunes the circuit breaker wrapped around each adapter.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"maxFailures,omitempty"`
	TimeoutSec  int    `yaml:"timeoutSec,omitempty"`
	IntervalSec int    `yaml:"intervalSec,omitempty"`
}

// StorageConfig controls the run archive.
type StorageConfig struct {
	Backend       string `yaml:"backend,omitempty"` // "sqlite" | "memory"
	RetentionDays int    `yaml:"retentionDays,omitempty"`
	// SweepSchedule is a cron spec for the retention sweep.
	SweepSchedule string `yaml:"sweepSchedule,omitempty"`
}

// AdaptersConfig configures the external service adapters. A nil section
// leaves that adapter unregistered, so agents declaring the capability
// fail resolution instead of failing mid-run.
type AdaptersConfig struct {
	Mail     *MailConfig     `yaml:"mail,omitempty"`
	Calendar *CalendarConfig `yaml:"calendar,omitempty"`
	Sheets   *SheetsConfig   `yaml:"sheets,omitempty"`
	Location *LocationConfig `yaml:"location,omitempty"`
	Billing  *BillingConfig  `yaml:"billing,omitempty"`
}

// MailConfig configures the Gmail send adapter.
type MailConfig struct {
	// CredentialsFile is the OAuth client credentials JSON.
	CredentialsFile string `yaml:"credentialsFile"`
	// TokenFile caches the OAuth refresh token.
	TokenFile  string `yaml:"tokenFile"`
	SenderName string `yaml:"senderName,omitempty"`
	// DefaultTo receives workflow mail when neither the agent settings
	// nor the event payload name a recipient.
	DefaultTo string `yaml:"defaultTo,omitempty"`
}

// CalendarConfig configures the Google Calendar availability adapter.
type CalendarConfig struct {
	CredentialsFile string `yaml:"credentialsFile"`
	CalendarID      string `yaml:"calendarId"`
	Timezone        string `yaml:"timezone,omitempty"`
	// SlotMinutes is the appointment slot checked for conflicts.
	SlotMinutes int `yaml:"slotMinutes,omitempty"`
}

// SheetsConfig configures the Google Sheets append adapter.
type SheetsConfig struct {
	CredentialsFile string `yaml:"credentialsFile"`
	// SpreadsheetID is the fallback sheet when an agent defines none.
	SpreadsheetID string `yaml:"spreadsheetId,omitempty"`
}

// LocationConfig configures the address-by-mail adapter.
type LocationConfig struct {
	// DefaultAddress is sent when the agent settings define no address.
	DefaultAddress string `yaml:"defaultAddress,omitempty"`
}

// BillingConfig configures invoice line generation.
type BillingConfig struct {
	Currency     string  `yaml:"currency,omitempty"`
	USDPerCredit float64 `yaml:"usdPerCredit,omitempty"`
}

// PlatformConfig configures the upstream voice-platform API client.
type PlatformConfig struct {
	BaseURL string `yaml:"baseUrl,omitempty"`
	// APIKey supports ${ENV_VAR} expansion.
	APIKey       string  `yaml:"apiKey,omitempty"`
	USDPerCredit float64 `yaml:"usdPerCredit,omitempty"`
}

// PanelConfig configures the agent panel authentication.
type PanelConfig struct {
	// JWTSecret signs panel tokens. Supports ${ENV_VAR} expansion.
	// Falls back to the webhook secret when empty.
	JWTSecret string `yaml:"jwtSecret,omitempty"`
	// TokenTTLHours is the panel token lifetime.
	TokenTTLHours int `yaml:"tokenTtlHours,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
}
