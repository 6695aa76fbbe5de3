package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func issuePaths(issues []ValidationIssue) []string {
	paths := make([]string, 0, len(issues))
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_DefaultsWithSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.WebhookSecret = "secret"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_MissingWebhookSecret(t *testing.T) {
	cfg := Defaults()
	issues := Validate(&cfg)
	assert.Contains(t, issuePaths(issues), "gateway.webhookSecret")

	cfg.Gateway.SkipVerify = true
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.SkipVerify = true
	cfg.Gateway.Port = 70000
	issues := Validate(&cfg)
	assert.Contains(t, issuePaths(issues), "gateway.port")
}

func TestValidate_InvalidBind(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.SkipVerify = true
	cfg.Gateway.Bind = "everywhere"
	assert.Contains(t, issuePaths(Validate(&cfg)), "gateway.bind")
}

func TestValidate_ExecutorBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.SkipVerify = true
	cfg.Executor.MaxAttempts = 0
	cfg.Executor.RetryBaseMs = 5000
	cfg.Executor.RetryMaxMs = 100
	cfg.Executor.MaxConcurrentRuns = 0

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "executor.maxAttempts")
	assert.Contains(t, paths, "executor.retryMaxMs")
	assert.Contains(t, paths, "executor.maxConcurrentRuns")
}

func TestValidate_StorageBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.SkipVerify = true
	cfg.Storage.Backend = "postgres"
	assert.Contains(t, issuePaths(Validate(&cfg)), "storage.backend")
}

func TestValidate_CronSpecs(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.SkipVerify = true
	cfg.Storage.SweepSchedule = "every day at 3"
	cfg.Agents.ReloadSchedule = "61 * * * *"

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "storage.sweepSchedule")
	assert.Contains(t, paths, "agents.reloadSchedule")

	cfg.Storage.SweepSchedule = "@daily"
	cfg.Agents.ReloadSchedule = "*/15 * * * *"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.SkipVerify = true
	cfg.Logging.Level = "verbose"
	assert.Contains(t, issuePaths(Validate(&cfg)), "logging.level")
}

func TestValidate_IncompleteAdapterSections(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.SkipVerify = true
	cfg.Adapters.Mail = &MailConfig{}
	cfg.Adapters.Calendar = &CalendarConfig{CredentialsFile: "creds.json"}
	cfg.Adapters.Sheets = &SheetsConfig{SpreadsheetID: "abc"}

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "adapters.mail.credentialsFile")
	assert.Contains(t, paths, "adapters.mail.tokenFile")
	assert.Contains(t, paths, "adapters.calendar.calendarId")
	assert.Contains(t, paths, "adapters.sheets.credentialsFile")
}

func TestValidate_PlatformBaseURLRequired(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.SkipVerify = true
	cfg.Platform.APIKey = "key"
	assert.Contains(t, issuePaths(Validate(&cfg)), "platform.baseUrl")

	cfg.Platform.BaseURL = "https://api.example.com"
	assert.Empty(t, Validate(&cfg))
}
