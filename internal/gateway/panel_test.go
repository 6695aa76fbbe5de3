package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/logging"
	"github.com/voicebridge/voicebridge/internal/platform"
)

// fakePlatform serves the subset of the upstream API the panel touches.
func fakePlatform(t *testing.T) *platform.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/convai/agents":
			json.NewEncoder(w).Encode(map[string]any{
				"agents": []map[string]any{{"agent_id": "ag_1", "name": "Reception"}},
			})
		case "/convai/phone-numbers":
			json.NewEncoder(w).Encode([]map[string]any{
				{"phone_number": "+15551230001", "agent_id": "ag_1"},
			})
		case "/convai/conversations":
			assert.Equal(t, "ag_1", r.URL.Query().Get("agent_id"))
			json.NewEncoder(w).Encode(map[string]any{
				"conversations": []map[string]any{
					{"call_successful": "success", "call_duration_secs": 120, "credits_used": 300},
					{"call_successful": "success", "call_duration_secs": 60, "credits_used": 150},
					{"call_successful": "failure", "call_duration_secs": 10, "credits_used": 25},
				},
				"has_more": false,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := platform.NewClient(config.PlatformConfig{BaseURL: srv.URL, APIKey: "test-key"}, logging.New(io.Discard, "silent"))
	return c
}

func TestPanelUsage(t *testing.T) {
	f := newGatewayFixture(t, nil, WithPlatform(fakePlatform(t)))

	token, err := issuePanelToken(testPanelSecret, "A1", time.Hour)
	require.NoError(t, err)

	body, err := json.Marshal(UsageRequest{StartDate: "2026-08-01", EndDate: "2026-08-31"})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/panel/usage", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	usage := decodeBody[UsageResponse](t, resp)
	assert.Equal(t, "A1", usage.AgentID)
	assert.Equal(t, 2, usage.Calls)
	assert.InDelta(t, 3.0, usage.Minutes, 0.001)
	assert.InDelta(t, 450.0, usage.Credits, 0.001)
	assert.InDelta(t, 45.0, usage.CostUSD, 0.001) // 450 credits at $0.10
}

func TestPanelUsageBadDates(t *testing.T) {
	f := newGatewayFixture(t, nil, WithPlatform(fakePlatform(t)))

	token, err := issuePanelToken(testPanelSecret, "A1", time.Hour)
	require.NoError(t, err)

	body := []byte(`{"start_date": "08/01/2026", "end_date": "2026-08-31"}`)
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/panel/usage", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPanelUsageWithoutPlatform(t *testing.T) {
	f := newGatewayFixture(t, nil)

	token, err := issuePanelToken(testPanelSecret, "A1", time.Hour)
	require.NoError(t, err)

	body := []byte(`{"start_date": "2026-08-01", "end_date": "2026-08-31"}`)
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/panel/usage", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAdminSyncAgents(t *testing.T) {
	f := newGatewayFixture(t, nil, WithPlatform(fakePlatform(t)))

	resp, err := http.Get(f.ts.URL + "/admin/sync-agents")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/admin/sync-agents", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testGatewayToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody[struct {
		Agents []platform.Agent `json:"agents"`
	}](t, resp)
	require.Len(t, out.Agents, 1)
	assert.Equal(t, "Reception", out.Agents[0].Name)
}

func TestAdminSyncNumbers(t *testing.T) {
	f := newGatewayFixture(t, nil, WithPlatform(fakePlatform(t)))

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/admin/sync-numbers", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testGatewayToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody[struct {
		Numbers []platform.PhoneNumber `json:"numbers"`
	}](t, resp)
	require.Len(t, out.Numbers, 1)
	assert.Equal(t, "+15551230001", out.Numbers[0].PhoneNumber)
}
