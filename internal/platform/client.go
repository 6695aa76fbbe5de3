// Package platform is the client for the upstream voice platform's API:
// agent inventory, phone numbers, and per-agent consumption analytics.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/logging"
)

const (
	conversationsPageSize = 30
	maxConversationPages  = 50

	// Credits charged per second when a conversation reports no explicit
	// credit figure.
	defaultCreditsPerSec = 10.73
)

// Fields a conversation may report its credit cost under, probed in
// order.
var creditFieldCandidates = []string{
	"credits_used", "credit_cost", "credits", "llm_credits",
	"cost_credits", "total_credits", "credit_usage",
}

// Agent is one upstream agent definition.
type Agent struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

// PhoneNumber is one upstream phone number assignment.
type PhoneNumber struct {
	PhoneNumber   string `json:"phone_number"`
	Label         string `json:"label"`
	AgentID       string `json:"agent_id"`
	PhoneNumberID string `json:"phone_number_id"`
}

// Consumption aggregates successful calls for one agent over a period.
type Consumption struct {
	AgentID      string  `json:"agent_id"`
	Calls        int     `json:"calls"`
	DurationSecs float64 `json:"duration_secs"`
	Credits      float64 `json:"credits"`
}

// APIError is a non-2xx platform response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error (HTTP %d): %s", e.StatusCode, e.Body)
}

// Client talks to the platform API. Transient HTTP failures are retried
// by the underlying retryable client.
type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	log     *logging.Logger

	// creditsPerSec prices conversations without an explicit credit
	// figure.
	creditsPerSec float64
}

// NewClient creates a platform client from config.
func NewClient(cfg config.PlatformConfig, log *logging.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil

	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		http:          rc,
		log:           log.Sub("platform"),
		creditsPerSec: defaultCreditsPerSec,
	}
}

// ListAgents returns the upstream agent inventory.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var resp struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.get(ctx, "/convai/agents", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// ListPhoneNumbers returns the upstream phone number assignments.
func (c *Client) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	var numbers []PhoneNumber
	if err := c.get(ctx, "/convai/phone-numbers", nil, &numbers); err != nil {
		return nil, err
	}
	return numbers, nil
}

// Consumption pages through the agent's conversations in [startUnix,
// endUnix) and totals successful calls, seconds, and credits. A
// conversation with no explicit credit field is priced at creditsPerSec.
func (c *Client) Consumption(ctx context.Context, agentID string, startUnix, endUnix int64) (Consumption, error) {
	total := Consumption{AgentID: agentID}

	cursor := ""
	for page := 1; page <= maxConversationPages; page++ {
		params := url.Values{}
		params.Set("agent_id", agentID)
		params.Set("page_size", strconv.Itoa(conversationsPageSize))
		if cursor == "" {
			params.Set("start_unix", strconv.FormatInt(startUnix, 10))
			params.Set("call_start_before_unix", strconv.FormatInt(endUnix, 10))
		} else {
			params.Set("cursor", cursor)
		}

		var resp struct {
			Conversations []map[string]any `json:"conversations"`
			HasMore       bool             `json:"has_more"`
			NextCursor    string           `json:"next_cursor"`
		}
		if err := c.get(ctx, "/convai/conversations", params, &resp); err != nil {
			return Consumption{}, err
		}
		if len(resp.Conversations) == 0 {
			break
		}

		for _, convo := range resp.Conversations {
			c.tally(&total, convo)
		}

		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	c.log.Debug().
		Str("agent", agentID).
		Int("calls", total.Calls).
		Float64("credits", total.Credits).
		Msg("consumption computed")
	return total, nil
}

// tally adds one conversation to the running totals, skipping
// unsuccessful calls.
func (c *Client) tally(total *Consumption, convo map[string]any) {
	if status, ok := convo["call_successful"].(string); ok && status != "success" {
		return
	}
	total.Calls++

	secs := numField(convo, "call_duration_secs", "duration_secs")
	total.DurationSecs += secs

	for _, field := range creditFieldCandidates {
		if v, ok := convo[field]; ok && v != nil {
			if credits, ok := toFloat(v); ok && credits >= 0 {
				total.Credits += credits
				return
			}
		}
	}
	if secs > 0 {
		total.Credits += secs * c.creditsPerSec
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.Unmarshal(body, out)
}

func numField(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := toFloat(v); ok {
				return f
			}
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
