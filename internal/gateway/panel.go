package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/voicebridge/voicebridge/internal/configstore"
)

// LoginRequest is the panel login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the panel login response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// UsageRequest selects the reporting period, dates inclusive.
type UsageRequest struct {
	StartDate string `json:"start_date"` // "2006-01-02"
	EndDate   string `json:"end_date"`
}

// UsageResponse is the panel usage report.
type UsageResponse struct {
	AgentID     string  `json:"agent_id"`
	Calls       int     `json:"calls"`
	Minutes     float64 `json:"minutes"`
	Credits     float64 `json:"credits"`
	CostUSD     float64 `json:"cost_usd"`
	PeriodStart string  `json:"period_start"`
	PeriodEnd   string  `json:"period_end"`
}

// handlePanelLogin exchanges an agent's panel credentials for a JWT.
func (s *Server) handlePanelLogin(w http.ResponseWriter, r *http.Request) {
	if !s.loginLimiter.allow(r.RemoteAddr) {
		writeError(w, http.StatusTooManyRequests, "too many failed attempts")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	snap := s.configs.Snapshot()
	agent, ok := snap.AgentByPanelUser(req.Username)
	if !ok || agent.PanelPassHash == "" || !checkPassword(agent.PanelPassHash, req.Password) {
		s.loginLimiter.recordFailure(r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ttl := time.Duration(s.cfg.Panel.TokenTTLHours) * time.Hour
	token, err := issuePanelToken(s.panelSecret(), agent.ID, ttl)
	if err != nil {
		s.log.Error().Err(err).Msg("signing panel token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info().Str("agent", agent.ID).Msg("panel login")
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}

// panelAgent authenticates a panel request and resolves its agent.
func (s *Server) panelAgent(r *http.Request) (*configstore.AgentConfig, bool) {
	sub, err := parsePanelToken(s.panelSecret(), bearerToken(r))
	if err != nil {
		return nil, false
	}
	agent, ok := s.configs.Snapshot().Agent(sub)
	return agent, ok
}

// handlePanelUsage reports the agent's upstream consumption for a date
// range: calls, minutes, credits, and the USD cost at the configured rate.
func (s *Server) handlePanelUsage(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.panelAgent(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if s.platform == nil {
		writeError(w, http.StatusServiceUnavailable, "platform client not configured")
		return
	}

	var req UsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "start_date and end_date required")
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad start_date")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad end_date")
		return
	}
	// Make the end date inclusive.
	end = end.AddDate(0, 0, 1)

	platformID := agent.PlatformAgentID
	if platformID == "" {
		platformID = agent.ID
	}
	usage, err := s.platform.Consumption(r.Context(), platformID, start.Unix(), end.Unix())
	if err != nil {
		s.log.Error().Err(err).Str("agent", agent.ID).Msg("fetching consumption")
		writeError(w, http.StatusBadGateway, "upstream error")
		return
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		AgentID:     agent.ID,
		Calls:       usage.Calls,
		Minutes:     usage.DurationSecs / 60,
		Credits:     usage.Credits,
		CostUSD:     usage.Credits * s.cfg.Platform.USDPerCredit,
		PeriodStart: req.StartDate,
		PeriodEnd:   req.EndDate,
	})
}

// handlePanelRuns lists the agent's archived workflow runs, newest first.
func (s *Server) handlePanelRuns(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.panelAgent(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	runs, err := s.archive.ListRuns(r.Context(), agent.ID, 50)
	if err != nil {
		s.log.Error().Err(err).Str("agent", agent.ID).Msg("listing runs")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleSyncAgents lists the agents known to the upstream platform so an
// operator can reconcile local definitions against them.
func (s *Server) handleSyncAgents(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.platform == nil {
		writeError(w, http.StatusServiceUnavailable, "platform client not configured")
		return
	}

	agents, err := s.platform.ListAgents(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("listing platform agents")
		writeError(w, http.StatusBadGateway, "upstream error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// handleSyncNumbers lists the phone numbers provisioned upstream.
func (s *Server) handleSyncNumbers(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.platform == nil {
		writeError(w, http.StatusServiceUnavailable, "platform client not configured")
		return
	}

	numbers, err := s.platform.ListPhoneNumbers(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("listing platform numbers")
		writeError(w, http.StatusBadGateway, "upstream error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"numbers": numbers})
}
