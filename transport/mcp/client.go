package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/startlights/game/engine"
	"github.com/wricardo/startlights/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Start Lights Reaction Trial",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Start Lights Reaction Trial - MCP Interface

This is a thin client that proxies all requests to the REST API server.

OBJECTIVE:
A row of lights comes on one at a time. After a random hold they all go out.
React as soon as the lights go out. Reacting before that is a false start.

AVAILABLE TOOLS:
- create_session: Create a new trial session
- list_sessions: List active sessions
- get_session: Get session details
- start_session: Start a run of attempts
- react: Press the trigger
- advance: Move on after an attempt is resolved
- session_state: Current lights, state and attempts
- session_summary: Statistics for a completed run
- history: Statistics across every completed session
- list_configs: List trial configurations
- game_instructions: Full rules and timing details

NOTE: Tool calls take real time. Reaction times measured through MCP include
network and model latency and are not comparable to a physical trigger.`),
	)

	c.registerTools()
}

func sessionIDSchema() map[string]interface{} {
	return map[string]interface{}{
		"session_id": map[string]interface{}{
			"type":        "string",
			"description": "Session ID",
		},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new trial session with optional config selection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the config to use (optional, see list_configs)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active trial sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: sessionIDSchema(),
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Trial operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_session",
		Description: "Start a run of attempts. Valid when the session is ready or complete",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: sessionIDSchema(),
			Required:   []string{"session_id"},
		},
	}, c.handleStart)

	reactProps := sessionIDSchema()
	reactProps["channel"] = map[string]interface{}{
		"type":        "string",
		"description": "Input channel: key (default), pointer or touch",
		"enum":        []string{"key", "pointer", "touch"},
	}
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "react",
		Description: "Press the trigger. Before lights out this is a false start",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: reactProps,
			Required:   []string{"session_id"},
		},
	}, c.handleReact)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "advance",
		Description: "Move on from a resolved attempt to the next attempt or to the summary",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: sessionIDSchema(),
			Required:   []string{"session_id"},
		},
	}, c.handleAdvance)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "session_state",
		Description: "Get the current lights, state and attempts of a session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: sessionIDSchema(),
			Required:   []string{"session_id"},
		},
	}, c.handleSessionState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "session_summary",
		Description: "Get the statistics of the session's last completed run",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: sessionIDSchema(),
			Required:   []string{"session_id"},
		},
	}, c.handleSessionSummary)

	// Results and configuration
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "history",
		Description: "Get statistics across every completed session, including the trend",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available trial configurations",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get the rules of the reaction trial",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// HTTPHandler serves single JSON-RPC messages over POST.
func (c *Client) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := c.mcpServer.HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		if response == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func sessionPath(request mcp.CallToolRequest, suffix string) (string, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return "", err
	}
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix, nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := map[string]string{}
	if configID := request.GetString("config_id", ""); configID != "" {
		body["config_id"] = configID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nConfig: %s\n\nCall start_session to begin.", session.ID, session.ConfigName)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		state := "unknown"
		if s.State != nil {
			state = string(s.State.State)
		}
		fmt.Fprintf(&b, "- %s (Config: %s, State: %s, Created: %s)\n",
			s.ID, s.ConfigName, state, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(request, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", path, nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.snapshotCall(ctx, request, "POST", "/start")
}

func (c *Client) handleAdvance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.snapshotCall(ctx, request, "POST", "/advance")
}

func (c *Client) handleSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.snapshotCall(ctx, request, "GET", "/state")
}

func (c *Client) snapshotCall(ctx context.Context, request mcp.CallToolRequest, method, suffix string) (*mcp.CallToolResult, error) {
	path, err := sessionPath(request, suffix)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state engine.Snapshot
	if err := c.apiCall(ctx, method, path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(&state)), nil
}

func (c *Client) handleReact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(request, "/react")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]string{"channel": request.GetString("channel", "key")}

	var result service.ReactResult
	if err := c.apiCall(ctx, "POST", path, body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatReactResult(&result)), nil
}

func (c *Client) handleSessionSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(request, "/summary")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var summary engine.Summary
	if err := c.apiCall(ctx, "GET", path, nil, &summary); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSummary(&summary)), nil
}

func (c *Client) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats engine.HistoricalStats
	if err := c.apiCall(ctx, "GET", "/api/history", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&stats)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatConfigs(configs)), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `Start Lights Reaction Trial - Complete Instructions

OBJECTIVE:
React as fast as possible when the lights go out.

HOW AN ATTEMPT RUNS:
1. start_session arms the first attempt (state: armed).
2. Lights come on one at a time at a fixed interval (stimulus_on events).
3. After every light is on, a random hold begins. Its length is not shown.
4. All lights go out at once (state: live). This is the go signal.
5. Call react. The time from lights out to your press is your reaction time.
6. Call advance to arm the next attempt, or to finish after the last one.

OUTCOMES:
- valid: you reacted after lights out and before the response timeout
- false start: you reacted while lights were still on or holding
- timed out: you did not react before the response timeout

RATINGS:
- good: session average under 700ms
- average: 700ms to 800ms
- slow: over 800ms
A standard deviation above 300ms is flagged as high variability.

TIPS:
- Poll session_state while armed; react only once the state is live.
- False starts are excluded from the average but count toward the false start rate.
- history shows your trend across sessions; a negative trend means you are getting faster.

Good luck!`

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatMS(d time.Duration) string {
	return fmt.Sprintf("%.1fms", engine.Millis(d))
}

func formatLights(lit, total int) string {
	if lit < 0 {
		lit = 0
	}
	if lit > total {
		lit = total
	}
	return strings.Repeat("●", lit) + strings.Repeat("○", total-lit)
}

func formatOutcome(outcome engine.Outcome) string {
	switch outcome.Kind {
	case engine.OutcomeValidReaction:
		return "valid " + formatMS(outcome.Duration)
	case engine.OutcomeFalseStart:
		return "false start"
	case engine.OutcomeTimedOut:
		return "timed out after " + formatMS(outcome.Duration)
	default:
		return string(outcome.Kind)
	}
}

func formatAttempts(attempts []engine.Attempt) string {
	if len(attempts) == 0 {
		return "  (none)\n"
	}
	var b strings.Builder
	for _, a := range attempts {
		fmt.Fprintf(&b, "  %d. %s\n", a.Index, formatOutcome(a.Outcome))
	}
	return b.String()
}

func nextStep(state engine.State) string {
	switch state {
	case engine.StateReady:
		return "call start_session"
	case engine.StateArmed:
		return "wait for lights out; reacting now is a false start"
	case engine.StateLive:
		return "lights out, call react now"
	case engine.StateResolved:
		return "call advance"
	case engine.StateComplete:
		return "call session_summary, or start_session to play again"
	default:
		return "unknown"
	}
}

func formatSessionInfo(session *service.SessionInfo) string {
	header := fmt.Sprintf("Session: %s\nConfig: %s\nCreated: %s\n\n",
		session.ID, session.ConfigName,
		session.CreatedAt.Format("2006-01-02 15:04:05"))
	if session.State == nil {
		return header + "No state available"
	}
	return header + formatSnapshot(session.State)
}

func formatSnapshot(s *engine.Snapshot) string {
	if s == nil {
		return "No state available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s | Config: %s\n", s.SessionID, s.ConfigName)
	fmt.Fprintf(&b, "State: %s | Attempt %d/%d\n", s.State, s.AttemptIndex, s.AttemptsPerSession)
	fmt.Fprintf(&b, "Lights: %s (%d/%d)\n", formatLights(s.LitStimuli, s.NumberOfStimuli), s.LitStimuli, s.NumberOfStimuli)
	trigger := "disabled"
	if s.TriggerEnabled {
		trigger = "enabled"
	}
	fmt.Fprintf(&b, "Trigger: %s\n", trigger)
	fmt.Fprintf(&b, "Next: %s\n", nextStep(s.State))
	b.WriteString("\nAttempts:\n")
	b.WriteString(formatAttempts(s.Attempts))

	if s.Summary != nil {
		b.WriteString("\n")
		b.WriteString(formatSummary(s.Summary))
	}
	return b.String()
}

func formatReactResult(result *service.ReactResult) string {
	var header string
	switch {
	case !result.Accepted:
		header = fmt.Sprintf("Press ignored (%s)\n", result.Reason)
	case result.Attempt != nil:
		header = fmt.Sprintf("Attempt %d: %s\n", result.Attempt.Index, formatOutcome(result.Attempt.Outcome))
	default:
		header = "Press recorded\n"
	}
	if result.State == nil {
		return header
	}
	return header + "\n" + formatSnapshot(result.State)
}

func formatSummary(s *engine.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s complete (%s)\n", s.SessionID, s.ConfigName)
	fmt.Fprintf(&b, "Valid: %d/%d | False starts: %d (%.0f%%) | Timed out: %d\n",
		s.ValidCount, s.AttemptsPerSession, s.FalseStartCount, s.FalseStartRate*100, s.TimedOutCount)
	if s.ValidCount == 0 {
		b.WriteString("No valid reactions\n")
	} else {
		fmt.Fprintf(&b, "Average: %s | Best: %s | Worst: %s | Std dev: %s\n",
			formatMS(s.SessionAverage), formatMS(s.SessionBest), formatMS(s.SessionWorst), formatMS(s.StdDev))
	}
	if s.BestReactionTime > 0 {
		fmt.Fprintf(&b, "Best ever: %s\n", formatMS(s.BestReactionTime))
	}
	fmt.Fprintf(&b, "Rating: %s\n", s.Rating)
	if s.HighVariability {
		b.WriteString("High variability: reaction times are inconsistent\n")
	}
	b.WriteString("\nAttempts:\n")
	b.WriteString(formatAttempts(s.Attempts))
	return b.String()
}

func formatHistory(h *engine.HistoricalStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sessions: %d | Reactions: %d | False starts: %d\n", h.Sessions, h.ReactionCount, h.FalseStarts)
	if h.ReactionCount == 0 {
		b.WriteString("No valid reactions recorded yet\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Average: %s | Best: %s\n", formatMS(h.Average), formatMS(h.Best))

	if !h.TrendAvailable {
		fmt.Fprintf(&b, "Trend: needs at least %d sessions with valid reactions\n", engine.MinTrendSessions)
		return b.String()
	}
	direction := "steady"
	switch {
	case h.Trend < -0.5:
		direction = "improving"
	case h.Trend > 0.5:
		direction = "slowing"
	}
	fmt.Fprintf(&b, "Trend: %+.1fms per session (%s)\n", h.Trend, direction)

	recent := make([]string, 0, len(h.RecentAverages))
	for _, d := range h.RecentAverages {
		recent = append(recent, formatMS(d))
	}
	fmt.Fprintf(&b, "Recent averages: %s\n", strings.Join(recent, ", "))
	return b.String()
}

func formatConfigs(configs []service.ConfigInfo) string {
	var b strings.Builder
	b.WriteString("Available Configurations:\n\n")
	for _, cfg := range configs {
		fmt.Fprintf(&b, "• %s (%s)\n", cfg.ConfigID, cfg.Name)
		if cfg.Description != "" {
			fmt.Fprintf(&b, "  %s\n", cfg.Description)
		}
		fmt.Fprintf(&b, "  Attempts: %d, Lights: %d, Timeout: %.0fms, Go after %.0f-%.0fms\n\n",
			cfg.AttemptsPerSession, cfg.NumberOfStimuli, cfg.ResponseTimeoutMS, cfg.EarliestGoMS, cfg.LatestGoMS)
	}
	return b.String()
}
