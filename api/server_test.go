package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/startlights/game/engine"
	"github.com/wricardo/startlights/game/loop"
	"github.com/wricardo/startlights/game/service"
	"github.com/wricardo/startlights/game/trigger"
	"github.com/wricardo/startlights/transport/websocket"
)

// MockGameService implements service.GameService for testing
type MockGameService struct {
	// Session Management
	CreateSessionFunc func(ctx context.Context, configID string) (*service.SessionInfo, error)
	GetSessionFunc    func(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	ListSessionsFunc  func(ctx context.Context) ([]*service.SessionInfo, error)
	DeleteSessionFunc func(ctx context.Context, sessionID string) error

	// Trial Operations
	StartFunc      func(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	ReactFunc      func(ctx context.Context, sessionID, channel string) (*service.ReactResult, error)
	AdvanceFunc    func(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	GetStateFunc   func(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	GetSummaryFunc func(ctx context.Context, sessionID string) (*engine.Summary, error)

	// Results
	GetHistoryFunc   func(ctx context.Context) (*engine.HistoricalStats, error)
	ResetHistoryFunc func(ctx context.Context) error
	ListRecordsFunc  func(ctx context.Context, limit int) ([]*engine.Summary, error)

	// Configuration
	ListConfigsFunc func(ctx context.Context) ([]*service.ConfigInfo, error)
	LoadConfigFunc  func(ctx context.Context, configID string) (*engine.Config, error)
	SaveConfigFunc  func(ctx context.Context, configID string, config *engine.Config) error
}

func (m *MockGameService) CreateSession(ctx context.Context, configID string) (*service.SessionInfo, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, configID)
	}
	return &service.SessionInfo{ID: "test-session", ConfigID: configID, CreatedAt: time.Now()}, nil
}

func (m *MockGameService) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return &service.SessionInfo{ID: sessionID, ConfigName: "test-config", CreatedAt: time.Now()}, nil
}

func (m *MockGameService) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []*service.SessionInfo{}, nil
}

func (m *MockGameService) DeleteSession(ctx context.Context, sessionID string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockGameService) Start(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, sessionID)
	}
	return &engine.Snapshot{SessionID: sessionID, State: engine.StateArmed, AttemptIndex: 1}, nil
}

func (m *MockGameService) React(ctx context.Context, sessionID, channel string) (*service.ReactResult, error) {
	if m.ReactFunc != nil {
		return m.ReactFunc(ctx, sessionID, channel)
	}
	return &service.ReactResult{Accepted: true, Channel: channel}, nil
}

func (m *MockGameService) Advance(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	if m.AdvanceFunc != nil {
		return m.AdvanceFunc(ctx, sessionID)
	}
	return &engine.Snapshot{SessionID: sessionID, State: engine.StateArmed, AttemptIndex: 2}, nil
}

func (m *MockGameService) GetState(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	if m.GetStateFunc != nil {
		return m.GetStateFunc(ctx, sessionID)
	}
	return &engine.Snapshot{SessionID: sessionID, State: engine.StateReady}, nil
}

func (m *MockGameService) GetSummary(ctx context.Context, sessionID string) (*engine.Summary, error) {
	if m.GetSummaryFunc != nil {
		return m.GetSummaryFunc(ctx, sessionID)
	}
	return &engine.Summary{SessionID: sessionID}, nil
}

func (m *MockGameService) GetHistory(ctx context.Context) (*engine.HistoricalStats, error) {
	if m.GetHistoryFunc != nil {
		return m.GetHistoryFunc(ctx)
	}
	return &engine.HistoricalStats{}, nil
}

func (m *MockGameService) ResetHistory(ctx context.Context) error {
	if m.ResetHistoryFunc != nil {
		return m.ResetHistoryFunc(ctx)
	}
	return nil
}

func (m *MockGameService) ListRecords(ctx context.Context, limit int) ([]*engine.Summary, error) {
	if m.ListRecordsFunc != nil {
		return m.ListRecordsFunc(ctx, limit)
	}
	return []*engine.Summary{}, nil
}

func (m *MockGameService) ListConfigs(ctx context.Context) ([]*service.ConfigInfo, error) {
	if m.ListConfigsFunc != nil {
		return m.ListConfigsFunc(ctx)
	}
	return []*service.ConfigInfo{}, nil
}

func (m *MockGameService) LoadConfig(ctx context.Context, configID string) (*engine.Config, error) {
	if m.LoadConfigFunc != nil {
		return m.LoadConfigFunc(ctx, configID)
	}
	return engine.DefaultConfig(), nil
}

func (m *MockGameService) SaveConfig(ctx context.Context, configID string, config *engine.Config) error {
	if m.SaveConfigFunc != nil {
		return m.SaveConfigFunc(ctx, configID, config)
	}
	return nil
}

// Helper functions

func setupTestServer(mockService *MockGameService) *Server {
	return NewServer(mockService, websocket.NewHub(nil))
}

func makeRequest(method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v), "body: %s", w.Body.String())
}

func do(server *Server, method, url string, body interface{}) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest(method, url, body))
	return w
}

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*MockGameService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:        "Create session with default config",
			requestBody: nil,
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configID string) (*service.SessionInfo, error) {
					assert.Empty(t, configID)
					return &service.SessionInfo{ID: "ab12", ConfigID: "classic", ConfigName: "classic"}, nil
				}
			},
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.SessionInfo
				parseResponse(t, w, &resp)
				assert.Equal(t, "ab12", resp.ID)
			},
		},
		{
			name:        "Create session with config_id",
			requestBody: map[string]string{"config_id": "sprint"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configID string) (*service.SessionInfo, error) {
					assert.Equal(t, "sprint", configID)
					return &service.SessionInfo{ID: "cd34", ConfigID: configID}, nil
				}
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "Create session with deprecated config_name",
			requestBody: map[string]string{"config_name": "sprint"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configID string) (*service.SessionInfo, error) {
					assert.Equal(t, "sprint", configID)
					return &service.SessionInfo{ID: "cd34", ConfigID: configID}, nil
				}
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "Unknown config",
			requestBody: map[string]string{"config_id": "nope"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configID string) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("%w: 'nope'", service.ErrConfigNotFound)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:        "Handle service error",
			requestBody: nil,
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configID string) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				assert.Equal(t, "service error", resp["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			w := do(setupTestServer(mockService), "POST", "/api/sessions", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func TestCreateSessionInvalidBody(t *testing.T) {
	server := setupTestServer(&MockGameService{})
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("POST", "/api/sessions", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSessions(t *testing.T) {
	now := time.Now()
	mockService := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				{ID: "old", CreatedAt: now.Add(-time.Hour), LastAccessedAt: now},
				{ID: "new", CreatedAt: now, LastAccessedAt: now.Add(-time.Hour)},
			}, nil
		},
	}
	server := setupTestServer(mockService)

	var resp struct {
		Count    int                    `json:"count"`
		Total    int                    `json:"total"`
		Sessions []*service.SessionInfo `json:"sessions"`
		Sort     string                 `json:"sort"`
	}

	w := do(server, "GET", "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	parseResponse(t, w, &resp)
	assert.Equal(t, "accessed", resp.Sort)
	require.Len(t, resp.Sessions, 2)
	assert.Equal(t, "old", resp.Sessions[0].ID)

	w = do(server, "GET", "/api/sessions?sort=created&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	parseResponse(t, w, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "new", resp.Sessions[0].ID)

	w = do(server, "GET", "/api/sessions?sort=created&order=asc", nil)
	parseResponse(t, w, &resp)
	assert.Equal(t, "old", resp.Sessions[0].ID)
}

func TestGetAndDeleteSession(t *testing.T) {
	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID != "ab12" {
				return nil, fmt.Errorf("%w: %s", service.ErrSessionNotFound, sessionID)
			}
			return &service.SessionInfo{ID: sessionID, State: &engine.Snapshot{State: engine.StateReady}}, nil
		},
		DeleteSessionFunc: func(ctx context.Context, sessionID string) error {
			if sessionID != "ab12" {
				return fmt.Errorf("%w: %s", service.ErrSessionNotFound, sessionID)
			}
			return nil
		},
	}
	server := setupTestServer(mockService)

	w := do(server, "GET", "/api/sessions/ab12", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"ready"`)

	assert.Equal(t, http.StatusNotFound, do(server, "GET", "/api/sessions/zz99", nil).Code)
	assert.Equal(t, http.StatusOK, do(server, "DELETE", "/api/sessions/ab12", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(server, "DELETE", "/api/sessions/zz99", nil).Code)
}

func TestTrialOperations(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		body           interface{}
		setupMock      func(*MockGameService)
		expectedStatus int
		contains       string
	}{
		{
			name:           "Start",
			method:         "POST",
			path:           "/api/sessions/ab12/start",
			expectedStatus: http.StatusOK,
			contains:       `"state":"armed"`,
		},
		{
			name:   "Start from armed conflicts",
			method: "POST",
			path:   "/api/sessions/ab12/start",
			setupMock: func(m *MockGameService) {
				m.StartFunc = func(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
					return nil, fmt.Errorf("%w: cannot start from armed", engine.ErrInvalidTransition)
				}
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:   "React with channel",
			method: "POST",
			path:   "/api/sessions/ab12/react",
			body:   map[string]string{"channel": "touch"},
			setupMock: func(m *MockGameService) {
				m.ReactFunc = func(ctx context.Context, sessionID, channel string) (*service.ReactResult, error) {
					assert.Equal(t, "touch", channel)
					attempt := engine.Attempt{Index: 1, Outcome: engine.ValidReaction(215 * time.Millisecond)}
					return &service.ReactResult{Accepted: true, Channel: channel, Attempt: &attempt}, nil
				}
			},
			expectedStatus: http.StatusOK,
			contains:       `"duration_ms":215`,
		},
		{
			name:   "React without body",
			method: "POST",
			path:   "/api/sessions/ab12/react",
			setupMock: func(m *MockGameService) {
				m.ReactFunc = func(ctx context.Context, sessionID, channel string) (*service.ReactResult, error) {
					assert.Empty(t, channel)
					return &service.ReactResult{Accepted: false, Reason: service.ReasonTriggerDisabled, Channel: "key"}, nil
				}
			},
			expectedStatus: http.StatusOK,
			contains:       service.ReasonTriggerDisabled,
		},
		{
			name:   "React unknown channel",
			method: "POST",
			path:   "/api/sessions/ab12/react",
			body:   map[string]string{"channel": "joystick"},
			setupMock: func(m *MockGameService) {
				m.ReactFunc = func(ctx context.Context, sessionID, channel string) (*service.ReactResult, error) {
					return nil, fmt.Errorf("%w: %q", trigger.ErrUnknownChannel, channel)
				}
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Advance",
			method:         "POST",
			path:           "/api/sessions/ab12/advance",
			expectedStatus: http.StatusOK,
			contains:       `"attempt_index":2`,
		},
		{
			name:           "State",
			method:         "GET",
			path:           "/api/sessions/ab12/state",
			expectedStatus: http.StatusOK,
			contains:       `"state":"ready"`,
		},
		{
			name:   "Summary before completion",
			method: "GET",
			path:   "/api/sessions/ab12/summary",
			setupMock: func(m *MockGameService) {
				m.GetSummaryFunc = func(ctx context.Context, sessionID string) (*engine.Summary, error) {
					return nil, fmt.Errorf("%w: %s", service.ErrSessionIncomplete, sessionID)
				}
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:   "Summary",
			method: "GET",
			path:   "/api/sessions/ab12/summary",
			setupMock: func(m *MockGameService) {
				m.GetSummaryFunc = func(ctx context.Context, sessionID string) (*engine.Summary, error) {
					return &engine.Summary{SessionID: sessionID, SessionAverage: 250 * time.Millisecond, Rating: engine.RatingGood}, nil
				}
			},
			expectedStatus: http.StatusOK,
			contains:       `"session_average_ms":250`,
		},
		{
			name:   "Loop stopped",
			method: "GET",
			path:   "/api/sessions/ab12/state",
			setupMock: func(m *MockGameService) {
				m.GetStateFunc = func(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
					return nil, loop.ErrClosed
				}
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			w := do(setupTestServer(mockService), tt.method, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.contains != "" {
				assert.Contains(t, w.Body.String(), tt.contains)
			}
		})
	}
}

func TestHistoryAndRecords(t *testing.T) {
	reset := false
	var gotLimit int
	mockService := &MockGameService{
		GetHistoryFunc: func(ctx context.Context) (*engine.HistoricalStats, error) {
			return &engine.HistoricalStats{Sessions: 3, ReactionCount: 12, Average: 300 * time.Millisecond}, nil
		},
		ResetHistoryFunc: func(ctx context.Context) error {
			reset = true
			return nil
		},
		ListRecordsFunc: func(ctx context.Context, limit int) ([]*engine.Summary, error) {
			gotLimit = limit
			return []*engine.Summary{{SessionID: "ab12"}}, nil
		},
	}
	server := setupTestServer(mockService)

	w := do(server, "GET", "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history map[string]interface{}
	parseResponse(t, w, &history)
	assert.Equal(t, float64(3), history["sessions"])

	assert.Equal(t, http.StatusOK, do(server, "POST", "/api/history/reset", nil).Code)
	assert.True(t, reset)

	w = do(server, "GET", "/api/records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultRecordsLimit, gotLimit)
	assert.Contains(t, w.Body.String(), `"count":1`)

	do(server, "GET", "/api/records?limit=5", nil)
	assert.Equal(t, 5, gotLimit)

	assert.Equal(t, http.StatusBadRequest, do(server, "GET", "/api/records?limit=x", nil).Code)

	mockService.ListRecordsFunc = func(ctx context.Context, limit int) ([]*engine.Summary, error) {
		return nil, service.ErrNoRecordStore
	}
	assert.Equal(t, http.StatusNotImplemented, do(server, "GET", "/api/records", nil).Code)
}

func TestConfigs(t *testing.T) {
	var savedID string
	mockService := &MockGameService{
		ListConfigsFunc: func(ctx context.Context) ([]*service.ConfigInfo, error) {
			return []*service.ConfigInfo{{ConfigID: "classic", Name: "classic", NumberOfStimuli: 5}}, nil
		},
		LoadConfigFunc: func(ctx context.Context, configID string) (*engine.Config, error) {
			if configID != "classic" {
				return nil, fmt.Errorf("%w: '%s'", service.ErrConfigNotFound, configID)
			}
			return engine.DefaultConfig(), nil
		},
		SaveConfigFunc: func(ctx context.Context, configID string, config *engine.Config) error {
			if err := engine.ValidateConfig(config); err != nil {
				return err
			}
			savedID = configID
			return nil
		},
	}
	server := setupTestServer(mockService)

	w := do(server, "GET", "/api/configs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var configs []service.ConfigInfo
	parseResponse(t, w, &configs)
	require.Len(t, configs, 1)
	assert.Equal(t, 5, configs[0].NumberOfStimuli)

	w = do(server, "GET", "/api/configs/classic.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"stimulus_on_interval":"1s"`)

	assert.Equal(t, http.StatusNotFound, do(server, "GET", "/api/configs/nope", nil).Code)

	cfg := engine.DefaultConfig()
	cfg.Name = "custom"
	w = do(server, "POST", "/api/configs", cfg)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "custom", savedID)

	cfg.MinHoldDuration = engine.Duration(5 * time.Second)
	w = do(server, "POST", "/api/configs", cfg)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(server, "POST", "/api/configs", map[string]string{"description": "no name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	w := do(setupTestServer(&MockGameService{}), "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestExtraHandler(t *testing.T) {
	server := NewServer(&MockGameService{}, websocket.NewHub(nil),
		WithHandler("/mcp", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})))
	assert.Equal(t, http.StatusTeapot, do(server, "POST", "/mcp", nil).Code)
}

func TestWebSocket(t *testing.T) {
	tests := []struct {
		name           string
		queryParams    string
		setupMock      func(*MockGameService)
		expectedStatus int
	}{
		{
			name:           "Missing session parameter",
			queryParams:    "",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "Invalid session",
			queryParams: "?session=invalid",
			setupMock: func(m *MockGameService) {
				m.GetSessionFunc = func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
					return nil, service.ErrSessionNotFound
				}
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			w := do(setupTestServer(mockService), "GET", "/ws"+tt.queryParams, nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
