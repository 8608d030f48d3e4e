package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ConfigListItem is a trial configuration offered by the server.
type ConfigListItem struct {
	ConfigID           string `json:"config_id"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	AttemptsPerSession int    `json:"attempts_per_session"`
	NumberOfStimuli    int    `json:"number_of_stimuli"`
}

// APIClient talks to the trial server's REST API and websocket.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client for the server at baseURL.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *APIClient) do(method, path string, body, result interface{}) error {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// ListConfigs returns the server's trial configurations.
func (c *APIClient) ListConfigs() ([]ConfigListItem, error) {
	var configs []ConfigListItem
	err := c.do(http.MethodGet, "/api/configs", nil, &configs)
	return configs, err
}

// CreateSession creates a session and returns its ID.
func (c *APIClient) CreateSession(configID string) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	body := map[string]string{}
	if configID != "" {
		body["config_id"] = configID
	}
	if err := c.do(http.MethodPost, "/api/sessions", body, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// State fetches the current snapshot of a session.
func (c *APIClient) State(sessionID string) (*Snapshot, error) {
	var s Snapshot
	if err := c.do(http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/state", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// websocketURL derives the session's websocket URL from the API base URL.
func websocketURL(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("session", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the session's websocket.
func (c *APIClient) Dial(sessionID string) (*websocket.Conn, error) {
	wsURL, err := websocketURL(c.baseURL, sessionID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	return conn, err
}
