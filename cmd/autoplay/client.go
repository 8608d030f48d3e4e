package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wricardo/startlights/game/engine"
	"github.com/wricardo/startlights/game/service"
)

// Client drives one session through the REST API.
type Client struct {
	baseURL   string
	sessionID string
	client    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s failed: %s - %s", method, path, resp.Status, bytes.TrimSpace(data))
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}

func (c *Client) sessionPath(suffix string) string {
	return "/api/sessions/" + url.PathEscape(c.sessionID) + suffix
}

// CreateSession creates a session and remembers its ID.
func (c *Client) CreateSession(ctx context.Context, configID string) (*service.SessionInfo, error) {
	body := map[string]string{}
	if configID != "" {
		body["config_id"] = configID
	}
	var session service.SessionInfo
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &session); err != nil {
		return nil, err
	}
	c.sessionID = session.ID
	return &session, nil
}

func (c *Client) Start(ctx context.Context) (*engine.Snapshot, error) {
	var state engine.Snapshot
	err := c.do(ctx, http.MethodPost, c.sessionPath("/start"), nil, &state)
	return &state, err
}

func (c *Client) State(ctx context.Context) (*engine.Snapshot, error) {
	var state engine.Snapshot
	err := c.do(ctx, http.MethodGet, c.sessionPath("/state"), nil, &state)
	return &state, err
}

func (c *Client) React(ctx context.Context, channel string) (*service.ReactResult, error) {
	var result service.ReactResult
	err := c.do(ctx, http.MethodPost, c.sessionPath("/react"), map[string]string{"channel": channel}, &result)
	return &result, err
}

func (c *Client) Advance(ctx context.Context) (*engine.Snapshot, error) {
	var state engine.Snapshot
	err := c.do(ctx, http.MethodPost, c.sessionPath("/advance"), nil, &state)
	return &state, err
}

func (c *Client) Summary(ctx context.Context) (*engine.Summary, error) {
	var summary engine.Summary
	err := c.do(ctx, http.MethodGet, c.sessionPath("/summary"), nil, &summary)
	return &summary, err
}

func (c *Client) History(ctx context.Context) (*engine.HistoricalStats, error) {
	var stats engine.HistoricalStats
	err := c.do(ctx, http.MethodGet, "/api/history", nil, &stats)
	return &stats, err
}
