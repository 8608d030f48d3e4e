package upload

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

	"github.com/wricardo/startlights/game/engine"
)

// Sink receives completed session summaries.
type Sink interface {
	Name() string
	Send(ctx context.Context, summary *engine.Summary) error
}

// HTTPSink posts summaries to a backend endpoint
type HTTPSink struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// HTTPOption customizes an HTTPSink
type HTTPOption func(*HTTPSink)

// WithToken sends an Authorization: Bearer header.
func WithToken(token string) HTTPOption {
	return func(s *HTTPSink) { s.token = token }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSink) { s.httpClient = client }
}

// NewHTTPSink creates a sink for endpoint
func NewHTTPSink(endpoint string, opts ...HTTPOption) (*HTTPSink, error) {
	u, err := url.Parse(strings.ReplaceAll(endpoint, "{session_id}", "x"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid upload endpoint %q", endpoint)
	}
	s := &HTTPSink{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *HTTPSink) Name() string { return "http" }

type uploadBody struct {
	SessionData sessionData `json:"session_data"`
}

type sessionData struct {
	*engine.Summary
	ReactionTimesMS []float64 `json:"reaction_times"`
}

// MarshalJSON flattens the summary next to reaction_times.
func (d sessionData) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(d.Summary)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	times := d.ReactionTimesMS
	if times == nil {
		times = []float64{}
	}
	encoded, err := json.Marshal(times)
	if err != nil {
		return nil, err
	}
	fields["reaction_times"] = encoded
	return json.Marshal(fields)
}

// Send posts one summary. Any non-2xx response is an error.
func (s *HTTPSink) Send(ctx context.Context, summary *engine.Summary) error {
	if summary == nil {
		return fmt.Errorf("summary cannot be nil")
	}

	var times []float64
	for _, d := range summary.ReactionTimes() {
		times = append(times, engine.Millis(d))
	}
	data, err := json.Marshal(uploadBody{SessionData: sessionData{Summary: summary, ReactionTimesMS: times}})
	if err != nil {
		return err
	}

	target := strings.ReplaceAll(s.endpoint, "{session_id}", url.PathEscape(summary.SessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]string
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &errResp) == nil {
			if msg, ok := errResp["error"]; ok {
				return fmt.Errorf("upload rejected (%d): %s", resp.StatusCode, msg)
			}
		}
		return fmt.Errorf("upload rejected: %d", resp.StatusCode)
	}
	return nil
}
