package upload

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wricardo/startlights/game/engine"
)

func testSummary() *engine.Summary {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &engine.Summary{
		SessionID:          "ab12",
		ConfigName:         "classic",
		AttemptsPerSession: 3,
		ValidCount:         2,
		FalseStartCount:    1,
		SessionAverage:     250 * time.Millisecond,
		Rating:             engine.RatingGood,
		Attempts: []engine.Attempt{
			{Index: 1, Outcome: engine.ValidReaction(200 * time.Millisecond), RecordedAt: at},
			{Index: 2, Outcome: engine.FalseStart(), RecordedAt: at},
			{Index: 3, Outcome: engine.ValidReaction(300 * time.Millisecond), RecordedAt: at},
		},
		StartedAt:   at,
		CompletedAt: at,
	}
}

func TestHTTPSink_Send(t *testing.T) {
	var (
		gotPath  string
		gotAuth  string
		gotType  string
		gotBody  map[string]map[string]interface{}
		requests int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewHTTPSink(server.URL+"/api/sessions/{session_id}/data", WithToken("secret"))
	require.NoError(t, err)
	assert.Equal(t, "http", sink.Name())

	require.NoError(t, sink.Send(context.Background(), testSummary()))
	assert.Equal(t, 1, requests)
	assert.Equal(t, "/api/sessions/ab12/data", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotType)

	data := gotBody["session_data"]
	require.NotNil(t, data)
	assert.Equal(t, "ab12", data["session_id"])
	assert.Equal(t, float64(2), data["valid_count"])
	assert.Equal(t, float64(250), data["session_average_ms"])
	assert.Equal(t, []interface{}{float64(200), float64(300)}, data["reaction_times"])
}

func TestHTTPSink_NoValidReactions(t *testing.T) {
	var body map[string]map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer server.Close()

	sink, err := NewHTTPSink(server.URL)
	require.NoError(t, err)

	summary := testSummary()
	summary.Attempts = []engine.Attempt{{Index: 1, Outcome: engine.FalseStart()}}
	summary.ValidCount = 0
	require.NoError(t, sink.Send(context.Background(), summary))
	assert.JSONEq(t, `[]`, string(body["session_data"]["reaction_times"]))
}

func TestHTTPSink_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"session_data must be a JSON object"}`))
	}))
	defer server.Close()

	sink, err := NewHTTPSink(server.URL)
	require.NoError(t, err)

	err = sink.Send(context.Background(), testSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "session_data must be a JSON object")
}

func TestNewHTTPSink_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "ftp://example.com", "not a url", "http://"} {
		_, err := NewHTTPSink(endpoint)
		assert.Error(t, err, endpoint)
	}
}

type fakeSink struct {
	name  string
	err   error
	delay time.Duration

	mu  sync.Mutex
	got []string
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Send(ctx context.Context, summary *engine.Summary) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.got = append(f.got, summary.SessionID)
	f.mu.Unlock()
	return f.err
}

func (f *fakeSink) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func TestDispatcher_FansOut(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	good := &fakeSink{name: "good"}
	bad := &fakeSink{name: "bad", err: errors.New("backend down")}
	d := NewDispatcher(zap.New(core), time.Second, good, bad)

	assert.Equal(t, []string{"good", "bad"}, d.Sinks())

	d.Upload(testSummary())
	d.Upload(nil)
	d.Wait()

	assert.Equal(t, []string{"ab12"}, good.received())
	assert.Equal(t, []string{"ab12"}, bad.received())
	sent, failures := d.Stats()
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, logs.FilterMessage("upload failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("session uploaded").Len())
}

func TestDispatcher_UploadDoesNotBlock(t *testing.T) {
	slow := &fakeSink{name: "slow", delay: 200 * time.Millisecond}
	d := NewDispatcher(nil, time.Second, slow)

	start := time.Now()
	d.Upload(testSummary())
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"ab12"}, slow.received())
}

func TestDispatcher_Timeout(t *testing.T) {
	slow := &fakeSink{name: "slow", delay: time.Second}
	d := NewDispatcher(nil, 20*time.Millisecond, slow)

	d.Upload(testSummary())
	d.Wait()

	_, failures := d.Stats()
	assert.Equal(t, 1, failures)
	assert.Empty(t, slow.received())
}

func TestDispatcher_Close(t *testing.T) {
	slow := &fakeSink{name: "slow", delay: time.Second}
	d := NewDispatcher(nil, 5*time.Second, slow)
	d.Upload(testSummary())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	// after close uploads are dropped
	d.Upload(testSummary())
	d.Wait()
	assert.Empty(t, slow.received())
}
