package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wricardo/startlights/api"
	"github.com/wricardo/startlights/game/config"
	"github.com/wricardo/startlights/game/engine"
	"github.com/wricardo/startlights/game/loop"
	"github.com/wricardo/startlights/game/service"
	"github.com/wricardo/startlights/game/session"
	"github.com/wricardo/startlights/transport/websocket"
)

const fastConfig = `{
  "name": "fast",
  "description": "Short sequence for automated play",
  "attempts_per_session": 2,
  "number_of_stimuli": 2,
  "stimulus_on_interval": 10,
  "min_hold_duration": 10,
  "max_hold_duration": 20,
  "response_timeout_after_go": 300,
  "debounce_window": 0
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fast.json"), []byte(fastConfig), 0644))

	logger := zap.NewNop()
	configs, err := config.NewManager(dir, logger)
	require.NoError(t, err)

	lp := loop.New(logger)
	go lp.Run(context.Background())

	aggregator := engine.NewAggregator()
	hub := websocket.NewHub(logger)
	sessions := session.NewManager(session.Runtime{
		Loop:       lp,
		Aggregator: aggregator,
		Logger:     logger,
	})
	svc := service.NewGameService(sessions, configs, lp, aggregator)

	srv := httptest.NewServer(api.NewServer(svc, hub))
	t.Cleanup(func() {
		srv.Close()
		sessions.CloseAll()
		lp.Close()
	})
	return srv
}

func playOne(t *testing.T, strategy Strategy) (*engine.Summary, *Client) {
	t.Helper()
	srv := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := NewClient(srv.URL)
	player := NewPlayer(client, strategy, 2*time.Millisecond, zap.NewNop())
	summary, err := player.PlaySession(ctx, "fast")
	require.NoError(t, err)
	return summary, client
}

func TestPlaySession_Human(t *testing.T) {
	summary, client := playOne(t, NewHumanStrategy(30*time.Millisecond, 0, 0, 1))

	assert.Equal(t, "fast", summary.ConfigName)
	assert.Equal(t, 2, summary.ValidCount)
	assert.Zero(t, summary.FalseStartCount)
	assert.GreaterOrEqual(t, summary.SessionAverage, 30*time.Millisecond)
	assert.Len(t, summary.Attempts, 2)

	stats, err := client.History(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 2, stats.ReactionCount)
}

func TestPlaySession_JumpStart(t *testing.T) {
	summary, _ := playOne(t, JumpStartStrategy{})

	assert.Equal(t, 2, summary.FalseStartCount)
	assert.Zero(t, summary.ValidCount)
	assert.Equal(t, 1.0, summary.FalseStartRate)
}

func TestPlaySession_Sleeper(t *testing.T) {
	summary, _ := playOne(t, SleeperStrategy{})

	assert.Equal(t, 2, summary.TimedOutCount)
	assert.Zero(t, summary.ValidCount)
	for _, a := range summary.Attempts {
		assert.Equal(t, engine.OutcomeTimedOut, a.Outcome.Kind)
	}
}

func TestPlaySession_UnknownConfig(t *testing.T) {
	srv := newTestServer(t)

	player := NewPlayer(NewClient(srv.URL), SleeperStrategy{}, time.Millisecond, nil)
	_, err := player.PlaySession(context.Background(), "missing")
	assert.Error(t, err)
}

func TestNewStrategy(t *testing.T) {
	for _, name := range []string{"human", "jumpstart", "sleeper"} {
		s, err := NewStrategy(name, 200*time.Millisecond, 20*time.Millisecond, 0.1, 7)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}

	_, err := NewStrategy("psychic", 0, 0, 0, 0)
	assert.Error(t, err)
}

func TestHumanStrategy(t *testing.T) {
	always := NewHumanStrategy(200*time.Millisecond, 0, 1, 1)
	assert.True(t, always.Next(1).Early)

	never := NewHumanStrategy(200*time.Millisecond, 0, 0, 1)
	press := never.Next(1)
	assert.False(t, press.Early)
	assert.Equal(t, 200*time.Millisecond, press.Delay)

	clamped := NewHumanStrategy(0, time.Second, 0, 3)
	for i := 1; i <= 20; i++ {
		assert.GreaterOrEqual(t, clamped.Next(i).Delay, time.Duration(0))
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleep(ctx, 0), context.Canceled)
}
