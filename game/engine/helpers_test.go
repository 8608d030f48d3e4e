package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wricardo/startlights/game/clock"
)

// fixedRand always returns the same offset, clamped to the requested range.
type fixedRand struct {
	n int64
}

func (r fixedRand) Int64N(n int64) int64 {
	if r.n >= n {
		return n - 1
	}
	return r.n
}

type recordingNotifier struct {
	events    []string
	attempts  []Attempt
	summaries []*Summary
}

func (n *recordingNotifier) AttemptArmed(index int) {
	n.events = append(n.events, fmt.Sprintf("armed:%d", index))
}

func (n *recordingNotifier) StimulusOn(index, lit int) {
	n.events = append(n.events, fmt.Sprintf("light:%d:%d", index, lit))
}

func (n *recordingNotifier) AttemptLive(index int) {
	n.events = append(n.events, fmt.Sprintf("live:%d", index))
}

func (n *recordingNotifier) AttemptResolved(index int, attempt Attempt) {
	n.events = append(n.events, fmt.Sprintf("resolved:%d:%s", index, attempt.Outcome.Kind))
	n.attempts = append(n.attempts, attempt)
}

func (n *recordingNotifier) SessionComplete(summary *Summary) {
	n.events = append(n.events, "complete")
	n.summaries = append(n.summaries, summary)
}

type recordingUploader struct {
	uploads []*Summary
}

func (u *recordingUploader) Upload(summary *Summary) {
	u.uploads = append(u.uploads, summary)
}

type recordingGate struct {
	enabled bool
	changes []bool
}

func (g *recordingGate) SetEnabled(enabled bool) {
	g.enabled = enabled
	g.changes = append(g.changes, enabled)
}

// testConfig arms five lights a second apart and always holds 500ms, so the
// go signal lands exactly 5.5s after an attempt is armed.
func testConfig() *Config {
	return &Config{
		Name:               "test",
		AttemptsPerSession: 3,
		NumberOfStimuli:    5,
		StimulusOnInterval: Duration(time.Second),
		MinHoldDuration:    Duration(500 * time.Millisecond),
		MaxHoldDuration:    Duration(500 * time.Millisecond),
		ResponseTimeout:    Duration(time.Second),
	}
}

const armToGo = 5500 * time.Millisecond

type harness struct {
	clock      *clock.ManualClock
	engine     *TrialEngine
	notifier   *recordingNotifier
	uploader   *recordingUploader
	gate       *recordingGate
	aggregator *Aggregator
}

func newHarness(t *testing.T, cfg *Config) *harness {
	t.Helper()
	h := &harness{
		clock:      clock.NewManual(time.Time{}),
		notifier:   &recordingNotifier{},
		uploader:   &recordingUploader{},
		gate:       &recordingGate{},
		aggregator: NewAggregator(),
	}
	eng, err := NewEngine(cfg, Deps{
		SessionID:  "test",
		Clock:      h.clock,
		Rand:       fixedRand{},
		Trigger:    h.gate,
		Notifier:   h.notifier,
		Uploader:   h.uploader,
		Aggregator: h.aggregator,
	})
	require.NoError(t, err)
	h.engine = eng
	return h
}

// goLive advances from a freshly armed attempt to its go signal.
func (h *harness) goLive(t *testing.T) {
	t.Helper()
	require.Equal(t, StateArmed, h.engine.State())
	h.clock.Advance(armToGo)
	require.Equal(t, StateLive, h.engine.State())
}

// reactAfter waits d after the go signal and presses.
func (h *harness) reactAfter(t *testing.T, d time.Duration) {
	t.Helper()
	h.goLive(t)
	h.clock.Advance(d)
	h.engine.React()
}
