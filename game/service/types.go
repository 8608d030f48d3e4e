package service

import (
	"time"

	"github.com/wricardo/startlights/game/engine"
)

// SessionInfo provides information about a trial session
type SessionInfo struct {
	ID             string           `json:"id"`
	ConfigID       string           `json:"config_id"`
	ConfigName     string           `json:"config_name"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	State          *engine.Snapshot `json:"state"`
	Config         *engine.Config   `json:"config"`
}

// ReactResult reports what happened to a press
type ReactResult struct {
	Accepted bool             `json:"accepted"`
	Reason   string           `json:"reason,omitempty"`
	Channel  string           `json:"channel"`
	Attempt  *engine.Attempt  `json:"attempt,omitempty"`
	State    *engine.Snapshot `json:"state"`
}

// Reasons a press is not delivered to the engine
const (
	ReasonTriggerDisabled = "trigger_disabled"
	ReasonDebounced       = "debounced"
)

// ConfigInfo provides information about a trial configuration
type ConfigInfo struct {
	Filename           string  `json:"filename"`
	ConfigID           string  `json:"config_id"` // The identifier to use for session creation
	Name               string  `json:"name"`      // Display name
	Description        string  `json:"description"`
	AttemptsPerSession int     `json:"attempts_per_session"`
	NumberOfStimuli    int     `json:"number_of_stimuli"`
	ResponseTimeoutMS  float64 `json:"response_timeout_ms"`
	EarliestGoMS       float64 `json:"earliest_go_ms"`
	LatestGoMS         float64 `json:"latest_go_ms"`
}

// Lifecycle event types published to clients
const (
	EventAttemptArmed    = "attempt_armed"
	EventStimulusOn      = "stimulus_on"
	EventAttemptLive     = "attempt_live"
	EventAttemptResolved = "attempt_resolved"
	EventSessionComplete = "session_complete"
)
