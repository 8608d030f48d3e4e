package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// Server states
const (
	StateReady    = "ready"
	StateArmed    = "armed"
	StateLive     = "live"
	StateResolved = "resolved"
	StateComplete = "complete"
)

// Attempt is one resolved attempt as the server reports it.
type Attempt struct {
	Index      int      `json:"index"`
	Outcome    string   `json:"outcome"`
	DurationMS *float64 `json:"duration_ms,omitempty"`
}

// Label renders the attempt outcome for display.
func (a Attempt) Label() string {
	switch a.Outcome {
	case "valid_reaction":
		if a.DurationMS != nil {
			return fmt.Sprintf("%.0f ms", *a.DurationMS)
		}
		return "valid"
	case "false_start":
		return "FALSE START"
	case "timed_out":
		return "too slow"
	default:
		return a.Outcome
	}
}

// Summary holds the statistics shown when a session completes.
type Summary struct {
	ValidCount         int       `json:"valid_count"`
	FalseStartCount    int       `json:"false_start_count"`
	TimedOutCount      int       `json:"timed_out_count"`
	AttemptsPerSession int       `json:"attempts_per_session"`
	SessionAverageMS   float64   `json:"session_average_ms"`
	SessionBestMS      float64   `json:"session_best_ms"`
	BestReactionMS     float64   `json:"best_reaction_time_ms"`
	StdDevMS           float64   `json:"std_dev_ms"`
	HighVariability    bool      `json:"high_variability"`
	Rating             string    `json:"rating"`
	Attempts           []Attempt `json:"attempts"`
}

// Snapshot mirrors the server's session state.
type Snapshot struct {
	SessionID          string    `json:"session_id"`
	ConfigName         string    `json:"config_name"`
	State              string    `json:"state"`
	AttemptIndex       int       `json:"attempt_index"`
	AttemptsPerSession int       `json:"attempts_per_session"`
	NumberOfStimuli    int       `json:"number_of_stimuli"`
	LitStimuli         int       `json:"lit_stimuli"`
	TriggerEnabled     bool      `json:"trigger_enabled"`
	Attempts           []Attempt `json:"attempts"`
	Summary            *Summary  `json:"summary,omitempty"`
}

// WSMessage is the envelope of every websocket frame.
type WSMessage struct {
	SessionID string          `json:"session_id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Board is the client-side view of one session, updated from snapshots and
// websocket events.
type Board struct {
	SessionID      string
	ConfigName     string
	State          string
	Attempt        int
	Attempts       int
	Stimuli        int
	Lit            int
	TriggerEnabled bool
	Results        []Attempt
	Summary        *Summary
	Message        string
	LightsOutAt    time.Time
}

// ApplySnapshot replaces the board with the server's view.
func (b *Board) ApplySnapshot(s *Snapshot) {
	b.SessionID = s.SessionID
	b.ConfigName = s.ConfigName
	b.State = s.State
	b.Attempt = s.AttemptIndex
	b.Attempts = s.AttemptsPerSession
	b.Stimuli = s.NumberOfStimuli
	b.Lit = s.LitStimuli
	b.TriggerEnabled = s.TriggerEnabled
	b.Results = append(b.Results[:0], s.Attempts...)
	b.Summary = s.Summary
	b.Message = stateMessage(s.State)
}

func stateMessage(state string) string {
	switch state {
	case StateReady:
		return "Press ENTER to start"
	case StateArmed:
		return "Wait for lights out..."
	case StateLive:
		return "GO!"
	case StateResolved:
		return "Press ENTER for the next attempt"
	case StateComplete:
		return "Session complete. Press ENTER to play again"
	default:
		return ""
	}
}

// ApplyEvent updates the board from one websocket message. now is the local
// receive time.
func (b *Board) ApplyEvent(msg *WSMessage, now time.Time) error {
	switch msg.Event {
	case "attempt_armed":
		var data struct {
			Attempt int `json:"attempt"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return err
		}
		b.State = StateArmed
		b.Attempt = data.Attempt
		b.Lit = 0
		b.TriggerEnabled = true
		b.Message = stateMessage(StateArmed)

	case "stimulus_on":
		var data struct {
			Lit int `json:"lit"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return err
		}
		b.Lit = data.Lit

	case "attempt_live":
		b.State = StateLive
		b.Lit = 0
		b.LightsOutAt = now
		b.Message = stateMessage(StateLive)

	case "attempt_resolved":
		var data struct {
			Result Attempt `json:"result"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return err
		}
		b.State = StateResolved
		b.TriggerEnabled = false
		b.Lit = 0
		b.addResult(data.Result)
		b.Message = fmt.Sprintf("Attempt %d: %s. %s", data.Result.Index, data.Result.Label(), stateMessage(StateResolved))

	case "session_complete":
		var summary Summary
		if err := json.Unmarshal(msg.Data, &summary); err != nil {
			return err
		}
		b.State = StateComplete
		b.TriggerEnabled = false
		b.Summary = &summary
		b.Message = stateMessage(StateComplete)

	case "action_result":
		return b.applyActionResult(msg.Data)

	case "error":
		var data struct {
			Action string `json:"action"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return err
		}
		b.Message = fmt.Sprintf("%s failed: %s", data.Action, data.Error)
	}
	return nil
}

func (b *Board) addResult(a Attempt) {
	for _, r := range b.Results {
		if r.Index == a.Index {
			return
		}
	}
	b.Results = append(b.Results, a)
}

func (b *Board) applyActionResult(raw json.RawMessage) error {
	var envelope struct {
		Action string          `json:"action"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}

	switch envelope.Action {
	case "start":
		var s Snapshot
		if err := json.Unmarshal(envelope.Result, &s); err != nil {
			return err
		}
		b.ApplySnapshot(&s)

	case "react":
		var result struct {
			Accepted bool     `json:"accepted"`
			Reason   string   `json:"reason"`
			Attempt  *Attempt `json:"attempt"`
		}
		if err := json.Unmarshal(envelope.Result, &result); err != nil {
			return err
		}
		if result.Attempt != nil {
			b.addResult(*result.Attempt)
		}
	}
	// advance results are followed by attempt_armed or session_complete events
	return nil
}
