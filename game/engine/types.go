package engine

import (
	"encoding/json"
	"time"
)

// State is the trial state machine's current state.
type State string

const (
	StateReady    State = "ready"
	StateArmed    State = "armed"
	StateLive     State = "live"
	StateResolved State = "resolved"
	StateComplete State = "complete"
)

// OutcomeKind classifies how an attempt ended.
type OutcomeKind string

const (
	OutcomePending       OutcomeKind = "pending"
	OutcomeValidReaction OutcomeKind = "valid_reaction"
	OutcomeFalseStart    OutcomeKind = "false_start"
	OutcomeTimedOut      OutcomeKind = "timed_out"
)

// Validation and rating constants
const (
	MinAttemptsPerSession = 1
	MaxAttemptsPerSession = 100
	MinStimuli            = 1
	MaxStimuli            = 10

	// MaxDuration bounds every duration field of a config.
	MaxDuration = time.Hour

	HighVariabilityThreshold = 300 * time.Millisecond
	GoodReactionThreshold    = 700 * time.Millisecond
	SlowReactionThreshold    = 800 * time.Millisecond
	TrendWindow              = 5
	MinTrendSessions         = 3
)

// Rating buckets a session average.
type Rating string

const (
	RatingNone    Rating = "none"
	RatingGood    Rating = "good"
	RatingAverage Rating = "average"
	RatingSlow    Rating = "slow"
)

// Outcome is the result assigned to an attempt. Duration is meaningful only
// for ValidReaction and TimedOut.
type Outcome struct {
	Kind     OutcomeKind
	Duration time.Duration
}

// ValidReaction builds a valid outcome.
func ValidReaction(d time.Duration) Outcome {
	return Outcome{Kind: OutcomeValidReaction, Duration: d}
}

// FalseStart builds a disqualified outcome. It never carries a duration.
func FalseStart() Outcome {
	return Outcome{Kind: OutcomeFalseStart}
}

// TimedOut builds a timeout outcome.
func TimedOut(d time.Duration) Outcome {
	return Outcome{Kind: OutcomeTimedOut, Duration: d}
}

// HasDuration reports whether the outcome carries a reaction duration.
func (o Outcome) HasDuration() bool {
	return o.Kind == OutcomeValidReaction || o.Kind == OutcomeTimedOut
}

func (o Outcome) String() string {
	if o.HasDuration() {
		return string(o.Kind) + "(" + o.Duration.String() + ")"
	}
	return string(o.Kind)
}

// Attempt is one measured trial.
type Attempt struct {
	Index      int
	Outcome    Outcome
	RecordedAt time.Time
}

type attemptJSON struct {
	Index      int         `json:"index"`
	Outcome    OutcomeKind `json:"outcome"`
	DurationMS *float64    `json:"duration_ms,omitempty"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// MarshalJSON writes durations as fractional milliseconds and omits them for
// outcomes that carry none.
func (a Attempt) MarshalJSON() ([]byte, error) {
	out := attemptJSON{Index: a.Index, Outcome: a.Outcome.Kind, RecordedAt: a.RecordedAt}
	if a.Outcome.HasDuration() {
		ms := Millis(a.Outcome.Duration)
		out.DurationMS = &ms
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the format written by MarshalJSON.
func (a *Attempt) UnmarshalJSON(data []byte) error {
	var in attemptJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.Index = in.Index
	a.RecordedAt = in.RecordedAt
	a.Outcome = Outcome{Kind: in.Outcome}
	if in.DurationMS != nil {
		a.Outcome.Duration = FromMillis(*in.DurationMS)
	}
	return nil
}

// Session is the ordered, append-only list of attempts in one play-through.
type Session struct {
	ID                 string    `json:"id"`
	ConfigName         string    `json:"config_name"`
	AttemptsPerSession int       `json:"attempts_per_session"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at,omitempty"`
	Attempts           []Attempt `json:"attempts"`
}

// Complete reports whether every attempt has been recorded.
func (s *Session) Complete() bool {
	return len(s.Attempts) >= s.AttemptsPerSession
}

// Summary is the immutable result of a completed session.
type Summary struct {
	SessionID          string
	ConfigName         string
	AttemptsPerSession int
	ValidCount         int
	FalseStartCount    int
	TimedOutCount      int
	FalseStartRate     float64
	SessionAverage     time.Duration
	BestReactionTime   time.Duration
	SessionBest        time.Duration
	SessionWorst       time.Duration
	StdDev             time.Duration
	HighVariability    bool
	Rating             Rating
	Attempts           []Attempt
	StartedAt          time.Time
	CompletedAt        time.Time
}

// ReactionTimes returns the valid reaction durations in attempt order.
func (s *Summary) ReactionTimes() []time.Duration {
	out := make([]time.Duration, 0, s.ValidCount)
	for _, a := range s.Attempts {
		if a.Outcome.Kind == OutcomeValidReaction {
			out = append(out, a.Outcome.Duration)
		}
	}
	return out
}

type summaryJSON struct {
	SessionID          string    `json:"session_id"`
	ConfigName         string    `json:"config_name"`
	AttemptsPerSession int       `json:"attempts_per_session"`
	ValidCount         int       `json:"valid_count"`
	FalseStartCount    int       `json:"false_start_count"`
	TimedOutCount      int       `json:"timed_out_count"`
	FalseStartRate     float64   `json:"false_start_rate"`
	SessionAverageMS   float64   `json:"session_average_ms"`
	BestReactionMS     float64   `json:"best_reaction_time_ms"`
	SessionBestMS      float64   `json:"session_best_ms"`
	SessionWorstMS     float64   `json:"session_worst_ms"`
	StdDevMS           float64   `json:"std_dev_ms"`
	HighVariability    bool      `json:"high_variability"`
	Rating             Rating    `json:"rating"`
	Attempts           []Attempt `json:"attempts"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`
}

// MarshalJSON writes durations as fractional milliseconds.
func (s *Summary) MarshalJSON() ([]byte, error) {
	attempts := s.Attempts
	if attempts == nil {
		attempts = []Attempt{}
	}
	return json.Marshal(summaryJSON{
		SessionID:          s.SessionID,
		ConfigName:         s.ConfigName,
		AttemptsPerSession: s.AttemptsPerSession,
		ValidCount:         s.ValidCount,
		FalseStartCount:    s.FalseStartCount,
		TimedOutCount:      s.TimedOutCount,
		FalseStartRate:     s.FalseStartRate,
		SessionAverageMS:   Millis(s.SessionAverage),
		BestReactionMS:     Millis(s.BestReactionTime),
		SessionBestMS:      Millis(s.SessionBest),
		SessionWorstMS:     Millis(s.SessionWorst),
		StdDevMS:           Millis(s.StdDev),
		HighVariability:    s.HighVariability,
		Rating:             s.Rating,
		Attempts:           attempts,
		StartedAt:          s.StartedAt,
		CompletedAt:        s.CompletedAt,
	})
}

// UnmarshalJSON reads the format written by MarshalJSON.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var in summaryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Summary{
		SessionID:          in.SessionID,
		ConfigName:         in.ConfigName,
		AttemptsPerSession: in.AttemptsPerSession,
		ValidCount:         in.ValidCount,
		FalseStartCount:    in.FalseStartCount,
		TimedOutCount:      in.TimedOutCount,
		FalseStartRate:     in.FalseStartRate,
		SessionAverage:     FromMillis(in.SessionAverageMS),
		BestReactionTime:   FromMillis(in.BestReactionMS),
		SessionBest:        FromMillis(in.SessionBestMS),
		SessionWorst:       FromMillis(in.SessionWorstMS),
		StdDev:             FromMillis(in.StdDevMS),
		HighVariability:    in.HighVariability,
		Rating:             in.Rating,
		Attempts:           in.Attempts,
		StartedAt:          in.StartedAt,
		CompletedAt:        in.CompletedAt,
	}
	return nil
}

// Snapshot is a read-only view of an engine for presentation layers.
type Snapshot struct {
	SessionID          string    `json:"session_id"`
	ConfigName         string    `json:"config_name"`
	State              State     `json:"state"`
	AttemptIndex       int       `json:"attempt_index"`
	AttemptsPerSession int       `json:"attempts_per_session"`
	NumberOfStimuli    int       `json:"number_of_stimuli"`
	LitStimuli         int       `json:"lit_stimuli"`
	TriggerEnabled     bool      `json:"trigger_enabled"`
	Attempts           []Attempt `json:"attempts"`
	Summary            *Summary  `json:"summary,omitempty"`
	SessionsPlayed     int       `json:"sessions_played"`
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromMillis converts fractional milliseconds to a duration.
func FromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
