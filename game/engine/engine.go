package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/startlights/game/clock"
)

// ErrInvalidTransition is returned when an operation is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid transition")

// Engine provides the main interface for trial operations
type Engine interface {
	// Session lifecycle
	Start() error
	Advance() error
	Close()

	// Trigger input
	React()
	ReactAt(at time.Time)

	// Read-only views
	State() State
	Snapshot() Snapshot
	Summary() *Summary
	Config() Config
}

// Notifier receives lifecycle notifications. Calls are fire-and-forget and
// run on the engine's goroutine, so implementations must not block.
type Notifier interface {
	AttemptArmed(index int)
	StimulusOn(index, lit int)
	AttemptLive(index int)
	AttemptResolved(index int, attempt Attempt)
	SessionComplete(summary *Summary)
}

// Uploader hands a completed session to an external sink. It must return
// without waiting for delivery.
type Uploader interface {
	Upload(summary *Summary)
}

// TriggerGate is the part of a trigger source the engine controls.
type TriggerGate interface {
	SetEnabled(enabled bool)
}

// Deps are the engine's collaborators. Only Clock is required.
type Deps struct {
	SessionID  string
	Clock      clock.Clock
	Rand       RandSource
	Trigger    TriggerGate
	Notifier   Notifier
	Uploader   Uploader
	Aggregator *Aggregator
	Logger     *zap.Logger
}

// TrialEngine implements the Engine interface
type TrialEngine struct {
	config     Config
	sessionID  string
	clock      clock.Clock
	trigger    TriggerGate
	notifier   Notifier
	uploader   Uploader
	aggregator *Aggregator
	logger     *zap.Logger
	sequencer  *Sequencer

	state          State
	attemptIndex   int
	litStimuli     int
	goInstant      time.Time
	triggerEnabled bool
	timeout        clock.Timer
	autoAdvance    clock.Timer
	session        *Session
	summary        *Summary
	sessionsPlayed int
	closed         bool
}

// NewEngine validates config and returns an engine in the ready state.
// A validation failure creates nothing.
func NewEngine(config *Config, deps Deps) (*TrialEngine, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("engine: clock is required")
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Aggregator == nil {
		deps.Aggregator = NewAggregator()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	e := &TrialEngine{
		config:     *config,
		sessionID:  deps.SessionID,
		clock:      deps.Clock,
		trigger:    deps.Trigger,
		notifier:   deps.Notifier,
		uploader:   deps.Uploader,
		aggregator: deps.Aggregator,
		logger:     deps.Logger.With(zap.String("session_id", deps.SessionID)),
		state:      StateReady,
	}
	e.sequencer = NewSequencer(deps.Clock, deps.Rand, sequenceEvents{e})
	e.setTrigger(false)
	return e, nil
}

// Start begins a new session. It is valid from ready and from complete.
func (e *TrialEngine) Start() error {
	if e.closed {
		return fmt.Errorf("%w: engine closed", ErrInvalidTransition)
	}
	if e.state != StateReady && e.state != StateComplete {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, e.state)
	}

	e.session = &Session{
		ID:                 e.sessionID,
		ConfigName:         e.config.Name,
		AttemptsPerSession: e.config.AttemptsPerSession,
		StartedAt:          e.clock.Now(),
		Attempts:           make([]Attempt, 0, e.config.AttemptsPerSession),
	}
	e.summary = nil
	e.attemptIndex = 0
	e.logger.Info("session started", zap.String("config", e.config.Name),
		zap.Int("attempts", e.config.AttemptsPerSession))

	e.arm()
	return nil
}

// arm enters the armed state for the next attempt.
func (e *TrialEngine) arm() {
	e.attemptIndex++
	e.state = StateArmed
	e.litStimuli = 0
	e.goInstant = time.Time{}
	e.setTrigger(true)
	e.notifier.AttemptArmed(e.attemptIndex)
	e.sequencer.Run(&e.config)
}

// React resolves the current attempt using the clock's current time.
func (e *TrialEngine) React() {
	e.ReactAt(e.clock.Now())
}

// ReactAt resolves the current attempt for a press made at the given instant.
// Presses outside armed and live are ignored.
func (e *TrialEngine) ReactAt(at time.Time) {
	switch e.state {
	case StateArmed:
		e.resolve(FalseStart())

	case StateLive:
		d := at.Sub(e.goInstant)
		timeout := e.config.ResponseTimeout.Std()
		switch {
		case d < 0:
			// Pressed before lights out but delivered after.
			e.resolve(FalseStart())
		case d >= timeout:
			e.resolve(TimedOut(timeout))
		default:
			e.resolve(ValidReaction(d))
		}

	default:
		e.logger.Debug("react ignored", zap.String("state", string(e.state)))
	}
}

// goSignal moves an armed attempt to live.
func (e *TrialEngine) goSignal() {
	if e.state != StateArmed {
		return
	}
	e.state = StateLive
	e.goInstant = e.clock.Now()

	index := e.attemptIndex
	e.timeout = e.clock.AfterFunc(e.config.ResponseTimeout.Std(), func() {
		if e.state != StateLive || e.attemptIndex != index {
			return
		}
		e.timeout = nil
		e.resolve(TimedOut(e.config.ResponseTimeout.Std()))
	})
	e.notifier.AttemptLive(index)
}

// resolve assigns the outcome of the current attempt. It is the only place an
// attempt is appended, and it only acts from armed or live.
func (e *TrialEngine) resolve(outcome Outcome) {
	if e.state != StateArmed && e.state != StateLive {
		return
	}
	e.cancelPending()
	e.setTrigger(false)
	e.state = StateResolved

	attempt := Attempt{
		Index:      e.attemptIndex,
		Outcome:    outcome,
		RecordedAt: e.clock.Now(),
	}
	e.session.Attempts = append(e.session.Attempts, attempt)

	e.logger.Debug("attempt resolved",
		zap.Int("attempt", attempt.Index),
		zap.String("outcome", string(outcome.Kind)),
		zap.Duration("duration", outcome.Duration))
	e.notifier.AttemptResolved(attempt.Index, attempt)

	if d := e.config.ResultDisplay.Std(); d > 0 && e.state == StateResolved {
		index := e.attemptIndex
		e.autoAdvance = e.clock.AfterFunc(d, func() {
			if e.state != StateResolved || e.attemptIndex != index {
				return
			}
			e.autoAdvance = nil
			_ = e.Advance()
		})
	}
}

// Advance leaves the resolved state, arming the next attempt or completing
// the session.
func (e *TrialEngine) Advance() error {
	if e.state != StateResolved {
		return fmt.Errorf("%w: cannot advance from %s", ErrInvalidTransition, e.state)
	}
	if e.autoAdvance != nil {
		e.autoAdvance.Stop()
		e.autoAdvance = nil
	}

	if !e.session.Complete() {
		e.arm()
		return nil
	}
	e.complete()
	return nil
}

func (e *TrialEngine) complete() {
	e.state = StateComplete
	e.setTrigger(false)
	e.session.CompletedAt = e.clock.Now()
	e.sessionsPlayed++

	summary := e.aggregator.Summarize(e.session)
	e.summary = summary

	e.logger.Info("session complete",
		zap.Int("valid", summary.ValidCount),
		zap.Int("false_starts", summary.FalseStartCount),
		zap.Duration("average", summary.SessionAverage),
		zap.Duration("best", summary.BestReactionTime))

	e.notifier.SessionComplete(summary)
	if e.uploader != nil {
		e.uploader.Upload(summary)
	}
}

// Close cancels every outstanding callback. The engine accepts no further
// starts afterwards.
func (e *TrialEngine) Close() {
	e.closed = true
	e.cancelPending()
	if e.autoAdvance != nil {
		e.autoAdvance.Stop()
		e.autoAdvance = nil
	}
	e.setTrigger(false)
}

// cancelPending stops the sequencer and the response timeout.
func (e *TrialEngine) cancelPending() {
	e.sequencer.Cancel()
	if e.timeout != nil {
		e.timeout.Stop()
		e.timeout = nil
	}
}

func (e *TrialEngine) setTrigger(enabled bool) {
	e.triggerEnabled = enabled
	if e.trigger != nil {
		e.trigger.SetEnabled(enabled)
	}
}

// State returns the current state
func (e *TrialEngine) State() State {
	return e.state
}

// Config returns a copy of the configuration
func (e *TrialEngine) Config() Config {
	return e.config
}

// Summary returns the last completed session's summary, or nil.
func (e *TrialEngine) Summary() *Summary {
	return e.summary
}

// Snapshot returns a copy of the engine's observable state.
func (e *TrialEngine) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:          e.sessionID,
		ConfigName:         e.config.Name,
		State:              e.state,
		AttemptIndex:       e.attemptIndex,
		AttemptsPerSession: e.config.AttemptsPerSession,
		NumberOfStimuli:    e.config.NumberOfStimuli,
		LitStimuli:         e.litStimuli,
		TriggerEnabled:     e.triggerEnabled,
		Attempts:           []Attempt{},
		Summary:            e.summary,
		SessionsPlayed:     e.sessionsPlayed,
	}
	if e.session != nil {
		snap.Attempts = append(snap.Attempts, e.session.Attempts...)
	}
	return snap
}

// sequenceEvents adapts sequencer callbacks onto the engine.
type sequenceEvents struct {
	e *TrialEngine
}

func (s sequenceEvents) ArmingStepped(index int) {
	if s.e.state != StateArmed {
		return
	}
	s.e.litStimuli = index
	s.e.notifier.StimulusOn(s.e.attemptIndex, index)
}

func (s sequenceEvents) FullyArmed(hold time.Duration) {
	s.e.logger.Debug("fully armed", zap.Int("attempt", s.e.attemptIndex), zap.Duration("hold", hold))
}

func (s sequenceEvents) GoSignal() {
	s.e.litStimuli = 0
	s.e.goSignal()
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) AttemptArmed(int) {}
func (NopNotifier) StimulusOn(int, int) {}
func (NopNotifier) AttemptLive(int) {}
func (NopNotifier) AttemptResolved(int, Attempt) {}
func (NopNotifier) SessionComplete(*Summary) {}
