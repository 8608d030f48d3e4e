package engine

import (
	"math"
	"time"

	"github.com/wricardo/startlights/game/clock"
)

// RandSource draws the hold duration. *math/rand/v2.Rand satisfies it.
type RandSource interface {
	Int64N(n int64) int64
}

// SequenceListener receives the sequencer's lifecycle events.
type SequenceListener interface {
	ArmingStepped(index int)
	FullyArmed(hold time.Duration)
	GoSignal()
}

// Sequencer lights the stimuli one at a time and then fires the go signal
// after a random hold. Only one run is ever active; every callback carries the
// generation of the run that scheduled it and is dropped if that run was
// cancelled or replaced.
type Sequencer struct {
	clock    clock.Clock
	rand     RandSource
	listener SequenceListener

	generation uint64
	active     bool
	pending    clock.Timer
}

// NewSequencer creates a sequencer that reports to listener.
func NewSequencer(c clock.Clock, r RandSource, listener SequenceListener) *Sequencer {
	return &Sequencer{clock: c, rand: r, listener: listener}
}

// Run starts a new arming sequence, cancelling any run in progress.
func (s *Sequencer) Run(cfg *Config) {
	s.Cancel()
	s.active = true
	s.schedule(s.generation, cfg.StimulusOnInterval.Std(), func(gen uint64) { s.step(gen, 1, cfg) })
}

// Cancel stops every outstanding callback of the current run. It is idempotent
// and a no-op once the go signal has fired.
func (s *Sequencer) Cancel() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.generation++
	s.active = false
}

// Active reports whether a run is scheduled and has not yet fired the go signal.
func (s *Sequencer) Active() bool {
	return s.active
}

func (s *Sequencer) schedule(gen uint64, d time.Duration, fn func(gen uint64)) {
	s.pending = s.clock.AfterFunc(d, func() {
		if gen != s.generation || !s.active {
			return
		}
		s.pending = nil
		fn(gen)
	})
}

func (s *Sequencer) step(gen uint64, index int, cfg *Config) {
	s.listener.ArmingStepped(index)
	if gen != s.generation {
		return
	}

	if index < cfg.NumberOfStimuli {
		s.schedule(gen, cfg.StimulusOnInterval.Std(), func(gen uint64) { s.step(gen, index+1, cfg) })
		return
	}

	// Drawn only now, so nothing visible before arming hints at the wait.
	hold := HoldDuration(cfg, s.rand)
	s.listener.FullyArmed(hold)
	if gen != s.generation {
		return
	}
	s.schedule(gen, hold, s.fire)
}

func (s *Sequencer) fire(gen uint64) {
	s.active = false
	s.listener.GoSignal()
}

// HoldDuration draws uniformly from [MinHoldDuration, MaxHoldDuration] inclusive.
func HoldDuration(cfg *Config, r RandSource) time.Duration {
	lo, hi := int64(cfg.MinHoldDuration), int64(cfg.MaxHoldDuration)
	if hi <= lo {
		return time.Duration(lo)
	}
	if span := uint64(hi) - uint64(lo); span >= math.MaxInt64 {
		// The inclusive span does not fit in an int64; lo is not positive here.
		return time.Duration(lo + r.Int64N(math.MaxInt64))
	}
	return time.Duration(lo + r.Int64N(hi-lo+1))
}
