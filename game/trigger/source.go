// Package trigger turns physical presses into the engine's single react event.
//
// Key presses, pointer clicks and touches all arrive as a Channel. The Source
// drops presses while disabled and collapses every press that lands within
// the debounce window of the last emitted one, whatever its channel, so a
// simultaneous key and click produce one react.
package trigger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/startlights/game/clock"
)

// Channel is a physical input kind.
type Channel string

const (
	ChannelKey     Channel = "key"
	ChannelPointer Channel = "pointer"
	ChannelTouch   Channel = "touch"
)

// Channels lists every accepted channel.
var Channels = []Channel{ChannelKey, ChannelPointer, ChannelTouch}

// ErrUnknownChannel is returned for input kinds the source does not accept.
var ErrUnknownChannel = errors.New("unknown trigger channel")

// ParseChannel normalizes a channel name. Common aliases are accepted.
func ParseChannel(name string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "key", "keyboard", "space":
		return ChannelKey, nil
	case "pointer", "mouse", "click":
		return ChannelPointer, nil
	case "touch", "tap":
		return ChannelTouch, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
}

// Source gates and debounces presses. It is safe for concurrent use; presses
// may arrive from any transport goroutine.
type Source struct {
	mu       sync.Mutex
	clock    clock.Clock
	window   time.Duration
	emit     func(at time.Time)
	enabled  bool
	lastEmit time.Time
	emitted  int
	dropped  int
	logger   *zap.Logger
}

// NewSource creates a disabled source. emit receives the press instant of
// every press that survives gating and debouncing.
func NewSource(c clock.Clock, window time.Duration, emit func(at time.Time), logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{clock: c, window: window, emit: emit, logger: logger}
}

// SetEnabled opens or closes the gate.
func (s *Source) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Enabled reports whether presses currently pass the gate.
func (s *Source) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Press records a press stamped with the current time.
func (s *Source) Press(ch Channel) (bool, error) {
	return s.PressAt(ch, s.clock.Now())
}

// PressAt records a press made at the given instant and reports whether it
// was emitted.
func (s *Source) PressAt(ch Channel, at time.Time) (bool, error) {
	if !validChannel(ch) {
		return false, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}

	s.mu.Lock()
	if !s.enabled {
		s.dropped++
		s.mu.Unlock()
		s.logger.Debug("press dropped, trigger disabled", zap.String("channel", string(ch)))
		return false, nil
	}
	if !s.lastEmit.IsZero() && at.Sub(s.lastEmit) < s.window {
		s.dropped++
		s.mu.Unlock()
		s.logger.Debug("press debounced", zap.String("channel", string(ch)))
		return false, nil
	}
	s.lastEmit = at
	s.emitted++
	emit := s.emit
	s.mu.Unlock()

	if emit != nil {
		emit(at)
	}
	return true, nil
}

// Stats returns how many presses were emitted and dropped.
func (s *Source) Stats() (emitted, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted, s.dropped
}

func validChannel(ch Channel) bool {
	for _, c := range Channels {
		if c == ch {
			return true
		}
	}
	return false
}
