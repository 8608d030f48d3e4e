package trigger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/startlights/game/clock"
)

type emitRecorder struct {
	mu    sync.Mutex
	times []time.Time
}

func (r *emitRecorder) emit(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, at)
}

func (r *emitRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.times)
}

func newTestSource(window time.Duration) (*Source, *clock.ManualClock, *emitRecorder) {
	c := clock.NewManual(time.Time{})
	rec := &emitRecorder{}
	return NewSource(c, window, rec.emit, nil), c, rec
}

func TestSourceDisabledDropsPresses(t *testing.T) {
	s, _, rec := newTestSource(50 * time.Millisecond)

	ok, err := s.Press(ChannelKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, rec.count())

	s.SetEnabled(true)
	ok, err = s.Press(ChannelKey)
	require.NoError(t, err)
	assert.True(t, ok, "a dropped press while disabled starts no burst")
	assert.Equal(t, 1, rec.count())
}

func TestSourceDebouncesAcrossChannels(t *testing.T) {
	s, c, rec := newTestSource(50 * time.Millisecond)
	s.SetEnabled(true)

	ok, _ := s.Press(ChannelKey)
	assert.True(t, ok)
	ok, _ = s.Press(ChannelPointer)
	assert.False(t, ok)
	c.Advance(30 * time.Millisecond)
	ok, _ = s.Press(ChannelTouch)
	assert.False(t, ok)
	assert.Equal(t, 1, rec.count())

	c.Advance(20 * time.Millisecond)
	ok, _ = s.Press(ChannelPointer)
	assert.True(t, ok, "press at the window edge starts a new burst")
	assert.Equal(t, 2, rec.count())

	emitted, dropped := s.Stats()
	assert.Equal(t, 2, emitted)
	assert.Equal(t, 2, dropped)
}

func TestSourceZeroWindow(t *testing.T) {
	s, _, rec := newTestSource(0)
	s.SetEnabled(true)

	s.Press(ChannelKey)
	s.Press(ChannelKey)
	assert.Equal(t, 2, rec.count())
}

func TestSourcePassesPressInstant(t *testing.T) {
	s, c, rec := newTestSource(0)
	s.SetEnabled(true)

	at := c.Now().Add(-5 * time.Millisecond)
	_, err := s.PressAt(ChannelTouch, at)
	require.NoError(t, err)
	require.Len(t, rec.times, 1)
	assert.Equal(t, at, rec.times[0])
}

func TestSourceUnknownChannel(t *testing.T) {
	s, _, _ := newTestSource(0)
	s.SetEnabled(true)

	_, err := s.Press(Channel("joystick"))
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestParseChannel(t *testing.T) {
	tests := map[string]Channel{
		"":         ChannelKey,
		"key":      ChannelKey,
		"Keyboard": ChannelKey,
		"mouse":    ChannelPointer,
		"pointer":  ChannelPointer,
		"tap":      ChannelTouch,
		" touch ":  ChannelTouch,
	}
	for in, want := range tests {
		got, err := ParseChannel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseChannel("pedal")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestSourceConcurrentBurst(t *testing.T) {
	s, _, rec := newTestSource(time.Second)
	s.SetEnabled(true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Press(Channels[i%len(Channels)])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, rec.count(), "a burst from every channel yields one react")
}
