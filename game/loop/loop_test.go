package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		l.Close()
		cancel()
		<-l.Done()
	})
	return l
}

func TestLoopRunsInOrder(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopSerializesConcurrentPosts(t *testing.T) {
	l := startLoop(t)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() { counter++ })
		}()
	}
	wg.Wait()

	n, err := Call(context.Background(), l, func() (int, error) { return counter, nil })
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestLoopSurvivesPanic(t *testing.T) {
	l := startLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopClosedRejectsWork(t *testing.T) {
	l := New(nil)
	l.Close()
	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrClosed)
}

func TestLoopCloseDrainsQueue(t *testing.T) {
	l := New(nil)
	ran := 0
	for i := 0; i < 3; i++ {
		l.Post(func() { ran++ })
	}
	l.Close()
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 3, ran)
}

func TestLoopDoHonoursContext(t *testing.T) {
	l := New(nil) // never run
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Do(ctx, func() {}), context.DeadlineExceeded)
}

func TestLoopClockFiresOnLoop(t *testing.T) {
	l := startLoop(t)

	fired := make(chan struct{})
	require.NoError(t, l.Do(context.Background(), func() {
		l.Clock().AfterFunc(5*time.Millisecond, func() { close(fired) })
	}))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestLoopTimerStopAfterRuntimeFire(t *testing.T) {
	l := New(nil) // not running yet, so the fired callback stays queued

	fired := false
	timer := l.Clock().AfterFunc(time.Millisecond, func() { fired = true })

	require.Eventually(t, func() bool { return l.Len() == 1 }, time.Second, time.Millisecond)
	assert.True(t, timer.Stop(), "stop wins while the callback is still queued")
	assert.False(t, timer.Stop())

	l.Close()
	require.NoError(t, l.Run(context.Background()))
	assert.False(t, fired)
}
