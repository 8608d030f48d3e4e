// Package loop runs every game callback on one goroutine.
//
// Transports, timers and the trigger source never touch engine state
// directly. They post closures into the Loop, which executes them one at a
// time in FIFO order. Timers obtained from Loop.Clock post their callback
// the same way, and a stopped timer is guaranteed never to run its callback
// even if the runtime timer had already fired and its post is still queued.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/startlights/game/clock"
)

// ErrClosed is returned when work is posted to a closed loop.
var ErrClosed = errors.New("loop closed")

// Loop is an unbounded FIFO of callbacks drained by Run.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // buffered, size 1
	done   chan struct{}
	logger *zap.Logger
}

// New creates a loop. Run must be called for posted work to execute.
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		tasks:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post queues fn and returns immediately. It returns false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish.
// It must not be called from a callback already running on the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// Run may have executed it just before exiting.
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs fn on the loop and returns its results.
func Call[T any](ctx context.Context, l *Loop, fn func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	if doErr := l.Do(ctx, func() { out, err = fn() }); doErr != nil {
		var zero T
		return zero, doErr
	}
	return out, err
}

// Run drains the queue until ctx is cancelled or the loop is closed and empty.
// A panicking callback is logged and does not stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		if fn, ok := l.next(); ok {
			l.exec(fn)
			continue
		}

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.signal:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) == 0 {
		return nil, false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	if len(l.tasks) == 1 {
		l.tasks = l.tasks[:0]
	} else {
		l.tasks = l.tasks[1:]
	}
	return fn, true
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop callback panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

// Len returns the number of queued callbacks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Close stops accepting work. Run returns once the queue is drained.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Clock returns a clock whose timers fire on the loop.
func (l *Loop) Clock() clock.Clock {
	return loopClock{l: l}
}

type loopClock struct {
	l *Loop
}

func (c loopClock) Now() time.Time { return time.Now() }

func (c loopClock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		c.l.Post(func() {
			if lt.state.CompareAndSwap(timerPending, timerFired) {
				fn()
			}
		})
	})
	return lt
}

const (
	timerPending int32 = iota
	timerFired
	timerStopped
)

// loopTimer's state is the cancellation token. Whichever of Stop or the
// queued callback wins the swap decides whether fn runs.
type loopTimer struct {
	t     *time.Timer
	state atomic.Int32
}

func (lt *loopTimer) Stop() bool {
	if !lt.state.CompareAndSwap(timerPending, timerStopped) {
		return false
	}
	lt.t.Stop()
	return true
}
