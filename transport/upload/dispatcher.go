package upload

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/startlights/game/engine"
)

const DefaultTimeout = 10 * time.Second

// Dispatcher fans summaries out to sinks in the background
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	sent     int
	failures int
}

// NewDispatcher creates a dispatcher. A non-positive timeout uses DefaultTimeout.
func NewDispatcher(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Upload implements engine.Uploader. It never blocks on a sink.
func (d *Dispatcher) Upload(summary *engine.Summary) {
	if summary == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("upload dropped after close", zap.String("session_id", summary.SessionID))
		return
	}
	d.wg.Add(len(d.sinks))
	d.mu.Unlock()

	for _, sink := range d.sinks {
		go d.send(sink, summary)
	}
}

func (d *Dispatcher) send(sink Sink, summary *engine.Summary) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := sink.Send(ctx, summary)

	d.mu.Lock()
	if err != nil {
		d.failures++
	} else {
		d.sent++
	}
	d.mu.Unlock()

	fields := []zap.Field{
		zap.String("sink", sink.Name()),
		zap.String("session_id", summary.SessionID),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		d.logger.Error("upload failed", append(fields, zap.Error(err))...)
		return
	}
	d.logger.Info("session uploaded", fields...)
}

// Sinks returns the configured sink names.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, sink := range d.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// Stats returns the number of successful and failed sink deliveries.
func (d *Dispatcher) Stats() (sent, failures int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent, d.failures
}

// Wait blocks until in-flight uploads finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting uploads and waits for in-flight ones until ctx is
// done, at which point they are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
