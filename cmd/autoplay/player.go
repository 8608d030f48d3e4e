package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/startlights/game/engine"
)

// Player runs whole sessions with a strategy.
type Player struct {
	client   *Client
	strategy Strategy
	poll     time.Duration
	logger   *zap.Logger
}

func NewPlayer(client *Client, strategy Strategy, poll time.Duration, logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{client: client, strategy: strategy, poll: poll, logger: logger}
}

// PlaySession creates a session, plays every attempt and returns the summary.
func (p *Player) PlaySession(ctx context.Context, configID string) (*engine.Summary, error) {
	info, err := p.client.CreateSession(ctx, configID)
	if err != nil {
		return nil, err
	}
	logger := p.logger.With(zap.String("session_id", info.ID), zap.String("config", info.ConfigName))
	logger.Info("Session created")

	state, err := p.client.Start(ctx)
	if err != nil {
		return nil, err
	}

	for state.State != engine.StateComplete {
		attempt := state.AttemptIndex
		state, err = p.playAttempt(ctx, attempt)
		if err != nil {
			return nil, fmt.Errorf("attempt %d: %w", attempt, err)
		}
		if n := len(state.Attempts); n >= attempt {
			a := state.Attempts[attempt-1]
			logger.Info("Attempt resolved", zap.Int("attempt", a.Index), zap.String("outcome", a.Outcome.String()))
		}

		if state.State == engine.StateResolved {
			next, err := p.client.Advance(ctx)
			if err != nil {
				// result_display may have advanced it first
				if next, err = p.client.State(ctx); err != nil {
					return nil, err
				}
			}
			state = next
		}
	}

	return p.client.Summary(ctx)
}

func (p *Player) playAttempt(ctx context.Context, attempt int) (*engine.Snapshot, error) {
	resolved := func(s *engine.Snapshot) bool {
		return s.State == engine.StateComplete || len(s.Attempts) >= attempt
	}

	press := p.strategy.Next(attempt)
	switch {
	case press.Skip:
		return p.waitFor(ctx, resolved)

	case press.Early:
		if err := sleep(ctx, press.Delay); err != nil {
			return nil, err
		}
		if _, err := p.client.React(ctx, "key"); err != nil {
			return nil, err
		}
		return p.waitFor(ctx, resolved)

	default:
		state, err := p.waitFor(ctx, func(s *engine.Snapshot) bool {
			return s.State == engine.StateLive || resolved(s)
		})
		if err != nil {
			return nil, err
		}
		if state.State == engine.StateLive {
			if err := sleep(ctx, press.Delay); err != nil {
				return nil, err
			}
			if _, err := p.client.React(ctx, "key"); err != nil {
				return nil, err
			}
		}
		return p.waitFor(ctx, resolved)
	}
}

// waitFor polls the session state until done reports true.
func (p *Player) waitFor(ctx context.Context, done func(*engine.Snapshot) bool) (*engine.Snapshot, error) {
	for {
		state, err := p.client.State(ctx)
		if err != nil {
			return nil, err
		}
		if done(state) {
			return state, nil
		}
		if err := sleep(ctx, p.poll); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
