package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wricardo/startlights/game/engine"
	"github.com/wricardo/startlights/game/loop"
	"github.com/wricardo/startlights/game/trigger"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrConfigNotFound    = errors.New("config not found")
	ErrSessionIncomplete = errors.New("session not complete")
	ErrNoRecordStore     = errors.New("no record store configured")
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions   SessionManager
	configs    ConfigManager
	loop       *loop.Loop
	aggregator *engine.Aggregator
	records    RecordStore
	logger     *zap.Logger
}

// Option customizes the game service
type Option func(*gameServiceImpl)

// WithRecords lets the service list completed sessions.
func WithRecords(records RecordStore) Option {
	return func(s *gameServiceImpl) { s.records = records }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *gameServiceImpl) { s.logger = logger }
}

// NewGameService creates a new game service instance. aggregator must be the
// same instance the session manager hands to each engine.
func NewGameService(sessions SessionManager, configs ConfigManager, lp *loop.Loop, aggregator *engine.Aggregator, opts ...Option) GameService {
	s := &gameServiceImpl{
		sessions:   sessions,
		configs:    configs,
		loop:       lp,
		aggregator: aggregator,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getConfigID returns the config_id for a given display name
func (s *gameServiceImpl) getConfigID(configName string) string {
	availableConfigs, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range availableConfigs {
			if cfg.Name == configName {
				return cfg.ConfigID
			}
		}
	}
	if configName == "" {
		return "default"
	}
	return configName
}

// CreateSession creates a new trial session
func (s *gameServiceImpl) CreateSession(ctx context.Context, configID string) (*SessionInfo, error) {
	var config *engine.Config
	if configID != "" {
		var err error
		config, err = s.loadConfig(configID)
		if err != nil {
			return nil, err
		}
	} else {
		config = s.configs.GetDefault()
		configID = s.getConfigID(config.Name)
	}

	sess, err := s.sessions.Create("", configID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return s.info(ctx, sess)
}

// loadConfig loads a config, listing the available IDs when it is missing
func (s *gameServiceImpl) loadConfig(configID string) (*engine.Config, error) {
	config, err := s.configs.LoadConfig(configID)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, ErrConfigNotFound) {
		return nil, fmt.Errorf("failed to load config %s: %w", configID, err)
	}

	availableConfigs, listErr := s.configs.ListConfigs()
	if listErr == nil && len(availableConfigs) > 0 {
		var configIDs []string
		for _, cfg := range availableConfigs {
			configIDs = append(configIDs, cfg.ConfigID)
		}
		return nil, fmt.Errorf("%w: '%s'. Available configs: %v", ErrConfigNotFound, configID, configIDs)
	}
	return nil, fmt.Errorf("%w: '%s'. Use /api/configs to list available configurations", ErrConfigNotFound, configID)
}

// lookup finds a session and marks it as accessed
func (s *gameServiceImpl) lookup(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	_ = s.sessions.UpdateLastAccessed(sessionID)
	return sess, nil
}

// snapshot reads an engine's state on the loop
func (s *gameServiceImpl) snapshot(ctx context.Context, sess *Session) (*engine.Snapshot, error) {
	return loop.Call(ctx, s.loop, func() (*engine.Snapshot, error) {
		snap := sess.Engine.Snapshot()
		return &snap, nil
	})
}

func (s *gameServiceImpl) info(ctx context.Context, sess *Session) (*SessionInfo, error) {
	snap, err := s.snapshot(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{
		ID:             sess.ID,
		ConfigID:       sess.ConfigID,
		ConfigName:     sess.Config.Name,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		State:          snap,
		Config:         sess.Config,
	}, nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return s.info(ctx, sess)
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info, err := s.info(ctx, sess)
		if err != nil {
			return nil, err
		}
		result = append(result, info)
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// Start begins a new run of attempts
func (s *gameServiceImpl) Start(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	return s.transition(ctx, sessionID, func(eng engine.Engine) error { return eng.Start() })
}

// Advance moves a resolved attempt on to the next attempt or to completion
func (s *gameServiceImpl) Advance(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	return s.transition(ctx, sessionID, func(eng engine.Engine) error { return eng.Advance() })
}

func (s *gameServiceImpl) transition(ctx context.Context, sessionID string, fn func(engine.Engine) error) (*engine.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return loop.Call(ctx, s.loop, func() (*engine.Snapshot, error) {
		if err := fn(sess.Engine); err != nil {
			return nil, err
		}
		snap := sess.Engine.Snapshot()
		return &snap, nil
	})
}

// React presses the session's trigger on the given channel
func (s *gameServiceImpl) React(ctx context.Context, sessionID, channel string) (*ReactResult, error) {
	ch, err := trigger.ParseChannel(channel)
	if err != nil {
		return nil, err
	}
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	accepted, err := sess.Trigger.Press(ch)
	if err != nil {
		return nil, err
	}
	result := &ReactResult{Accepted: accepted, Channel: string(ch)}
	if !accepted {
		if sess.Trigger.Enabled() {
			result.Reason = ReasonDebounced
		} else {
			result.Reason = ReasonTriggerDisabled
		}
	}

	// An accepted press was posted to the loop before this read.
	snap, err := s.snapshot(ctx, sess)
	if err != nil {
		return nil, err
	}
	result.State = snap
	if accepted && (snap.State == engine.StateResolved || snap.State == engine.StateComplete) && len(snap.Attempts) > 0 {
		last := snap.Attempts[len(snap.Attempts)-1]
		result.Attempt = &last
	}
	return result, nil
}

// GetState returns the current state of a session
func (s *gameServiceImpl) GetState(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, sess)
}

// GetSummary returns the summary of the session's last completed run
func (s *gameServiceImpl) GetSummary(ctx context.Context, sessionID string) (*engine.Summary, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return loop.Call(ctx, s.loop, func() (*engine.Summary, error) {
		summary := sess.Engine.Summary()
		if summary == nil {
			return nil, fmt.Errorf("%w: %s", ErrSessionIncomplete, sessionID)
		}
		return summary, nil
	})
}

// GetHistory returns process-wide statistics across completed sessions
func (s *gameServiceImpl) GetHistory(ctx context.Context) (*engine.HistoricalStats, error) {
	return loop.Call(ctx, s.loop, func() (*engine.HistoricalStats, error) {
		stats := s.aggregator.Stats()
		return &stats, nil
	})
}

// ResetHistory clears the process-wide record
func (s *gameServiceImpl) ResetHistory(ctx context.Context) error {
	if err := s.loop.Do(ctx, s.aggregator.Reset); err != nil {
		return err
	}
	s.logger.Info("historical record reset")
	return nil
}

// ListRecords returns recently completed sessions from the record store
func (s *gameServiceImpl) ListRecords(ctx context.Context, limit int) ([]*engine.Summary, error) {
	if s.records == nil {
		return nil, ErrNoRecordStore
	}
	return s.records.ListRecent(ctx, limit)
}

// ListConfigs returns available configurations
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a configuration
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configID string) (*engine.Config, error) {
	return s.loadConfig(configID)
}

// SaveConfig saves a configuration
func (s *gameServiceImpl) SaveConfig(ctx context.Context, configID string, config *engine.Config) error {
	return s.configs.SaveConfig(configID, config)
}
