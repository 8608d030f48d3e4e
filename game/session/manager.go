package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/startlights/game/engine"
	"github.com/wricardo/startlights/game/loop"
	"github.com/wricardo/startlights/game/service"
	"github.com/wricardo/startlights/game/trigger"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// Runtime carries the collaborators every session's engine is built with.
type Runtime struct {
	Loop       *loop.Loop
	Aggregator *engine.Aggregator
	Uploader   engine.Uploader
	// Notifier builds the notifier for one session. Nil means no notifications.
	Notifier func(sessionID string) engine.Notifier
	// Rand builds a hold-duration source per session. Nil uses the engine default.
	Rand   func() engine.RandSource
	Logger *zap.Logger
}

// Manager handles trial session lifecycle
type Manager struct {
	sessions map[string]*service.Session
	runtime  Runtime
	mu       sync.RWMutex
	now      func() time.Time
}

// NewManager creates a new session manager
func NewManager(runtime Runtime) *Manager {
	if runtime.Logger == nil {
		runtime.Logger = zap.NewNop()
	}
	if runtime.Aggregator == nil {
		runtime.Aggregator = engine.NewAggregator()
	}
	return &Manager{
		sessions: make(map[string]*service.Session),
		runtime:  runtime,
		now:      time.Now,
	}
}

// Create creates a new session with the given ID and configuration.
// An empty ID is replaced with a generated one.
func (m *Manager) Create(id, configID string, config *engine.Config) (*service.Session, error) {
	if strings.ContainsAny(id, " /\\?#") {
		return nil, ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = m.generateSessionID()
	} else if m.sessionExists(id) {
		return nil, ErrSessionAlreadyExists
	}

	sess, err := m.build(id, configID, config)
	if err != nil {
		return nil, err
	}

	m.sessions[strings.ToLower(id)] = sess
	m.runtime.Logger.Info("session created", zap.String("session_id", id), zap.String("config", configID))
	return sess, nil
}

// build wires a trigger source and an engine for one session.
func (m *Manager) build(id, configID string, config *engine.Config) (*service.Session, error) {
	if err := engine.ValidateConfig(config); err != nil {
		return nil, err
	}
	lp := m.runtime.Loop
	if lp == nil {
		return nil, fmt.Errorf("failed to create engine: event loop is required")
	}
	logger := m.runtime.Logger.With(zap.String("session_id", id))

	var eng *engine.TrialEngine
	src := trigger.NewSource(lp.Clock(), config.DebounceWindow.Std(), func(at time.Time) {
		lp.Post(func() { eng.ReactAt(at) })
	}, logger)

	deps := engine.Deps{
		SessionID:  id,
		Clock:      lp.Clock(),
		Trigger:    src,
		Uploader:   m.runtime.Uploader,
		Aggregator: m.runtime.Aggregator,
		Logger:     logger,
	}
	if m.runtime.Notifier != nil {
		deps.Notifier = m.runtime.Notifier(id)
	}
	if m.runtime.Rand != nil {
		deps.Rand = m.runtime.Rand()
	}

	eng, err := engine.NewEngine(config, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	now := m.now()
	return &service.Session{
		ID:             id,
		ConfigID:       configID,
		Engine:         eng,
		Trigger:        src,
		Config:         config,
		CreatedAt:      now,
		LastAccessedAt: now,
	}, nil
}

// Get retrieves a session by ID (case-insensitive)
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sess, exists := m.sessions[strings.ToLower(id)]; exists {
		return sess, nil
	}
	return nil, ErrSessionNotFound
}

// GetOrCreate gets an existing session or creates a new one
func (m *Manager) GetOrCreate(id, configID string, config *engine.Config) (*service.Session, error) {
	sess, err := m.Get(id)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		return m.Create(id, configID, config)
	}
	return nil, err
}

// List returns all active sessions, oldest first
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		result = append(result, sess)
	}
	sortByCreation(result)
	return result
}

// Delete removes a session and cancels its pending timers
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	sess, exists := m.sessions[strings.ToLower(id)]
	if exists {
		delete(m.sessions, strings.ToLower(id))
	}
	m.mu.Unlock()

	if !exists {
		return ErrSessionNotFound
	}
	m.close(sess)
	return nil
}

// close shuts a removed session's engine down on the loop.
func (m *Manager) close(sess *service.Session) {
	sess.Trigger.SetEnabled(false)
	eng := sess.Engine
	if m.runtime.Loop == nil || !m.runtime.Loop.Post(eng.Close) {
		m.runtime.Logger.Warn("loop unavailable, session closed without cancelling timers",
			zap.String("session_id", sess.ID))
	}
}

// UpdateLastAccessed updates the last accessed time for a session
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[strings.ToLower(id)]
	if !exists {
		return ErrSessionNotFound
	}
	sess.LastAccessedAt = m.now()
	return nil
}

// CleanupExpiredSessions removes sessions that haven't been accessed in the given duration
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	var expired []*service.Session
	for key, sess := range m.sessions {
		if sess.LastAccessedAt.Before(cutoff) {
			delete(m.sessions, key)
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		m.close(sess)
	}
	return len(expired)
}

// CloseAll removes every session. Used on shutdown.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	all := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, sess)
	}
	m.sessions = make(map[string]*service.Session)
	m.mu.Unlock()

	for _, sess := range all {
		m.close(sess)
	}
	return len(all)
}

// Count returns the number of active sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// generateSessionID generates a random 4-character session ID not yet in
// use. Caller holds mu.
func (m *Manager) generateSessionID() string {
	bytes := make([]byte, 2)
	for {
		rand.Read(bytes)
		if id := hex.EncodeToString(bytes); !m.sessionExists(id) {
			return id
		}
	}
}

// sessionExists checks if a session exists (case-insensitive). Caller holds mu.
func (m *Manager) sessionExists(id string) bool {
	_, exists := m.sessions[strings.ToLower(id)]
	return exists
}

func sortByCreation(sessions []*service.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
