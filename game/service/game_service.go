package service

import (
	"context"
	"time"

	"github.com/wricardo/startlights/game/engine"
	"github.com/wricardo/startlights/game/trigger"
)

// GameService defines all trial-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, configID string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Trial Operations
	Start(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	React(ctx context.Context, sessionID, channel string) (*ReactResult, error)
	Advance(ctx context.Context, sessionID string) (*engine.Snapshot, error)

	// Results
	GetState(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	GetSummary(ctx context.Context, sessionID string) (*engine.Summary, error)
	GetHistory(ctx context.Context) (*engine.HistoricalStats, error)
	ResetHistory(ctx context.Context) error
	ListRecords(ctx context.Context, limit int) ([]*engine.Summary, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configID string) (*engine.Config, error)
	SaveConfig(ctx context.Context, configID string, config *engine.Config) error
}

// SessionManager defines live session storage operations
type SessionManager interface {
	Create(id, configID string, config *engine.Config) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
}

// ConfigManager handles trial configuration loading. LoadConfig returns an
// error wrapping ErrConfigNotFound for unknown IDs.
type ConfigManager interface {
	LoadConfig(name string) (*engine.Config, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.Config
	SaveConfig(name string, config *engine.Config) error
}

// RecordStore lists completed sessions written by an upload sink
type RecordStore interface {
	ListRecent(ctx context.Context, limit int) ([]*engine.Summary, error)
}

// EventPublisher pushes lifecycle events to connected clients
type EventPublisher interface {
	BroadcastEvent(sessionID, eventType string, data interface{})
}

// Session represents a live trial session. Engine must only be touched on
// the event loop; Trigger may be pressed from any goroutine.
type Session struct {
	ID             string
	ConfigID       string
	Engine         engine.Engine
	Trigger        *trigger.Source
	Config         *engine.Config
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
