package records

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/wricardo/startlights/game/engine"
)

const defaultListLimit = 50

// SQLiteStore persists completed session summaries.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // single writer
	s := &SQLiteStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Name identifies the store in upload logs.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			config_name TEXT NOT NULL,
			attempts_per_session INTEGER NOT NULL,
			valid_count INTEGER NOT NULL,
			false_start_count INTEGER NOT NULL,
			timed_out_count INTEGER NOT NULL,
			false_start_rate REAL NOT NULL,
			session_average_ms REAL NOT NULL,
			best_reaction_ms REAL NOT NULL,
			session_best_ms REAL NOT NULL,
			session_worst_ms REAL NOT NULL,
			std_dev_ms REAL NOT NULL,
			high_variability INTEGER NOT NULL,
			rating TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_completed ON sessions(completed_at DESC);`,
		`CREATE TABLE IF NOT EXISTS attempts (
			record_id TEXT NOT NULL,
			attempt_index INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			duration_ms REAL,
			recorded_at TIMESTAMP NOT NULL,
			PRIMARY KEY(record_id, attempt_index),
			FOREIGN KEY(record_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Send stores a summary and its attempts in one transaction.
func (s *SQLiteStore) Send(ctx context.Context, summary *engine.Summary) error {
	if summary == nil {
		return fmt.Errorf("summary cannot be nil")
	}
	id := uuid.New()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions(
			id, session_id, config_name, attempts_per_session,
			valid_count, false_start_count, timed_out_count, false_start_rate,
			session_average_ms, best_reaction_ms, session_best_ms, session_worst_ms,
			std_dev_ms, high_variability, rating, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), summary.SessionID, summary.ConfigName, summary.AttemptsPerSession,
		summary.ValidCount, summary.FalseStartCount, summary.TimedOutCount, summary.FalseStartRate,
		engine.Millis(summary.SessionAverage), engine.Millis(summary.BestReactionTime),
		engine.Millis(summary.SessionBest), engine.Millis(summary.SessionWorst),
		engine.Millis(summary.StdDev), summary.HighVariability, string(summary.Rating),
		summary.StartedAt.UTC(), summary.CompletedAt.UTC())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert session %s: %w", summary.SessionID, err)
	}

	for _, attempt := range summary.Attempts {
		var duration sql.NullFloat64
		if attempt.Outcome.HasDuration() {
			duration = sql.NullFloat64{Float64: engine.Millis(attempt.Outcome.Duration), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attempts(record_id, attempt_index, outcome, duration_ms, recorded_at)
			VALUES (?, ?, ?, ?, ?)`,
			id.String(), attempt.Index, string(attempt.Outcome.Kind), duration, attempt.RecordedAt.UTC())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert attempt %d: %w", attempt.Index, err)
		}
	}
	return tx.Commit()
}

// ListRecent returns the most recently completed sessions, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*engine.Summary, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, config_name, attempts_per_session,
		       valid_count, false_start_count, timed_out_count, false_start_rate,
		       session_average_ms, best_reaction_ms, session_best_ms, session_worst_ms,
		       std_dev_ms, high_variability, rating, started_at, completed_at
		FROM sessions
		ORDER BY completed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	var ids []string
	out := make([]*engine.Summary, 0)
	for rows.Next() {
		var (
			id                                  string
			sum                                 engine.Summary
			average, best, sBest, sWorst, stdev float64
			rating                              string
		)
		if err := rows.Scan(&id, &sum.SessionID, &sum.ConfigName, &sum.AttemptsPerSession,
			&sum.ValidCount, &sum.FalseStartCount, &sum.TimedOutCount, &sum.FalseStartRate,
			&average, &best, &sBest, &sWorst, &stdev, &sum.HighVariability, &rating,
			&sum.StartedAt, &sum.CompletedAt); err != nil {
			rows.Close()
			return nil, err
		}
		sum.SessionAverage = engine.FromMillis(average)
		sum.BestReactionTime = engine.FromMillis(best)
		sum.SessionBest = engine.FromMillis(sBest)
		sum.SessionWorst = engine.FromMillis(sWorst)
		sum.StdDev = engine.FromMillis(stdev)
		sum.Rating = engine.Rating(rating)
		ids = append(ids, id)
		out = append(out, &sum)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i, id := range ids {
		attempts, err := s.attempts(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i].Attempts = attempts
	}
	return out, nil
}

func (s *SQLiteStore) attempts(ctx context.Context, recordID string) ([]engine.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attempt_index, outcome, duration_ms, recorded_at
		FROM attempts WHERE record_id = ?
		ORDER BY attempt_index ASC`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Attempt
	for rows.Next() {
		var (
			a        engine.Attempt
			kind     string
			duration sql.NullFloat64
			at       time.Time
		)
		if err := rows.Scan(&a.Index, &kind, &duration, &at); err != nil {
			return nil, err
		}
		a.Outcome = engine.Outcome{Kind: engine.OutcomeKind(kind)}
		if duration.Valid {
			a.Outcome.Duration = engine.FromMillis(duration.Float64)
		}
		a.RecordedAt = at
		out = append(out, a)
	}
	return out, rows.Err()
}
