package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/ecovision/internal/filters"
	"github.com/lox/ecovision/internal/logger"
	"github.com/lox/ecovision/internal/models"
)

type Store struct {
	db  *sql.DB
	log *logger.Logger
}

func New(db *sql.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, log: log}
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
}

// Configure applies the connection pragmas the server relies on.
func (s *Store) Configure() error {
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// SaveFilters stores the latest filter state for a session.
func (s *Store) SaveFilters(ctx context.Context, sessionID string, f filters.State) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, filters_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			filters_json = excluded.filters_json,
			updated_at = excluded.updated_at
	`, sessionID, string(data), now, now)
	if err != nil {
		return fmt.Errorf("save filters: %w", err)
	}
	return nil
}

// LoadFilters returns the stored filter state for a session. ok is false when the
// session has never saved any.
func (s *Store) LoadFilters(ctx context.Context, sessionID string) (f filters.State, ok bool, err error) {
	var data string
	err = s.db.QueryRowContext(ctx, `SELECT filters_json FROM sessions WHERE session_id = ?`, sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return filters.State{}, false, nil
	}
	if err != nil {
		return filters.State{}, false, fmt.Errorf("load filters: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return filters.State{}, false, fmt.Errorf("unmarshal filters: %w", err)
	}
	return f, true, nil
}

// RecordApply appends one apply cycle to the session's history.
func (s *Store) RecordApply(ctx context.Context, rec models.ApplyRecord) error {
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now()
	}
	rec.AppliedAt = rec.AppliedAt.UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apply_history (session_id, token, analysis_type, outcome, query, duration_ms, error, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, int64(rec.Token), rec.AnalysisType, rec.Outcome, rec.Query, rec.DurationMS, rec.Error, rec.AppliedAt)
	if err != nil {
		return fmt.Errorf("record apply: %w", err)
	}
	return nil
}

// RecentApplies returns the newest applies for a session, newest first.
func (s *Store) RecentApplies(ctx context.Context, sessionID string, limit int) ([]models.ApplyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, token, analysis_type, outcome, query, duration_ms, error, applied_at
		FROM apply_history
		WHERE session_id = ?
		ORDER BY applied_at DESC, id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query applies: %w", err)
	}
	defer rows.Close()

	var records []models.ApplyRecord
	for rows.Next() {
		var (
			rec   models.ApplyRecord
			token int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &token, &rec.AnalysisType, &rec.Outcome, &rec.Query, &rec.DurationMS, &rec.Error, &rec.AppliedAt); err != nil {
			return nil, err
		}
		rec.Token = uint64(token)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PruneSessions deletes sessions idle since before cutoff, along with their history.
func (s *Store) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM apply_history
		WHERE session_id IN (SELECT session_id FROM sessions WHERE updated_at < ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return n, nil
}
