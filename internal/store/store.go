// Package store persists sessions, the append-only phase audit trail,
// transmission records and airport reference data in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"readback/internal/airport"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrSessionLimit is returned when a user is at their active-session
	// ceiling.
	ErrSessionLimit = errors.New("active session limit reached")
)

// Store wraps the SQLite database. Safe for concurrent use; per-session
// write ordering is the caller's concern.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initialises the schema.
// An empty path opens an in-memory database.
func Open(path string) (*Store, error) {
	inMemory := path == ""
	if inMemory {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if inMemory {
		// Each pool connection would otherwise get its own private
		// in-memory database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// CreateSession inserts a new session, enforcing the per-user active
// session ceiling. The count check and the insert run inside one
// transaction so concurrent creations cannot race past the limit.
func (s *Store) CreateSession(ctx context.Context, sess *Session, maxActive int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if maxActive > 0 {
		var active int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND completed = 0`,
			sess.UserID).Scan(&active)
		if err != nil {
			return err
		}
		if active >= maxActive {
			return fmt.Errorf("%w: %d active", ErrSessionLimit, active)
		}
	}

	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, mode_id, current_phase, departure_icao,
		                      arrival_icao, active_icao, squawk, scratch, completed,
		                      created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.ModeID, sess.CurrentPhase, sess.DepartureICAO,
		sess.ArrivalICAO, sess.ActiveICAO, sess.Squawk, sess.Scratch, sess.Completed,
		sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Session loads a session by id.
func (s *Store) Session(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, mode_id, current_phase, departure_icao, arrival_icao,
		       active_icao, squawk, scratch, completed, created_at, updated_at
		FROM sessions WHERE id = ?`, id).Scan(
		&sess.ID, &sess.UserID, &sess.ModeID, &sess.CurrentPhase, &sess.DepartureICAO,
		&sess.ArrivalICAO, &sess.ActiveICAO, &sess.Squawk, &sess.Scratch, &sess.Completed,
		&sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// AdvancePhase commits a validated phase change: the session's phase (and,
// when activeICAO is non-empty, its airport context and completion flag)
// and the audit event are written in one transaction.
func (s *Store) AdvancePhase(ctx context.Context, sessionID string, event *PhaseEvent, activeICAO string, completed bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var res sql.Result
	if activeICAO != "" {
		res, err = tx.ExecContext(ctx, `
			UPDATE sessions SET current_phase = ?, active_icao = ?, completed = ?, updated_at = ?
			WHERE id = ?`,
			event.ToPhase, activeICAO, completed, now, sessionID)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE sessions SET current_phase = ?, completed = ?, updated_at = ?
			WHERE id = ?`,
			event.ToPhase, completed, now, sessionID)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}

	event.SessionID = sessionID
	event.CreatedAt = now
	_, err = tx.ExecContext(ctx, `
		INSERT INTO phase_events (id, session_id, from_phase, to_phase, scratch, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.SessionID, event.FromPhase, event.ToPhase, event.Scratch, event.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// LatestEvent returns the most recent phase event for a session.
func (s *Store) LatestEvent(ctx context.Context, sessionID string) (*PhaseEvent, error) {
	var ev PhaseEvent
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, from_phase, to_phase, scratch, created_at
		FROM phase_events WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, sessionID).Scan(
		&ev.ID, &ev.SessionID, &ev.FromPhase, &ev.ToPhase, &ev.Scratch, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no phase events for session %q: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Events returns a session's full audit trail, oldest first.
func (s *Store) Events(ctx context.Context, sessionID string) ([]*PhaseEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, from_phase, to_phase, scratch, created_at
		FROM phase_events WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*PhaseEvent
	for rows.Next() {
		var ev PhaseEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.FromPhase, &ev.ToPhase, &ev.Scratch, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// SetEventScratch updates the simulator scratch column of a phase event.
func (s *Store) SetEventScratch(ctx context.Context, eventID, scratch string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE phase_events SET scratch = ? WHERE id = ?`, scratch, eventID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("phase event %q: %w", eventID, ErrNotFound)
	}
	return nil
}

// SetSessionScratch updates the session-scoped simulator scratch.
func (s *Store) SetSessionScratch(ctx context.Context, sessionID, scratch string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET scratch = ?, updated_at = ? WHERE id = ?`,
		scratch, time.Now().UTC(), sessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	return nil
}

// AppendTransmission records one radio exchange line.
func (s *Store) AppendTransmission(ctx context.Context, tr *Transmission) error {
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transmissions (id, session_id, speaker, phase, trigger_type, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.SessionID, tr.Speaker, tr.Phase, tr.Trigger, tr.Message, tr.CreatedAt)
	return err
}

// RecentTransmissions returns the last n transmissions for a session,
// oldest first.
func (s *Store) RecentTransmissions(ctx context.Context, sessionID string, n int) ([]*Transmission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, speaker, phase, trigger_type, message, created_at FROM (
			SELECT id, session_id, speaker, phase, trigger_type, message, created_at, rowid
			FROM transmissions WHERE session_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, rowid ASC`, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Transmission
	for rows.Next() {
		var tr Transmission
		if err := rows.Scan(&tr.ID, &tr.SessionID, &tr.Speaker, &tr.Phase, &tr.Trigger, &tr.Message, &tr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &tr)
	}
	return out, rows.Err()
}

// UpsertAirport stores (or refreshes) an airport reference record.
func (s *Store) UpsertAirport(ctx context.Context, a *airport.Airport) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO airports (icao, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(icao) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		a.ICAO, string(data), time.Now().UTC())
	return err
}

// Airport loads an airport reference record by ICAO.
func (s *Store) Airport(ctx context.Context, icao string) (*airport.Airport, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM airports WHERE icao = ?`, icao).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("airport %q: %w", icao, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var a airport.Airport
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("airport %q: corrupt record: %w", icao, err)
	}
	return &a, nil
}

// SeedAirports upserts every airport in the index. Used at startup and by
// the CLI to refresh reference data.
func (s *Store) SeedAirports(ctx context.Context, idx *airport.Index) error {
	for _, icao := range idx.ICAOs() {
		a, _ := idx.Lookup(icao)
		if err := s.UpsertAirport(ctx, a); err != nil {
			return fmt.Errorf("seed %s: %w", icao, err)
		}
	}
	return nil
}
