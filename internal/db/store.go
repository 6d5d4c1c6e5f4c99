package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		sessionId TEXT NOT NULL,
		role TEXT NOT NULL,
		endpoint TEXT NOT NULL DEFAULT '',
		startedAt REAL NOT NULL,
		endedAt REAL,
		endReason TEXT,
		utteranceCount INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS sessions_startedAt ON sessions(startedAt);
`

// Store provides access to the whatsword history database.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "whatsword", "history.sqlite")
}

// Open opens or creates the database with WAL and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	return open(dsn)
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginSession records the start of a conversation lifetime and returns its
// row id.
func (s *Store) BeginSession(sessionID, role, endpoint string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, sessionId, role, endpoint, startedAt)
		VALUES (?, ?, ?, ?, ?)
	`, id, sessionID, role, endpoint, unixFromTime(startedAt))
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// EndSession closes a lifetime started with BeginSession. Ending it twice
// keeps the first outcome.
func (s *Store) EndSession(id, reason string, utterances int, endedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE sessions
		SET endedAt = ?, endReason = ?, utteranceCount = ?
		WHERE id = ? AND endedAt IS NULL
	`, unixFromTime(endedAt), reason, utterances, id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// ErrNotFound is returned when ending a lifetime that does not exist or has
// already ended.
var ErrNotFound = errors.New("no open session")

// RecentSessions returns up to limit lifetimes, newest first.
func (s *Store) RecentSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, sessionId, role, endpoint, startedAt, endedAt, endReason, utteranceCount
		FROM sessions
		ORDER BY startedAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// LatestSession returns the most recent lifetime, or nil if there is none.
func (s *Store) LatestSession() (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, sessionId, role, endpoint, startedAt, endedAt, endReason, utteranceCount
		FROM sessions
		ORDER BY startedAt DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var startedAt float64
	var endedAt sql.NullFloat64
	var reason sql.NullString

	if err := row.Scan(&sess.ID, &sess.SessionID, &sess.Role, &sess.Endpoint,
		&startedAt, &endedAt, &reason, &sess.UtteranceCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	sess.StartedAt = timeFromUnix(startedAt)
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Float64)
		sess.EndedAt = &t
	}
	if reason.Valid {
		sess.EndReason = reason.String
	}
	return sess, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
