// Package store persists finished sessions when a session opted in to
// durable saving. PostgreSQL and SQLite are both supported; the DSN scheme
// picks the driver.
package store

import (
	"crypto/rand"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers "sqlite" driver

	"github.com/jaekop/ContextLens/internal/analytics"
	"github.com/jaekop/ContextLens/internal/event"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxSessions = 100

// Record is one persisted session.
type Record struct {
	RecordID        string              `json:"record_id"`
	SessionID       string              `json:"session_id"`
	UserID          string              `json:"user_id,omitempty"`
	Language        string              `json:"language,omitempty"`
	StartedAt       time.Time           `json:"started_at"`
	EndedAt         time.Time           `json:"ended_at"`
	DurationSeconds float64             `json:"duration_seconds"`
	Transcript      string              `json:"transcript,omitempty"`
	Debrief         event.Debrief       `json:"debrief,omitempty"`
	Overlays        []event.Overlay     `json:"overlays,omitempty"`
	Analytics       analytics.Aggregate `json:"analytics,omitempty"`
}

// Store persists session records.
type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects to the database named by dsn and applies pending migrations.
// postgres:// and postgresql:// DSNs use the pgx driver; anything else is
// treated as a SQLite path.
func Open(dsn string) (*Store, error) {
	driver, dialect := driverFor(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if dialect == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	if err = migrate(db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

func driverFor(dsn string) (driver, dialect string) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx", "postgres"
	}
	return "sqlite", "sqlite3"
}

func migrate(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrationFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession inserts one finished session and prunes records beyond the
// retention cap, oldest first. A record id is generated when the caller left
// it empty.
func (s *Store) SaveSession(rec Record) error {
	if rec.RecordID == "" {
		id, err := generateULID()
		if err != nil {
			return fmt.Errorf("store id: %w", err)
		}
		rec.RecordID = id
	}

	debrief, err := json.Marshal(rec.Debrief)
	if err != nil {
		return fmt.Errorf("store marshal debrief: %w", err)
	}
	overlays, err := json.Marshal(rec.Overlays)
	if err != nil {
		return fmt.Errorf("store marshal overlays: %w", err)
	}
	agg, err := json.Marshal(rec.Analytics)
	if err != nil {
		return fmt.Errorf("store marshal analytics: %w", err)
	}

	_, err = s.db.Exec(s.rebind(
		`INSERT INTO sessions (record_id, session_id, user_id, language, started_at, ended_at, duration_seconds, transcript, debrief, overlays, analytics)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`),
		rec.RecordID, rec.SessionID, rec.UserID, rec.Language,
		rec.StartedAt.UTC(), rec.EndedAt.UTC(), rec.DurationSeconds,
		rec.Transcript, string(debrief), string(overlays), string(agg),
	)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(s.rebind(
		`DELETE FROM sessions WHERE record_id NOT IN (SELECT record_id FROM sessions ORDER BY started_at DESC LIMIT $1)`),
		maxSessions,
	)
	return err
}

// ListSessions returns records newest first, without the JSON payloads.
func (s *Store) ListSessions(limit, offset int) ([]Record, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(s.rebind(`
		SELECT record_id, session_id, user_id, language, started_at, ended_at, duration_seconds
		FROM sessions
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err = rows.Scan(&rec.RecordID, &rec.SessionID, &rec.UserID, &rec.Language,
			&rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds); err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// GetSession returns one full record by its record id.
func (s *Store) GetSession(recordID string) (*Record, error) {
	var rec Record
	var debrief, overlays, agg string
	err := s.db.QueryRow(s.rebind(
		`SELECT record_id, session_id, user_id, language, started_at, ended_at, duration_seconds, transcript, debrief, overlays, analytics
		 FROM sessions WHERE record_id = $1`),
		recordID,
	).Scan(&rec.RecordID, &rec.SessionID, &rec.UserID, &rec.Language,
		&rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds, &rec.Transcript,
		&debrief, &overlays, &agg)
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal([]byte(debrief), &rec.Debrief); err != nil {
		return nil, fmt.Errorf("store decode debrief: %w", err)
	}
	if err = json.Unmarshal([]byte(overlays), &rec.Overlays); err != nil {
		return nil, fmt.Errorf("store decode overlays: %w", err)
	}
	if err = json.Unmarshal([]byte(agg), &rec.Analytics); err != nil {
		return nil, fmt.Errorf("store decode analytics: %w", err)
	}
	return &rec, nil
}

// rebind adapts the $N placeholders to SQLite's ?N form.
func (s *Store) rebind(query string) string {
	if s.dialect == "postgres" {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}

func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
