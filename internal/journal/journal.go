package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"xpstore/internal/logger"
)

// Connection pool configuration
const (
	maxOpenConns    = 4
	maxIdleConns    = 2
	connMaxLifetime = time.Hour
	connMaxIdleTime = time.Minute * 15
	queryTimeout    = time.Second * 10
)

// TimeFormat is fixed-width so stored timestamps sort as text.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Outcome classifies how a submission ended.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeRejected   Outcome = "rejected"
	OutcomeTransport  Outcome = "transport"
	OutcomeValidation Outcome = "validation"
)

// Attempt is one purchase submission as seen by the storefront.
type Attempt struct {
	ID         string        `json:"id"`
	UserID     int64         `json:"user_id"`
	OfferingID int64         `json:"offering_id"`
	XP         int64         `json:"xp"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

const attemptsTableSchema = `
    CREATE TABLE IF NOT EXISTS purchase_attempts (
        id TEXT PRIMARY KEY,
        user_id INTEGER NOT NULL,
        offering_id INTEGER NOT NULL,
        xp INTEGER NOT NULL DEFAULT 0,
        outcome TEXT NOT NULL,
        error TEXT DEFAULT '',
        duration_ms INTEGER NOT NULL DEFAULT 0,
        created_at TEXT NOT NULL
    )`

const attemptsIndexSchema = `CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON purchase_attempts(created_at)`

// Journal is an append-only SQLite log of purchase attempts.
type Journal struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging journal database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			logger.LogWarn("Failed to execute %s: %v", pragma, err)
		}
	}

	for _, schema := range []string{attemptsTableSchema, attemptsIndexSchema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating purchase_attempts schema: %w", err)
		}
	}

	logger.LogInfo("Purchase journal opened at %s", path)
	return &Journal{db: db}, nil
}

// Close closes the underlying database. It is safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func (j *Journal) conn() (*sql.DB, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.db == nil {
		return nil, fmt.Errorf("journal is closed")
	}
	return j.db, nil
}

// Record stores a. Missing ID and CreatedAt are filled in.
func (j *Journal) Record(ctx context.Context, a Attempt) error {
	db, err := j.conn()
	if err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const stmt = `
		INSERT INTO purchase_attempts (id, user_id, offering_id, xp, outcome, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, stmt,
		a.ID, a.UserID, a.OfferingID, a.XP, string(a.Outcome), a.Error,
		a.Duration.Milliseconds(), a.CreatedAt.UTC().Format(TimeFormat))
	if err != nil {
		return fmt.Errorf("recording attempt %s: %w", a.ID, err)
	}
	return nil
}

// Recent returns up to limit attempts, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	db, err := j.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
		SELECT id, user_id, offering_id, xp, outcome, error, duration_ms, created_at
		FROM purchase_attempts
		ORDER BY created_at DESC
		LIMIT ?`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			a          Attempt
			outcome    string
			errText    sql.NullString
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.OfferingID, &a.XP, &outcome, &errText, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		a.Outcome = Outcome(outcome)
		a.Error = errText.String
		a.Duration = time.Duration(durationMS) * time.Millisecond
		if a.CreatedAt, err = time.Parse(TimeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at of %s: %w", a.ID, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Prune deletes at most limit attempts created before cutoff.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	db, err := j.conn()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const stmt = `
		DELETE FROM purchase_attempts
		WHERE id IN (
			SELECT id FROM purchase_attempts
			WHERE created_at < ?
			LIMIT ?
		)`
	result, err := db.ExecContext(ctx, stmt, cutoff.UTC().Format(TimeFormat), limit)
	if err != nil {
		return 0, fmt.Errorf("pruning attempts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
