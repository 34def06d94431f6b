package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/callcoach/internal/conversation"
	"github.com/kalambet/callcoach/internal/feedback"
)

// Store wraps a SQLite database holding call exchanges and feedback.
// It satisfies conversation.Store and feedback.Persister.
type Store struct {
	db *sql.DB
}

var (
	_ conversation.Store  = (*Store)(nil)
	_ conversation.Lookup = (*Store)(nil)
	_ feedback.Persister  = (*Store)(nil)
)

const dbFile = "callcoach.db"

// Connection settings applied before migrations. The store runs on a single
// connection, so the busy timeout only matters for other processes.
var pragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
}

// Open opens or creates <dataDir>/callcoach.db and brings its schema up to
// date. ":memory:" opens a private in-memory database.
func Open(dataDir string) (*Store, error) {
	dsn := dataDir
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, dbFile)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Exchanges ---

// Append stores ex for sessionID. The stored timestamp is raised to the
// session's latest one if ex is older, keeping the sequence non-decreasing.
func (s *Store) Append(ctx context.Context, sessionID string, ex conversation.Exchange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (session_id, created_at, transcript, response, response_id)
		VALUES (?, MAX(?, COALESCE((SELECT MAX(created_at) FROM exchanges WHERE session_id = ?), 0)), ?, ?, ?)`,
		sessionID, ex.Timestamp.UnixNano(), sessionID, ex.Transcript, ex.Response, ex.ResponseID,
	)
	if err != nil {
		return fmt.Errorf("inserting exchange: %w", err)
	}
	return nil
}

// History returns the last limit exchanges of sessionID in insertion order.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]conversation.Exchange, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at, transcript, response, response_id FROM (
			SELECT id, created_at, transcript, response, response_id
			FROM exchanges WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []conversation.Exchange
	for rows.Next() {
		var ex conversation.Exchange
		var createdAt int64
		if err := rows.Scan(&createdAt, &ex.Transcript, &ex.Response, &ex.ResponseID); err != nil {
			return nil, err
		}
		ex.Timestamp = time.Unix(0, createdAt).UTC()
		out = append(out, ex)
	}
	return out, rows.Err()
}

// ExchangeByResponseID looks up the exchange that produced a suggestion.
func (s *Store) ExchangeByResponseID(ctx context.Context, responseID string) (string, conversation.Exchange, error) {
	var sessionID string
	var ex conversation.Exchange
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, created_at, transcript, response, response_id
		FROM exchanges WHERE response_id = ? AND response_id != ''`, responseID,
	).Scan(&sessionID, &createdAt, &ex.Transcript, &ex.Response, &ex.ResponseID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", conversation.Exchange{}, conversation.ErrUnknownResponse
	}
	if err != nil {
		return "", conversation.Exchange{}, err
	}
	ex.Timestamp = time.Unix(0, createdAt).UTC()
	return sessionID, ex, nil
}

// --- Feedback ---

func (s *Store) SaveFeedback(ctx context.Context, rec feedback.Record) error {
	helpful := 0
	if rec.Helpful {
		helpful = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (session_id, response_id, is_helpful, created_at)
		VALUES (?, ?, ?, ?)`,
		rec.SessionID, rec.ResponseID, helpful, rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

// ListFeedback returns up to limit records, most recent last.
func (s *Store) ListFeedback(ctx context.Context, limit int) ([]feedback.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, response_id, is_helpful, created_at FROM (
			SELECT id, session_id, response_id, is_helpful, created_at
			FROM feedback ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var out []feedback.Record
	for rows.Next() {
		var rec feedback.Record
		var helpful int
		var createdAt int64
		if err := rows.Scan(&rec.SessionID, &rec.ResponseID, &helpful, &createdAt); err != nil {
			return nil, err
		}
		rec.Helpful = helpful != 0
		rec.Timestamp = time.Unix(0, createdAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FeedbackSummary aggregates every stored feedback record.
func (s *Store) FeedbackSummary(ctx context.Context) (feedback.Summary, error) {
	var sum feedback.Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_helpful), 0) FROM feedback`,
	).Scan(&sum.Total, &sum.Helpful)
	if err != nil {
		return feedback.Summary{}, fmt.Errorf("summarising feedback: %w", err)
	}
	sum.NotHelpful = sum.Total - sum.Helpful
	return sum, nil
}

// --- Retention ---

// PurgeBefore deletes exchanges and feedback created before cutoff and
// returns the number of rows removed.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning purge transaction: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, table := range []string{"exchanges", "feedback"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff.UnixNano())
		if err != nil {
			return 0, fmt.Errorf("purging %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing purge: %w", err)
	}
	return total, nil
}
