// Package journal keeps a local sqlite history of received cheers.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cheerrun/cheercast/internal/events"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Entry is one recorded event.
type Entry struct {
	ID         string
	Type       events.Type
	Content    string
	Topic      string
	SessionID  string
	ReceivedAt time.Time
}

// Journal is an append-only event history.
type Journal struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY from the broker callback.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	return &Journal{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

// newID returns an id that sorts after every earlier one from the same
// millisecond, so arrival order survives ties.
func (j *Journal) newID(t time.Time) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), j.entropy).String()
}

// Record stores ev, tagged with sessionID when one is known.
func (j *Journal) Record(ctx context.Context, ev events.IncomingEvent, sessionID string) (Entry, error) {
	received := ev.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	entry := Entry{
		ID:         j.newID(received),
		Type:       ev.Type,
		Content:    ev.Content(),
		Topic:      ev.Topic,
		SessionID:  sessionID,
		ReceivedAt: received.UTC(),
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, type, content, topic, session_id, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Type), entry.Content, entry.Topic, nullable(entry.SessionID),
		entry.ReceivedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("record event: %w", err)
	}
	return entry, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, type, content, topic, session_id, received_at FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return scanEntries(rows)
}

// BySession returns the entries recorded for sessionID, oldest first.
func (j *Journal) BySession(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, type, content, topic, session_id, received_at FROM events WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session events: %w", err)
	}
	return scanEntries(rows)
}

// Count returns the number of recorded entries.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			typ      string
			session  sql.NullString
			received string
		)
		if err := rows.Scan(&e.ID, &typ, &e.Content, &e.Topic, &session, &received); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = events.Type(typ)
		e.SessionID = session.String
		t, err := time.Parse(time.RFC3339Nano, received)
		if err != nil {
			return nil, fmt.Errorf("scan event %s: received_at: %w", e.ID, err)
		}
		e.ReceivedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
