package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"marketsched/internal/domain"
)

// RefreshEvent is one recorded refresh attempt: which snapshot was fetched,
// why, and how it ended.
type RefreshEvent struct {
	ID          int64
	MarketID    string
	Kind        domain.DataKind
	Reason      string
	StartedAt   time.Time
	FinishedAt  time.Time
	OK          bool
	RecordCount int
	Sources     []string
	Err         string
}

// Journal records refresh attempts in a SQLite database so operators can see
// when authoritative data was last pulled and whether it worked. A nil
// *Journal is valid and drops every write.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenJournal opens (or creates) the journal database at dbPath and runs
// migrations.
func OpenJournal(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so status reads do not block refresh writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS refresh_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			market_id    TEXT NOT NULL,
			kind         TEXT NOT NULL,
			reason       TEXT NOT NULL,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER NOT NULL,
			ok           INTEGER NOT NULL,
			record_count INTEGER NOT NULL,
			sources      TEXT NOT NULL DEFAULT '',
			error        TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_market ON refresh_events(market_id, id)`,
	}

	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Record appends one refresh event. Recording on a nil journal is a no-op so
// callers never have to guard the optional dependency.
func (j *Journal) Record(ev RefreshEvent) error {
	if j == nil || j.db == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	ok := 0
	if ev.OK {
		ok = 1
	}
	_, err := j.db.Exec(`INSERT INTO refresh_events
		(market_id, kind, reason, started_at, finished_at, ok, record_count, sources, error)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		ev.MarketID, string(ev.Kind), ev.Reason,
		ev.StartedAt.Unix(), ev.FinishedAt.Unix(), ok,
		ev.RecordCount, strings.Join(ev.Sources, ", "), ev.Err,
	)
	return err
}

// Recent returns the most recent refresh events for a market, newest first,
// up to limit. An empty marketID returns events for every market.
func (j *Journal) Recent(marketID string, limit int) ([]RefreshEvent, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, market_id, kind, reason, started_at, finished_at, ok, record_count, sources, error
		FROM refresh_events`
	args := []any{}
	if marketID != "" {
		query += ` WHERE market_id = ?`
		args = append(args, marketID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RefreshEvent
	for rows.Next() {
		var (
			ev                RefreshEvent
			kind              string
			started, finished int64
			ok                int
			sources           string
		)
		if err := rows.Scan(&ev.ID, &ev.MarketID, &kind, &ev.Reason, &started, &finished, &ok, &ev.RecordCount, &sources, &ev.Err); err != nil {
			return nil, err
		}
		ev.Kind = domain.DataKind(kind)
		ev.StartedAt = time.Unix(started, 0)
		ev.FinishedAt = time.Unix(finished, 0)
		ev.OK = ok != 0
		if sources != "" {
			ev.Sources = strings.Split(sources, ", ")
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
