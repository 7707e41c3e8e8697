// Package history provides the append-only audit store: skip decisions
// and delivery outcomes, kept in SQLite for a bounded lookback window and
// read by the external monitoring layer.
package history

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// SkipRecord is one classifier/dedup skip decision.
type SkipRecord struct {
	ArticleID string
	SourceID  string
	Reason    string
	At        time.Time
}

// DeliveryRecord is one delivery attempt outcome.
type DeliveryRecord struct {
	Message string
	Channel string
	OK      bool
	Error   string
	At      time.Time
}

// Open creates a Store at the given database path, creating tables as
// needed. Uses WAL mode for file-based databases.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS skips (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_skips_at ON skips(at DESC);
	CREATE INDEX IF NOT EXISTS idx_skips_reason ON skips(reason);

	CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message TEXT NOT NULL,
		channel TEXT NOT NULL,
		ok INTEGER NOT NULL,
		error TEXT,
		at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_at ON deliveries(at DESC);
	CREATE INDEX IF NOT EXISTS idx_deliveries_channel ON deliveries(channel);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// RecordSkip appends one skip decision.
func (s *Store) RecordSkip(rec SkipRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO skips (article_id, source_id, reason, at) VALUES (?, ?, ?, ?)`,
		rec.ArticleID, rec.SourceID, rec.Reason, rec.At,
	)
	if err != nil {
		return fmt.Errorf("record skip: %w", err)
	}
	return nil
}

// RecordDelivery appends one delivery outcome.
func (s *Store) RecordDelivery(rec DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := 0
	if rec.OK {
		ok = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO deliveries (message, channel, ok, error, at) VALUES (?, ?, ?, ?, ?)`,
		rec.Message, rec.Channel, ok, rec.Error, rec.At,
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// RecentSkips returns up to limit skip records newest first.
func (s *Store) RecentSkips(limit int) ([]SkipRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT article_id, source_id, reason, at FROM skips ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query skips: %w", err)
	}
	defer rows.Close()

	var out []SkipRecord
	for rows.Next() {
		var rec SkipRecord
		if err := rows.Scan(&rec.ArticleID, &rec.SourceID, &rec.Reason, &rec.At); err != nil {
			return nil, fmt.Errorf("scan skip: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentDeliveries returns up to limit delivery records newest first.
func (s *Store) RecentDeliveries(limit int) ([]DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT message, channel, ok, error, at FROM deliveries ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var rec DeliveryRecord
		var ok int
		var errStr sql.NullString
		if err := rows.Scan(&rec.Message, &rec.Channel, &ok, &errStr, &rec.At); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		rec.OK = ok == 1
		rec.Error = errStr.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes records older than the retention horizon. Returns rows
// removed across both tables.
func (s *Store) Prune(now time.Time, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-retention)
	var total int64
	for _, table := range []string{"skips", "deliveries"} {
		res, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE at < ?", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
