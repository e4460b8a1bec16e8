package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"flowdash/internal/stream"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ FlowStore = (*SQLiteStore)(nil)
var _ GammaStore = (*SQLiteStore)(nil)

// SQLiteStore implements FlowStore and GammaStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs
// migrations, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS flow_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL,
	option_type TEXT NOT NULL,
	strike      REAL NOT NULL,
	expiry      TEXT NOT NULL,
	side        TEXT NOT NULL,
	price       REAL NOT NULL,
	size        INTEGER NOT NULL,
	premium     REAL NOT NULL,
	ts          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flow_events_ts ON flow_events(ts);

CREATE TABLE IF NOT EXISTS gamma_snapshots (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	spot   REAL NOT NULL,
	levels TEXT NOT NULL,
	ts     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gamma_symbol_ts ON gamma_snapshots(symbol, ts);
`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// FlowStore implementation
// ---------------------------------------------------------------------------

// WriteFlowEvents inserts a batch of flow events in one transaction.
func (s *SQLiteStore) WriteFlowEvents(ctx context.Context, events []stream.FlowEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO flow_events (symbol, option_type, strike, expiry, side, price, size, premium, ts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.Symbol, ev.OptionType, ev.Strike,
			ev.Expiry, ev.Side, ev.Price, ev.Size, ev.Premium, ev.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentFlowEvents returns the newest flow events up to limit.
func (s *SQLiteStore) RecentFlowEvents(ctx context.Context, limit int) ([]stream.FlowEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, option_type, strike, expiry, side, price, size, premium, ts
FROM flow_events ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFlowEvents(rows)
}

// FlowEventsSince returns flow events with ts >= since, oldest first.
func (s *SQLiteStore) FlowEventsSince(ctx context.Context, since time.Time) ([]stream.FlowEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, option_type, strike, expiry, side, price, size, premium, ts
FROM flow_events WHERE ts >= ? ORDER BY ts ASC, id ASC`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFlowEvents(rows)
}

func scanFlowEvents(rows *sql.Rows) ([]stream.FlowEvent, error) {
	var events []stream.FlowEvent
	for rows.Next() {
		var ev stream.FlowEvent
		if err := rows.Scan(&ev.Symbol, &ev.OptionType, &ev.Strike, &ev.Expiry,
			&ev.Side, &ev.Price, &ev.Size, &ev.Premium, &ev.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ---------------------------------------------------------------------------
// GammaStore implementation
// ---------------------------------------------------------------------------

// WriteGammaSnapshot inserts one gamma surface snapshot. Levels are
// stored as a JSON column; the dashboard always reads whole surfaces.
func (s *SQLiteStore) WriteGammaSnapshot(ctx context.Context, snap stream.GammaSnapshot) error {
	levels, err := json.Marshal(snap.Levels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO gamma_snapshots (symbol, spot, levels, ts) VALUES (?, ?, ?, ?)`,
		snap.Symbol, snap.Spot, string(levels), snap.Timestamp)
	return err
}

// LatestGammaSnapshot returns the newest snapshot for symbol, or nil.
func (s *SQLiteStore) LatestGammaSnapshot(ctx context.Context, symbol string) (*stream.GammaSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT symbol, spot, levels, ts FROM gamma_snapshots
WHERE symbol = ? ORDER BY ts DESC, id DESC LIMIT 1`, symbol)

	var snap stream.GammaSnapshot
	var levels string
	err := row.Scan(&snap.Symbol, &snap.Spot, &levels, &snap.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(levels), &snap.Levels); err != nil {
		return nil, fmt.Errorf("decoding levels for %s: %w", symbol, err)
	}
	return &snap, nil
}
