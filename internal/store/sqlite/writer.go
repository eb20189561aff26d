// Package sqlite persists simulation results as JSON documents in a local
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signal-engine/internal/backtest"
	"signal-engine/internal/logger"
)

// Store is the document store for backtest.Result. It implements
// backtest.ResultStore.
type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

var _ backtest.ResultStore = (*Store)(nil)

// Open opens (creating if needed) the database at path with WAL mode and
// applies the schema.
func Open(path string, l *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	s := &Store{db: db, log: logger.Component(l, "sqlite"), now: time.Now}
	s.log.Info("opened database", slog.String("path", path))
	return s, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS simulation_results (
			id         TEXT    PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			strategy   TEXT    NOT NULL,
			positions  INTEGER NOT NULL,
			profit     REAL    NOT NULL,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_results_triple
			ON simulation_results (symbol, interval, strategy);
	`)
	return err
}

// SaveResult inserts res, replacing any earlier result with the same ID.
func (s *Store) SaveResult(ctx context.Context, res backtest.Result) error {
	if res.ID == "" {
		return fmt.Errorf("sqlite save: result has no id")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO simulation_results (id, symbol, interval, strategy, positions, profit, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, res.ID, res.Symbol, res.Interval.Code(), res.Strategy, len(res.Positions), res.Profit, string(data), s.now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite insert result %s: %w", res.ID, err)
	}
	s.log.Debug("saved result", append(logger.LogWithTrace(ctx), slog.String("id", res.ID))...)
	return nil
}

// Delete removes a result. Deleting a missing ID is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM simulation_results WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite delete result %s: %w", id, err)
	}
	return nil
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
