package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"signal-engine/internal/backtest"
	"signal-engine/internal/model"
)

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Symbol   string
	Interval model.Interval
	Strategy string
	Limit    int // default 100
}

// Get loads one result. ok is false when id is unknown.
func (s *Store) Get(ctx context.Context, id string) (backtest.Result, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM simulation_results WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return backtest.Result{}, false, nil
	}
	if err != nil {
		return backtest.Result{}, false, fmt.Errorf("sqlite read result %s: %w", id, err)
	}
	var res backtest.Result
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return backtest.Result{}, false, fmt.Errorf("unmarshal result %s: %w", id, err)
	}
	return res, true, nil
}

// List returns matching results, most profitable first.
func (s *Store) List(ctx context.Context, f Filter) ([]backtest.Result, error) {
	var (
		where []string
		args  []any
	)
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Interval != "" {
		where = append(where, "interval = ?")
		args = append(args, f.Interval.Code())
	}
	if f.Strategy != "" {
		where = append(where, "strategy = ?")
		args = append(args, f.Strategy)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT data FROM simulation_results`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY profit DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query results: %w", err)
	}
	defer rows.Close()

	var out []backtest.Result
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan result: %w", err)
		}
		var res backtest.Result
		if err := json.Unmarshal([]byte(data), &res); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
