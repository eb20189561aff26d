package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/backtest"
	"signal-engine/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func result(id, symbol, strategy string, profit float64) backtest.Result {
	open := time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC)
	return backtest.Result{
		ID: id, Symbol: symbol, Interval: model.Interval1h, Strategy: strategy,
		Options:        backtest.Options{Balance: 1000, Limit: 500, FeeRate: 0.001},
		Start:          open,
		End:            open.Add(40 * time.Hour),
		Bars:           41,
		InitialBalance: 1000,
		FinalBalance:   1000 + profit,
		Profit:         profit,
		Positions: []backtest.Position{{
			Direction: backtest.Long, Status: backtest.StatusClosed,
			OpenTime: open, OpenPrice: 100, Quantity: 10,
			CloseTime: open.Add(3 * time.Hour), ClosePrice: 100 + profit/10, Reason: backtest.ReasonSignal,
			MaxPrice: 110, MinPrice: 98, Balance: 1000, Profit: profit,
		}},
		Summary: backtest.Summary{
			Total:       backtest.Stats{Count: 1, Net: profit},
			ByDirection: map[string]backtest.Stats{"long": {Count: 1, Net: profit}},
			ByReason:    map[string]backtest.Stats{"signal": {Count: 1, Net: profit}},
		},
	}
}

func TestStore_SaveGet(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	want := result("a", "BABA", "cci4", 42)
	require.NoError(t, s.SaveResult(ctx, want))

	got, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BABA", got.Symbol)
	assert.Equal(t, model.Interval1h, got.Interval)
	assert.Equal(t, 41, got.Bars)
	assert.InDelta(t, 1042.0, got.FinalBalance, 1e-9)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, backtest.Long, got.Positions[0].Direction)
	assert.Equal(t, backtest.ReasonSignal, got.Positions[0].Reason)
	assert.True(t, got.Positions[0].CloseTime.Equal(want.Positions[0].CloseTime))
	assert.Equal(t, 1, got.Summary.ByReason["signal"].Count)
	assert.Nil(t, got.Open)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SaveReplacesByID(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResult(ctx, result("a", "BABA", "cci4", 42)))
	require.NoError(t, s.SaveResult(ctx, result("a", "BABA", "cci4", -7)))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.InDelta(t, -7.0, all[0].Profit, 1e-9)
}

func TestStore_RejectsMissingID(t *testing.T) {
	s := openTemp(t)
	assert.Error(t, s.SaveResult(context.Background(), result("", "BABA", "cci4", 1)))
}

func TestStore_ListFilterAndOrder(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	for _, r := range []backtest.Result{
		result("a", "BABA", "cci4", 10),
		result("b", "BABA", "ema-cross", 30),
		result("c", "TSLA", "cci4", 20),
	} {
		require.NoError(t, s.SaveResult(ctx, r))
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)

	baba, err := s.List(ctx, Filter{Symbol: "BABA", Strategy: "cci4"})
	require.NoError(t, err)
	require.Len(t, baba, 1)
	assert.Equal(t, "a", baba[0].ID)

	top, err := s.List(ctx, Filter{Interval: model.Interval1h, Limit: 1})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "b", top[0].ID)

	none, err := s.List(ctx, Filter{Interval: model.Interval1d})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_Delete(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.SaveResult(ctx, result("a", "BABA", "cci4", 1)))
	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveResult(context.Background(), result("a", "BABA", "cci4", 5)))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	_, ok, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok)
}
