package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/model"
)

var asOf = time.Date(2024, 3, 20, 10, 32, 0, 0, time.UTC)

func TestEngine_RunPlain(t *testing.T) {
	src := &waveSource{}
	e := NewEngine(DefaultRegistry(), src, nil)

	out, err := e.Run(context.Background(), Request{
		Symbol: "BABA", Interval: model.Interval1h, Strategy: "cci4", Limit: 50, AsOf: asOf, ClosedBars: true,
	})
	require.NoError(t, err)
	require.Len(t, src.queries, 1)
	assert.Len(t, out.Rows, 45)
	assert.Equal(t, "BABA", out.Symbol)
	last, _ := out.Last()
	assert.True(t, last.Time.Equal(time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)))
}

func TestEngine_UpLevelFetchesCoarseInterval(t *testing.T) {
	src := &waveSource{}
	e := NewEngine(DefaultRegistry(), src, nil)

	out, err := e.Run(context.Background(), Request{
		Symbol: "BABA", Interval: model.Interval1h, Strategy: "ema-9-21-mtf", Limit: 100, AsOf: asOf,
	})
	require.NoError(t, err)
	assert.Len(t, out.Rows, 100-21)

	require.Len(t, src.queries, 2)
	assert.Equal(t, model.Interval1h, src.queries[0].Interval)
	assert.Equal(t, 100, src.queries[0].Limit)
	assert.Equal(t, model.Interval4h, src.queries[1].Interval)
	assert.Equal(t, 25+51, src.queries[1].Limit)
}

func TestEngine_UpLevelStopsAtCoarsestInterval(t *testing.T) {
	reg, err := NewRegistry(EMATrendConfig{Name: "t", Short: 3, Medium: 6, Long: 12, Upper: "t"})
	require.NoError(t, err)
	src := &waveSource{}

	_, err = NewEngine(reg, src, nil).Run(context.Background(), Request{
		Symbol: "BABA", Interval: model.Interval1d, Strategy: "t", Limit: 20, AsOf: asOf,
	})
	require.NoError(t, err)
	require.Len(t, src.queries, 2, "1w has no coarser interval")
	assert.Equal(t, model.Interval1w, src.queries[1].Interval)
	assert.Equal(t, 3+13, src.queries[1].Limit)
}

func TestEngine_Errors(t *testing.T) {
	upstream := errors.New("boom")
	cases := []struct {
		name    string
		src     *waveSource
		req     Request
		wantErr error
		fetches int
	}{
		{"unknown strategy", &waveSource{}, Request{Symbol: "BABA", Interval: model.Interval1h, Strategy: "nope", Limit: 50}, model.ErrUnknownStrategy, 0},
		{"unknown interval", &waveSource{}, Request{Symbol: "BABA", Interval: "9m", Strategy: "cci4", Limit: 50}, model.ErrUnknownInterval, 0},
		{"limit below warm-up", &waveSource{}, Request{Symbol: "BABA", Interval: model.Interval1h, Strategy: "cci4", Limit: 5}, model.ErrInsufficientHistory, 0},
		{"short history", &waveSource{short: 45}, Request{Symbol: "BABA", Interval: model.Interval1h, Strategy: "cci4", Limit: 50}, model.ErrInsufficientHistory, 1},
		{"history error", &waveSource{fail: map[model.Interval]error{model.Interval1h: upstream}}, Request{Symbol: "BABA", Interval: model.Interval1h, Strategy: "cci4", Limit: 50}, upstream, 1},
		{"up-level history error", &waveSource{fail: map[model.Interval]error{model.Interval4h: upstream}}, Request{Symbol: "BABA", Interval: model.Interval1h, Strategy: "ema-9-21-mtf", Limit: 100}, upstream, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.AsOf = asOf
			_, err := NewEngine(DefaultRegistry(), tc.src, nil).Run(context.Background(), tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Len(t, tc.src.queries, tc.fetches)
		})
	}
}

func TestCoarseLimit(t *testing.T) {
	assert.Equal(t, 25+51, coarseLimit(100, 4, 51))
	assert.Equal(t, 26+51, coarseLimit(101, 4, 51))
	assert.Equal(t, 1+6, coarseLimit(3, 4, 6))
}
