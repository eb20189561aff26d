package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/cache"
	"signal-engine/internal/model"
	"signal-engine/internal/timewindow"
)

// fakeFetcher serves hourly bars up to a fixed last timestamp.
type fakeFetcher struct {
	mu        sync.Mutex
	last      time.Time
	err       error
	barCalls  int
	symCalls  int
	lastEnd   time.Time
	lastLimit int
	extra     int // rows past end to include, to check filtering
}

func (f *fakeFetcher) FetchBars(_ context.Context, _ string, iv model.Interval, limit int, end time.Time) ([]model.RawBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.barCalls++
	f.lastEnd, f.lastLimit = end, limit
	if f.err != nil {
		return nil, f.err
	}
	stop := end
	if f.last.Before(stop) {
		stop = f.last
	}
	var rows []model.RawBar
	first := stop.Add(-time.Duration(limit-1) * iv.Duration())
	for i := 0; i < limit+f.extra; i++ {
		ts := first.Add(time.Duration(i) * iv.Duration())
		p := 100 + float64(i)
		rows = append(rows, model.RawBar{float64(ts.UnixMilli()), p, p + 1, p - 1, p + 0.5, 10})
	}
	return rows, nil
}

func (f *fakeFetcher) FetchSymbols(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symCalls++
	if f.err != nil {
		return nil, f.err
	}
	return []string{"BTCUSDT", "ETHUSDT"}, nil
}

func TestBars_ClosedBarsEndTimestamp(t *testing.T) {
	f := &fakeFetcher{last: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := NewProvider(cache.New(), f)

	asOf := time.Date(2024, 3, 6, 10, 32, 0, 0, time.UTC)
	s, err := p.Bars(context.Background(), model.BarsQuery{
		Symbol: "BABA", Interval: model.Interval1h, Limit: 5, AsOf: asOf, ClosedBars: true,
	})
	require.NoError(t, err)

	want := time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)
	assert.True(t, f.lastEnd.Equal(want), "fetch end %s", f.lastEnd)
	assert.Equal(t, 5, f.lastLimit)
	assert.True(t, s.End().Equal(want), "series end %s", s.End())
	assert.Equal(t, 5, s.Len())
}

func TestBars_SecondCallIsCacheHit(t *testing.T) {
	f := &fakeFetcher{last: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := NewProvider(cache.New(), f)
	q := model.BarsQuery{Symbol: "BABA", Interval: model.Interval1h, Limit: 20,
		AsOf: time.Date(2024, 3, 6, 10, 32, 0, 0, time.UTC)}

	first, err := p.Bars(context.Background(), q)
	require.NoError(t, err)
	second, err := p.Bars(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.barCalls)

	// a smaller, earlier window inside the cached span is also served from cache
	q.Limit = 10
	q.ClosedBars = true
	third, err := p.Bars(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, f.barCalls)
	assert.Equal(t, 10, third.Len())
}

func TestBars_DropsRowsAfterEnd(t *testing.T) {
	f := &fakeFetcher{last: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), extra: 3}
	p := NewProvider(cache.New(), f)
	asOf := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

	s, err := p.Bars(context.Background(), model.BarsQuery{Symbol: "BABA", Interval: model.Interval1h, Limit: 4, AsOf: asOf})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())
	assert.True(t, s.End().Equal(asOf))
}

func TestBars_FailureIsNotCached(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection reset")}
	buf := cache.New()
	p := NewProvider(buf, f)
	q := model.BarsQuery{Symbol: "BABA", Interval: model.Interval1h, Limit: 5, AsOf: time.Now()}

	_, err := p.Bars(context.Background(), q)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUpstreamFetch)
	assert.Equal(t, 0, buf.Sizes().Bars)

	f.err = nil
	f.last = time.Now().Add(time.Hour)
	_, err = p.Bars(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, f.barCalls)
}

func TestBars_Validation(t *testing.T) {
	f := &fakeFetcher{}
	p := NewProvider(cache.New(), f)

	_, err := p.Bars(context.Background(), model.BarsQuery{Symbol: "BABA", Interval: "7m", Limit: 5})
	assert.ErrorIs(t, err, model.ErrUnknownInterval)

	_, err = p.Bars(context.Background(), model.BarsQuery{Symbol: "BABA", Interval: model.Interval1h})
	assert.Error(t, err)
	assert.Zero(t, f.barCalls)
}

func TestSymbols_Memoized(t *testing.T) {
	f := &fakeFetcher{}
	buf := cache.New()
	p := NewProvider(buf, f)

	for i := 0; i < 3; i++ {
		syms, err := p.Symbols(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, syms)
	}
	assert.Equal(t, 1, f.symCalls)

	buf.InvalidateSymbols(DefaultSource)
	_, err := p.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.symCalls)
}

func TestSchedule(t *testing.T) {
	u := model.Universe{
		"BABA":    {Symbol: "BABA", Hours: "Mon-Fri 14:30-21:00"},
		"BTCUSDT": {Symbol: "BTCUSDT"},
		"BAD":     {Symbol: "BAD", Hours: "Someday 09:00-10:00"},
	}
	buf := cache.New()
	p := NewProvider(buf, &fakeFetcher{}, WithUniverse(u))

	s, err := p.Schedule("BABA")
	require.NoError(t, err)
	assert.Equal(t, "Mon-Fri 14:30-21:00", s.String())
	cached, ok := buf.Window("BABA")
	require.True(t, ok)
	assert.Same(t, s, cached)

	s, err = p.Schedule("BTCUSDT")
	require.NoError(t, err)
	assert.Same(t, timewindow.AlwaysOpen, s)

	_, err = p.Schedule("NOPE")
	assert.ErrorIs(t, err, model.ErrUnknownSymbol)

	_, err = p.Schedule("BAD")
	assert.Error(t, err)
}
