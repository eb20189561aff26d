// Package marketdata serves bar history, symbol listings and trading-hours
// schedules through the shared cache, falling back to the exchange client.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"signal-engine/internal/cache"
	"signal-engine/internal/logger"
	"signal-engine/internal/model"
	"signal-engine/internal/timewindow"
)

// DefaultSource names the exchange listing in the symbol store.
const DefaultSource = "exchange"

// Provider is the HistoryProvider. It is safe for concurrent use.
type Provider struct {
	buf      *cache.Buffer
	fetcher  model.BarFetcher
	universe model.Universe
	source   string
	log      *slog.Logger

	group singleflight.Group
}

var _ model.BarSource = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithUniverse sets the instruments whose trading hours Schedule resolves.
func WithUniverse(u model.Universe) Option {
	return func(p *Provider) { p.universe = u }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = logger.Component(l, "history") }
}

// WithSource names the symbol listing key (default "exchange").
func WithSource(name string) Option {
	return func(p *Provider) { p.source = name }
}

// NewProvider creates a Provider over buf and fetcher.
func NewProvider(buf *cache.Buffer, fetcher model.BarFetcher, opts ...Option) *Provider {
	p := &Provider{
		buf:     buf,
		fetcher: fetcher,
		source:  DefaultSource,
		log:     logger.Component(nil, "history"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Bars returns q.Limit bars ending at q.End(). A valid cache entry is served
// trimmed; otherwise exactly q.Limit bars are fetched, cached under
// (symbol, interval) and returned. Fetch failures are not cached.
func (p *Provider) Bars(ctx context.Context, q model.BarsQuery) (model.BarSeries, error) {
	if !q.Interval.Valid() {
		return model.BarSeries{}, fmt.Errorf("%w: %q", model.ErrUnknownInterval, q.Interval)
	}
	if q.Limit <= 0 {
		return model.BarSeries{}, fmt.Errorf("bars %s %s: limit must be positive, got %d", q.Symbol, q.Interval, q.Limit)
	}

	end := q.End()
	key := cache.BarsKey{Symbol: q.Symbol, Interval: q.Interval}

	view, ok, err := p.buf.Bars(key, q.Limit, end)
	switch {
	case err != nil && errors.Is(err, model.ErrStaleCacheRead):
		p.log.Warn("dropped stale cache entry", slog.String("key", key.String()), slog.String("error", err.Error()))
	case err != nil:
		return model.BarSeries{}, err
	case ok:
		return view, nil
	}

	flight := key.String() + ":" + strconv.Itoa(q.Limit) + ":" + strconv.FormatInt(end.Unix(), 10)
	v, err, _ := p.group.Do(flight, func() (any, error) {
		return p.fetch(ctx, q.Symbol, q.Interval, q.Limit, end)
	})
	if err != nil {
		return model.BarSeries{}, err
	}
	return v.(model.BarSeries), nil
}

func (p *Provider) fetch(ctx context.Context, symbol string, iv model.Interval, limit int, end time.Time) (model.BarSeries, error) {
	start := time.Now()
	rows, err := p.fetcher.FetchBars(ctx, symbol, iv, limit, end)
	if err != nil {
		if !errors.Is(err, model.ErrUpstreamFetch) {
			err = fmt.Errorf("%w: %w", model.ErrUpstreamFetch, err)
		}
		return model.BarSeries{}, fmt.Errorf("bars %s %s: %w", symbol, iv, err)
	}

	bars := make([]model.Bar, 0, len(rows))
	for _, r := range rows {
		ts := time.UnixMilli(int64(r[0])).UTC()
		if ts.After(end) {
			continue
		}
		bars = append(bars, model.Bar{Time: ts, Open: r[1], High: r[2], Low: r[3], Close: r[4], Volume: r[5]})
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}

	series, err := model.NewBarSeries(symbol, iv, limit, bars)
	if err != nil {
		return model.BarSeries{}, fmt.Errorf("%w: bars %s %s: %w", model.ErrUpstreamFetch, symbol, iv, err)
	}
	p.buf.SetBars(series)

	p.log.Debug("fetched bars",
		slog.String("symbol", symbol),
		slog.String("interval", iv.Code()),
		slog.Int("bars", series.Len()),
		slog.Time("end", end),
		slog.Duration("elapsed", time.Since(start)),
	)
	return series, nil
}

// Symbols returns the exchange listing, memoized until invalidated.
func (p *Provider) Symbols(ctx context.Context) ([]string, error) {
	if syms, ok := p.buf.Symbols(p.source); ok {
		return syms, nil
	}
	v, err, _ := p.group.Do("symbols:"+p.source, func() (any, error) {
		syms, err := p.fetcher.FetchSymbols(ctx)
		if err != nil {
			if !errors.Is(err, model.ErrUpstreamFetch) {
				err = fmt.Errorf("%w: %w", model.ErrUpstreamFetch, err)
			}
			return nil, fmt.Errorf("symbols: %w", err)
		}
		p.buf.SetSymbols(p.source, syms)
		return syms, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, len(v.([]string)))
	copy(out, v.([]string))
	return out, nil
}

// Schedule returns the parsed trading-hours schedule for symbol. Symbols
// without declared hours trade around the clock.
func (p *Provider) Schedule(symbol string) (*timewindow.Schedule, error) {
	if s, ok := p.buf.Window(symbol); ok {
		return s, nil
	}
	inst, err := p.universe.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	sched := timewindow.AlwaysOpen
	if inst.Hours != "" {
		sched, err = timewindow.Parse(inst.Hours)
		if err != nil {
			return nil, fmt.Errorf("hours for %s: %w", symbol, err)
		}
	}
	p.buf.SetWindow(symbol, sched)
	return sched, nil
}
