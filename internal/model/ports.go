package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These decouple the core from the exchange client, the history cache and
// the outbound publication/persistence backends.

// RawBar is one exchange row: (ts millis, open, high, low, close, volume).
type RawBar [6]float64

// BarFetcher is the external market-data client.
type BarFetcher interface {
	// FetchBars returns up to limit rows ending at or before end.
	FetchBars(ctx context.Context, symbol string, interval Interval, limit int, end time.Time) ([]RawBar, error)

	// FetchSymbols lists the exchange's tradable symbols.
	FetchSymbols(ctx context.Context) ([]string, error)
}

// BarsQuery selects a history window.
type BarsQuery struct {
	Symbol     string
	Interval   Interval
	Limit      int
	AsOf       time.Time
	ClosedBars bool
}

// End returns the bar timestamp the query resolves to.
func (q BarsQuery) End() time.Time {
	return q.Interval.EndTimestamp(q.AsOf, q.ClosedBars)
}

// BarSource serves bar history, usually through the cache.
type BarSource interface {
	Bars(ctx context.Context, q BarsQuery) (BarSeries, error)
}

// SignalPublisher fans computed signals out to downstream consumers.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, sig Signal) error
}
