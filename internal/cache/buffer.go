// Package cache memoizes symbol listings, trading-hours schedules, bar
// history and computed signals.
//
// Each of the four stores is keyed independently. Bar and signal entries
// carry validity metadata and are only served when the request matches it;
// symbols and schedules are served whenever present. Nothing expires on its
// own: eviction is explicit invalidation.
package cache

import (
	"fmt"
	"time"

	"signal-engine/internal/model"
	"signal-engine/internal/timewindow"
)

// Store kinds, used as metric labels.
const (
	KindSymbols = "symbols"
	KindWindows = "windows"
	KindBars    = "bars"
	KindSignals = "signals"
)

// Observer is notified of every lookup. Implementations must be safe for
// concurrent use.
type Observer interface {
	CacheLookup(kind string, hit bool)
	CacheStale(kind string)
}

// BarsKey identifies a cached bar series.
type BarsKey struct {
	Symbol   string
	Interval model.Interval
}

func (k BarsKey) String() string { return k.Symbol + ":" + k.Interval.Code() }

// SignalKey identifies a cached signal.
type SignalKey struct {
	Symbol   string
	Interval model.Interval
	Strategy string
}

func (k SignalKey) String() string {
	return k.Symbol + ":" + k.Interval.Code() + ":" + k.Strategy
}

// Buffer is the shared cache. The zero value is not usable; call New.
type Buffer struct {
	symbols store[string, []string]
	windows store[string, *timewindow.Schedule]
	bars    store[BarsKey, model.BarSeries]
	signals store[SignalKey, model.Signal]

	obs Observer
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithObserver reports lookups to o.
func WithObserver(o Observer) Option {
	return func(b *Buffer) { b.obs = o }
}

// New creates an empty Buffer.
func New(opts ...Option) *Buffer {
	b := &Buffer{}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Buffer) lookup(kind string, hit bool) {
	if b.obs != nil {
		b.obs.CacheLookup(kind, hit)
	}
}

func (b *Buffer) stale(kind string) {
	if b.obs != nil {
		b.obs.CacheStale(kind)
	}
}

// ── Symbols ──

// Symbols returns a copy of the cached listing for source.
func (b *Buffer) Symbols(source string) ([]string, bool) {
	e := b.symbols.get(source)
	b.lookup(KindSymbols, e != nil)
	if e == nil {
		return nil, false
	}
	out := make([]string, len(e.value))
	copy(out, e.value)
	return out, true
}

// SetSymbols replaces the listing for source.
func (b *Buffer) SetSymbols(source string, symbols []string) {
	cp := make([]string, len(symbols))
	copy(cp, symbols)
	b.symbols.set(source, &entry[[]string]{value: cp})
}

// InvalidateSymbols drops the listing for source.
func (b *Buffer) InvalidateSymbols(source string) { b.symbols.invalidate(source) }

// ── Trading-hours windows ──

// Window returns the cached schedule for symbol. Schedules are immutable, so
// the pointer is shared.
func (b *Buffer) Window(symbol string) (*timewindow.Schedule, bool) {
	e := b.windows.get(symbol)
	b.lookup(KindWindows, e != nil)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// SetWindow replaces the schedule for symbol.
func (b *Buffer) SetWindow(symbol string, s *timewindow.Schedule) {
	b.windows.set(symbol, &entry[*timewindow.Schedule]{value: s})
}

// InvalidateWindow drops the schedule for symbol.
func (b *Buffer) InvalidateWindow(symbol string) { b.windows.invalidate(symbol) }

// ── Bars ──

func barsValid(e *entry[model.BarSeries], limit int, end time.Time) bool {
	if e == nil || e.end.Before(end) {
		return false
	}
	return e.value.CountAtOrBefore(end) >= limit
}

// BarsValid reports whether the cached series for key can serve limit bars
// ending at end: its end is at or after end and it holds at least limit bars
// at or before end.
func (b *Buffer) BarsValid(key BarsKey, limit int, end time.Time) bool {
	return barsValid(b.bars.get(key), limit, end)
}

// Bars returns the last limit cached bars at or before end as a new series.
// A miss returns false. An entry whose content disagrees with its validity
// metadata is dropped and reported as model.ErrStaleCacheRead.
func (b *Buffer) Bars(key BarsKey, limit int, end time.Time) (model.BarSeries, bool, error) {
	e := b.bars.get(key)
	if !barsValid(e, limit, end) {
		b.lookup(KindBars, false)
		return model.BarSeries{}, false, nil
	}
	view := e.value.Tail(limit, end)
	if view.Len() != limit || e.value.Len() != e.count || view.End().After(end) {
		b.bars.drop(key, e)
		b.stale(KindBars)
		return model.BarSeries{}, false, fmt.Errorf("%w: bars %s: %d/%d bars at %s",
			model.ErrStaleCacheRead, key, view.Len(), limit, end.Format(time.RFC3339))
	}
	b.lookup(KindBars, true)
	return view, true, nil
}

// SetBars replaces the series cached under its symbol and interval.
func (b *Buffer) SetBars(s model.BarSeries) {
	key := BarsKey{Symbol: s.Symbol, Interval: s.Interval}
	b.bars.set(key, &entry[model.BarSeries]{value: s, end: s.End(), count: s.Len()})
}

// InvalidateBars drops the series for key.
func (b *Buffer) InvalidateBars(key BarsKey) { b.bars.invalidate(key) }

// ── Signals ──

// SignalValid reports whether the cached signal for key is stamped exactly ts.
func (b *Buffer) SignalValid(key SignalKey, ts time.Time) bool {
	e := b.signals.get(key)
	return e != nil && e.end.Equal(ts)
}

// Signal returns the cached signal for key if it was computed for bar ts.
func (b *Buffer) Signal(key SignalKey, ts time.Time) (model.Signal, bool, error) {
	e := b.signals.get(key)
	if e == nil || !e.end.Equal(ts) {
		b.lookup(KindSignals, false)
		return model.Signal{}, false, nil
	}
	if !e.value.Time.Equal(ts) {
		b.signals.drop(key, e)
		b.stale(KindSignals)
		return model.Signal{}, false, fmt.Errorf("%w: signal %s stamped %s, indexed %s",
			model.ErrStaleCacheRead, key, e.value.Time.Format(time.RFC3339), ts.Format(time.RFC3339))
	}
	b.lookup(KindSignals, true)
	return e.value.Clone(), true, nil
}

// SetSignal replaces the signal cached under its symbol, interval and strategy.
func (b *Buffer) SetSignal(sig model.Signal) {
	key := SignalKey{Symbol: sig.Symbol, Interval: sig.Interval, Strategy: sig.Strategy}
	b.signals.set(key, &entry[model.Signal]{value: sig.Clone(), end: sig.Time})
}

// InvalidateSignal drops the signal for key.
func (b *Buffer) InvalidateSignal(key SignalKey) { b.signals.invalidate(key) }

// ── Whole cache ──

// InvalidateAll empties every store.
func (b *Buffer) InvalidateAll() {
	b.symbols.invalidateAll()
	b.windows.invalidateAll()
	b.bars.invalidateAll()
	b.signals.invalidateAll()
}

// Sizes counts live entries per store.
type Sizes struct {
	Symbols int `json:"symbols"`
	Windows int `json:"windows"`
	Bars    int `json:"bars"`
	Signals int `json:"signals"`
}

// Sizes returns the number of live entries in each store.
func (b *Buffer) Sizes() Sizes {
	return Sizes{
		Symbols: b.symbols.len(),
		Windows: b.windows.len(),
		Bars:    b.bars.len(),
		Signals: b.signals.len(),
	}
}
