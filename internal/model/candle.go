package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bar is one OHLCV sample. Time is the bar timestamp produced by the
// interval's end-timestamp arithmetic (UTC, interval-aligned).
type Bar struct {
	Time   time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// TypicalPrice returns (high+low+close)/3.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// BarSeries is an immutable, ascending run of bars for one symbol and interval.
// Bars are never exposed as a mutable slice; Bars() returns a copy.
type BarSeries struct {
	Symbol   string
	Interval Interval
	Limit    int

	bars []Bar
}

// NewBarSeries validates ordering and copies bars into a new series.
// Timestamps must be strictly ascending (one bar per timestamp).
func NewBarSeries(symbol string, interval Interval, limit int, bars []Bar) (BarSeries, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return BarSeries{}, fmt.Errorf("bar %d at %s not after %s", i,
				bars[i].Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return BarSeries{Symbol: symbol, Interval: interval, Limit: limit, bars: cp}, nil
}

// Len returns the number of bars.
func (s BarSeries) Len() int { return len(s.bars) }

// At returns the i-th bar.
func (s BarSeries) At(i int) Bar { return s.bars[i] }

// Bars returns a copy of the bars.
func (s BarSeries) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}

// End returns the last bar's timestamp, or the zero time for an empty series.
func (s BarSeries) End() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[len(s.bars)-1].Time
}

// CountAtOrBefore returns how many bars have a timestamp <= end.
func (s BarSeries) CountAtOrBefore(end time.Time) int {
	lo, hi := 0, len(s.bars)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.bars[mid].Time.After(end) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Tail returns a new series with the last limit bars at or before end.
// The result shares no memory with s.
func (s BarSeries) Tail(limit int, end time.Time) BarSeries {
	n := s.CountAtOrBefore(end)
	start := n - limit
	if start < 0 {
		start = 0
	}
	cp := make([]Bar, n-start)
	copy(cp, s.bars[start:n])
	return BarSeries{Symbol: s.Symbol, Interval: s.Interval, Limit: limit, bars: cp}
}

// Key returns "symbol:interval".
func (s BarSeries) Key() string {
	return s.Symbol + ":" + s.Interval.Code()
}
