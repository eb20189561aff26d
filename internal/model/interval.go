package model

import (
	"fmt"
	"time"
)

// Interval is a bar sampling granularity, identified by its exchange code.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

// DailyResetHour is the UTC hour at which daily and weekly bars roll over.
const DailyResetHour = 0

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
}

var coarser = map[Interval]Interval{
	Interval1m:  Interval15m,
	Interval3m:  Interval15m,
	Interval5m:  Interval1h,
	Interval15m: Interval1h,
	Interval30m: Interval4h,
	Interval1h:  Interval4h,
	Interval2h:  Interval4h,
	Interval4h:  Interval1d,
	Interval1d:  Interval1w,
}

// Intervals lists every supported interval from finest to coarsest.
var Intervals = []Interval{
	Interval1m, Interval3m, Interval5m, Interval15m, Interval30m,
	Interval1h, Interval2h, Interval4h, Interval1d, Interval1w,
}

// ParseInterval validates an interval code.
func ParseInterval(code string) (Interval, error) {
	iv := Interval(code)
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownInterval, code)
	}
	return iv, nil
}

// Code returns the exchange interval code.
func (iv Interval) Code() string { return string(iv) }

func (iv Interval) String() string { return string(iv) }

// Duration returns the length of one bar.
func (iv Interval) Duration() time.Duration { return intervalDurations[iv] }

// Valid reports whether iv is a supported interval.
func (iv Interval) Valid() bool {
	_, ok := intervalDurations[iv]
	return ok
}

// Intraday reports whether bars are shorter than a day.
func (iv Interval) Intraday() bool { return iv.Duration() < 24*time.Hour }

// Coarser returns the next coarser interval used by up-level filtering.
func (iv Interval) Coarser() (Interval, bool) {
	c, ok := coarser[iv]
	return c, ok
}

// ScaleFactor returns how many iv bars fit into one bar of coarse.
func (iv Interval) ScaleFactor(coarse Interval) int {
	d := iv.Duration()
	if d == 0 {
		return 1
	}
	f := int(coarse.Duration() / d)
	if f < 1 {
		return 1
	}
	return f
}

// Floor returns the latest bar timestamp <= t for this interval.
//
// Intraday intervals (up to 4h) floor to a multiple of their size since the
// Unix epoch, which keeps 4h boundaries aligned to the UTC day. Daily bars
// floor to DailyResetHour, weekly bars to the most recent Monday at that hour.
func (iv Interval) Floor(t time.Time) time.Time {
	t = t.UTC()
	switch iv {
	case Interval1d:
		return floorDay(t)
	case Interval1w:
		day := floorDay(t)
		back := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -back)
	}
	d := iv.Duration()
	if d <= 0 {
		return t
	}
	size := int64(d / time.Second)
	sec := t.Unix()
	floored := sec - sec%size
	if sec < 0 && sec%size != 0 {
		floored -= size
	}
	return time.Unix(floored, 0).UTC()
}

func floorDay(t time.Time) time.Time {
	shifted := t.Add(-DailyResetHour * time.Hour)
	day := time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC)
	return day.Add(DailyResetHour * time.Hour)
}

// EndTimestamp returns the bar timestamp a request made at asOf should end
// on. With closedBars the still-forming bar is excluded by stepping back one
// full interval after flooring. Two callers with the same arguments always
// get the same instant; signal memoization depends on it.
func (iv Interval) EndTimestamp(asOf time.Time, closedBars bool) time.Time {
	end := iv.Floor(asOf)
	if closedBars {
		end = iv.Prev(end)
	}
	return end
}

// Prev steps an aligned timestamp back by one bar.
func (iv Interval) Prev(t time.Time) time.Time {
	if iv == Interval1w {
		return t.AddDate(0, 0, -7)
	}
	if iv == Interval1d {
		return t.AddDate(0, 0, -1)
	}
	return t.Add(-iv.Duration())
}
