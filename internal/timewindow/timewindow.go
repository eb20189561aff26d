// Package timewindow parses trading-hours specifications and answers whether
// a market is open at an instant for a given bar granularity.
//
// Spec grammar:
//
//	[TZ ]RULE[; RULE...]
//	RULE := DAYS RANGE[,RANGE...] | 24/7 | !YYYY-MM-DD
//	DAYS := Mon | Mon-Fri | Mon,Wed,Fri
//	RANGE := HH:MM-HH:MM   (close <= open wraps past midnight)
//
// Example: "America/New_York Mon-Fri 09:30-16:00; !2024-12-25".
package timewindow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"signal-engine/internal/model"
)

const minutesPerDay = 24 * 60

// span is a [Start, End) range in minutes since local midnight.
type span struct {
	Start int
	End   int
}

// Schedule is a parsed trading-hours spec. It is immutable after Parse.
type Schedule struct {
	spec     string
	loc      *time.Location
	days     [7][]span // indexed by time.Weekday
	holidays map[string]bool
}

// AlwaysOpen is the 24/7 schedule in UTC.
var AlwaysOpen = MustParse("24/7")

// MustParse is Parse that panics on error, for static specs.
func MustParse(spec string) *Schedule {
	s, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse builds a Schedule from a spec string.
func Parse(spec string) (*Schedule, error) {
	s := &Schedule{spec: spec, loc: time.UTC, holidays: make(map[string]bool)}

	rules := strings.Split(spec, ";")
	first := strings.Fields(rules[0])
	if len(first) > 0 && !looksLikeRule(first[0]) {
		loc, err := time.LoadLocation(first[0])
		if err != nil {
			return nil, fmt.Errorf("timewindow: location %q: %w", first[0], err)
		}
		s.loc = loc
		rules[0] = strings.Join(first[1:], " ")
	}

	for _, raw := range rules {
		rule := strings.TrimSpace(raw)
		if rule == "" {
			continue
		}
		if err := s.addRule(rule); err != nil {
			return nil, fmt.Errorf("timewindow: rule %q: %w", rule, err)
		}
	}

	empty := true
	for wd := range s.days {
		sort.Slice(s.days[wd], func(i, j int) bool { return s.days[wd][i].Start < s.days[wd][j].Start })
		if len(s.days[wd]) > 0 {
			empty = false
		}
	}
	if empty {
		return nil, fmt.Errorf("timewindow: spec %q declares no trading windows", spec)
	}
	return s, nil
}

func looksLikeRule(tok string) bool {
	if tok == "24/7" || strings.HasPrefix(tok, "!") {
		return true
	}
	_, err := parseDays(tok)
	return err == nil
}

func (s *Schedule) addRule(rule string) error {
	if rule == "24/7" {
		for wd := range s.days {
			s.days[wd] = append(s.days[wd], span{0, minutesPerDay})
		}
		return nil
	}
	if strings.HasPrefix(rule, "!") {
		d, err := time.Parse("2006-01-02", strings.TrimPrefix(rule, "!"))
		if err != nil {
			return err
		}
		s.holidays[dateKey(d)] = true
		return nil
	}

	fields := strings.Fields(rule)
	if len(fields) < 2 {
		return fmt.Errorf("expected DAYS RANGE")
	}
	days, err := parseDays(fields[0])
	if err != nil {
		return err
	}
	for _, tok := range fields[1:] {
		for _, rng := range strings.Split(tok, ",") {
			if rng == "" {
				continue
			}
			open, close, err := parseRange(rng)
			if err != nil {
				return err
			}
			for _, wd := range days {
				if close > open {
					s.days[wd] = append(s.days[wd], span{open, close})
					continue
				}
				// wraps past midnight into the next weekday
				s.days[wd] = append(s.days[wd], span{open, minutesPerDay})
				if close > 0 {
					next := (wd + 1) % 7
					s.days[next] = append(s.days[next], span{0, close})
				}
			}
		}
	}
	return nil
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseDay(tok string) (time.Weekday, error) {
	key := strings.ToLower(tok)
	if len(key) > 3 {
		key = key[:3]
	}
	wd, ok := dayNames[key]
	if !ok {
		return 0, fmt.Errorf("unknown day %q", tok)
	}
	return wd, nil
}

func parseDays(tok string) ([]time.Weekday, error) {
	var out []time.Weekday
	for _, part := range strings.Split(tok, ",") {
		if from, to, ok := strings.Cut(part, "-"); ok {
			a, err := parseDay(from)
			if err != nil {
				return nil, err
			}
			b, err := parseDay(to)
			if err != nil {
				return nil, err
			}
			for wd := a; ; wd = (wd + 1) % 7 {
				out = append(out, wd)
				if wd == b {
					break
				}
			}
			continue
		}
		wd, err := parseDay(part)
		if err != nil {
			return nil, err
		}
		out = append(out, wd)
	}
	return out, nil
}

func parseRange(rng string) (int, int, error) {
	from, to, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, fmt.Errorf("range %q: expected HH:MM-HH:MM", rng)
	}
	open, err := parseClock(from)
	if err != nil {
		return 0, 0, err
	}
	close, err := parseClock(to)
	if err != nil {
		return 0, 0, err
	}
	if open == minutesPerDay {
		return 0, 0, fmt.Errorf("range %q: open cannot be 24:00", rng)
	}
	return open, close, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	total := h*60 + m
	if h < 0 || m < 0 || m > 59 || total > minutesPerDay {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return total, nil
}

// String returns the original spec.
func (s *Schedule) String() string { return s.spec }

// Location returns the schedule's time zone.
func (s *Schedule) Location() *time.Location { return s.loc }

// IsOpen reports whether trading is open at t for bars of interval iv.
//
// Intraday bars are open when the bar containing t overlaps a window. Daily
// bars are open when t's local day trades, weekly bars when any day of t's
// local Monday-based week trades.
func (s *Schedule) IsOpen(t time.Time, iv model.Interval) bool {
	switch {
	case iv == model.Interval1w:
		local := t.In(s.loc)
		monday := midnight(local).AddDate(0, 0, -((int(local.Weekday()) + 6) % 7))
		for i := 0; i < 7; i++ {
			if s.tradesOn(monday.AddDate(0, 0, i)) {
				return true
			}
		}
		return false
	case !iv.Valid() || !iv.Intraday():
		return s.tradesOn(midnight(t.In(s.loc)))
	}

	start := iv.Floor(t)
	end := start.Add(iv.Duration())
	return s.overlaps(start, end)
}

// IsOpenAt reports whether the instant t falls inside a trading window.
func (s *Schedule) IsOpenAt(t time.Time) bool {
	return s.overlaps(t, t.Add(time.Nanosecond))
}

func (s *Schedule) tradesOn(day time.Time) bool {
	return !s.IsHoliday(day) && len(s.days[day.Weekday()]) > 0
}

// overlaps reports whether [start, end) intersects any trading window.
func (s *Schedule) overlaps(start, end time.Time) bool {
	day := midnight(start.In(s.loc)).AddDate(0, 0, -1)
	last := midnight(end.In(s.loc))
	for ; !day.After(last); day = day.AddDate(0, 0, 1) {
		if s.IsHoliday(day) {
			continue
		}
		for _, w := range s.days[day.Weekday()] {
			wStart := day.Add(time.Duration(w.Start) * time.Minute)
			wEnd := day.Add(time.Duration(w.End) * time.Minute)
			if wStart.Before(end) && wEnd.After(start) {
				return true
			}
		}
	}
	return false
}

// NextOpen returns t if the market is open at t, otherwise the start of the
// next trading window. The zero time means no window within two weeks.
func (s *Schedule) NextOpen(t time.Time) time.Time {
	if s.IsOpenAt(t) {
		return t
	}
	day := midnight(t.In(s.loc))
	for i := 0; i < 14; i++ {
		if !s.IsHoliday(day) {
			for _, w := range s.days[day.Weekday()] {
				wStart := day.Add(time.Duration(w.Start) * time.Minute)
				if wStart.After(t) {
					return wStart
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// StatusString returns a human-readable market status.
func (s *Schedule) StatusString(t time.Time) string {
	if s.IsOpenAt(t) {
		return "Market Open"
	}
	next := s.NextOpen(t)
	if next.IsZero() {
		return "Market Closed"
	}
	local := next.In(s.loc)
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		local.Weekday().String()[:3], local.Format("15:04"), fmtDur(next.Sub(t)))
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
