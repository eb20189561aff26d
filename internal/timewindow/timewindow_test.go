package timewindow

import (
	"strings"
	"testing"
	"time"

	"signal-engine/internal/model"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestParse_Errors(t *testing.T) {
	bad := []string{
		"",
		"Mon-Fri",
		"Mon-Fri 09:30",
		"Mon-Fri 25:00-26:00",
		"Funday 09:00-10:00",
		"Not/AZone Mon-Fri 09:00-17:00",
		"!2024-13-01",
		"Mon 24:00-01:00",
	}
	for _, spec := range bad {
		if _, err := Parse(spec); err == nil {
			t.Errorf("Parse(%q): expected error", spec)
		}
	}
}

func TestAlwaysOpen(t *testing.T) {
	for _, iv := range model.Intervals {
		if !AlwaysOpen.IsOpen(utc(2024, 3, 10, 3, 7), iv) {
			t.Errorf("24/7 closed for %s", iv)
		}
	}
	if AlwaysOpen.StatusString(time.Now()) != "Market Open" {
		t.Errorf("unexpected status %q", AlwaysOpen.StatusString(time.Now()))
	}
}

func TestIsOpen_Intraday(t *testing.T) {
	s := MustParse("Mon-Fri 09:30-16:00")

	// Wednesday 2024-03-06
	cases := []struct {
		name string
		at   time.Time
		iv   model.Interval
		want bool
	}{
		{"inside session", utc(2024, 3, 6, 12, 0), model.Interval1m, true},
		{"before open 1m", utc(2024, 3, 6, 9, 29), model.Interval1m, false},
		{"hour bar overlapping open", utc(2024, 3, 6, 9, 5), model.Interval1h, true},
		{"at close", utc(2024, 3, 6, 16, 0), model.Interval5m, false},
		{"4h bar containing session tail", utc(2024, 3, 6, 15, 0), model.Interval4h, true},
		{"4h bar starting at close", utc(2024, 3, 6, 17, 0), model.Interval4h, false},
		{"evening 4h bar", utc(2024, 3, 6, 21, 0), model.Interval4h, false},
		{"saturday", utc(2024, 3, 9, 12, 0), model.Interval15m, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.IsOpen(tc.at, tc.iv); got != tc.want {
				t.Errorf("IsOpen(%s, %s) = %v, want %v", tc.at, tc.iv, got, tc.want)
			}
		})
	}
}

func TestIsOpen_DailyAndWeekly(t *testing.T) {
	s := MustParse("Mon-Fri 09:30-16:00; !2024-12-25")

	if !s.IsOpen(utc(2024, 3, 6, 22, 0), model.Interval1d) {
		t.Error("wednesday daily bar should be open after the session ends")
	}
	if s.IsOpen(utc(2024, 3, 9, 12, 0), model.Interval1d) {
		t.Error("saturday daily bar should be closed")
	}
	if s.IsOpen(utc(2024, 12, 25, 12, 0), model.Interval1d) {
		t.Error("holiday daily bar should be closed")
	}
	if !s.IsOpen(utc(2024, 3, 10, 12, 0), model.Interval1w) {
		t.Error("weekly bar should be open on a sunday of a trading week")
	}

	holidayWeek := MustParse("Mon 09:00-17:00; !2024-03-04")
	if holidayWeek.IsOpen(utc(2024, 3, 6, 12, 0), model.Interval1w) {
		t.Error("week whose only trading day is a holiday should be closed")
	}
}

func TestIsOpen_WrapsPastMidnight(t *testing.T) {
	s := MustParse("Sun-Thu 22:00-06:00")

	if !s.IsOpen(utc(2024, 3, 6, 23, 0), model.Interval1m) {
		t.Error("wednesday 23:00 should be open")
	}
	if !s.IsOpen(utc(2024, 3, 8, 5, 59), model.Interval1m) {
		t.Error("friday 05:59 continues thursday's session")
	}
	if s.IsOpen(utc(2024, 3, 8, 6, 0), model.Interval1m) {
		t.Error("friday 06:00 should be closed")
	}
	if s.IsOpen(utc(2024, 3, 8, 23, 0), model.Interval1m) {
		t.Error("friday night has no session")
	}
}

func TestIsOpen_Location(t *testing.T) {
	s, err := Parse("America/New_York Mon-Fri 09:30-16:00")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 14:45 UTC is 09:45 EST on 2024-03-06
	if !s.IsOpen(utc(2024, 3, 6, 14, 45), model.Interval1m) {
		t.Error("expected open at 09:45 New York time")
	}
	if s.IsOpen(utc(2024, 3, 6, 9, 45), model.Interval1m) {
		t.Error("expected closed at 04:45 New York time")
	}
}

func TestNextOpen(t *testing.T) {
	s := MustParse("Mon-Fri 09:30-16:00; !2024-03-11")

	open := utc(2024, 3, 6, 10, 0)
	if got := s.NextOpen(open); !got.Equal(open) {
		t.Errorf("NextOpen while open = %s, want %s", got, open)
	}

	// Friday evening skips the weekend and the Monday holiday
	got := s.NextOpen(utc(2024, 3, 8, 18, 0))
	want := utc(2024, 3, 12, 9, 30)
	if !got.Equal(want) {
		t.Errorf("NextOpen = %s, want %s", got, want)
	}

	status := s.StatusString(utc(2024, 3, 12, 8, 0))
	if !strings.HasPrefix(status, "Market Closed, opens Tue 09:30") || !strings.Contains(status, "1h30m") {
		t.Errorf("unexpected status %q", status)
	}
}

func TestHolidays(t *testing.T) {
	s := MustParse("Mon-Fri 09:00-17:00; !2024-12-25; !2025-01-01")
	if len(s.Holidays()) != 2 {
		t.Fatalf("expected 2 holidays, got %v", s.Holidays())
	}
	if !s.IsHoliday(utc(2024, 12, 25, 23, 59)) {
		t.Error("expected 2024-12-25 to be a holiday")
	}
	if s.IsTradingDay(utc(2025, 1, 1, 12, 0)) {
		t.Error("holiday is not a trading day")
	}
	if !s.IsTradingDay(utc(2025, 1, 2, 12, 0)) {
		t.Error("2025-01-02 is a thursday")
	}
}
