package timewindow

import "time"

// Holidays returns the declared holiday dates as YYYY-MM-DD, unsorted.
func (s *Schedule) Holidays() []string {
	out := make([]string, 0, len(s.holidays))
	for d := range s.holidays {
		out = append(out, d)
	}
	return out
}

// IsHoliday returns true if t's local date (in the schedule's zone) is a
// declared holiday.
func (s *Schedule) IsHoliday(t time.Time) bool {
	if len(s.holidays) == 0 {
		return false
	}
	return s.holidays[dateKey(t.In(s.loc))]
}

// IsTradingDay reports whether t's local date has a window and is not a holiday.
func (s *Schedule) IsTradingDay(t time.Time) bool {
	return s.tradesOn(midnight(t.In(s.loc)))
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
