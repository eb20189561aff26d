package strategy

import (
	"time"

	"signal-engine/internal/model"
)

// coarseAsOf returns the coarse row visible to the fine bar stamped t: the
// latest coarse bar that has closed by the time the fine bar closes. A coarse
// bar closing at the same instant as the fine bar is visible.
func coarseAsOf(coarse model.SignalSeries, t time.Time, fine model.Interval) (model.Signal, bool) {
	cutoff := t.Add(fine.Duration()).Add(-coarse.Interval.Duration())
	return coarse.AsOf(cutoff)
}

// ApplyUpLevel gates fine rows with the coarse series:
//   - a fine strong signal against the coarse trend is weakened;
//   - on the first fine bar that sees a new coarse strong signal, a fine row
//     with no decision takes the weak form of it if the fine trend concurs.
//
// fine is not modified.
func ApplyUpLevel(fine, coarse model.SignalSeries) model.SignalSeries {
	out := fine
	out.Rows = make([]model.Signal, len(fine.Rows))
	for i, row := range fine.Rows {
		row = row.Clone()
		up, ok := coarseAsOf(coarse, row.Time, fine.Interval)
		if !ok {
			out.Rows[i] = row
			continue
		}

		switch {
		case row.Decision == model.DecisionStrongBuy && up.Trend.Bearish(),
			row.Decision == model.DecisionStrongSell && up.Trend.Bullish():
			row.Decision = row.Decision.Weaken()

		case row.Decision == model.DecisionNone && up.Decision.Strong():
			prev, seen := coarseAsOf(coarse, fine.Interval.Prev(row.Time), fine.Interval)
			fresh := !seen || !prev.Time.Equal(up.Time)
			concurs := (up.Decision.IsBuy() && row.Trend.Bullish()) || (up.Decision.IsSell() && row.Trend.Bearish())
			if fresh && concurs {
				row.Decision = up.Decision.Weaken()
			}
		}
		out.Rows[i] = row
	}
	return out
}
