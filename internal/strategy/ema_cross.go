package strategy

import (
	"signal-engine/internal/indicator"
	"signal-engine/internal/model"
)

// evaluateEMACross emits strong-buy on a golden cross (short crosses above
// long) and strong-sell on a death cross.
func evaluateEMACross(c EMACrossConfig, s model.BarSeries, id string) ([]model.Signal, error) {
	bars := s.Bars()
	short := indicator.Run(indicator.NewEMA(c.Short), bars)
	long := indicator.Run(indicator.NewEMA(c.Long), bars)

	start := max(short.Offset, long.Offset) + 1
	if start >= len(bars) {
		return nil, insufficient(id, s, c.MinBars())
	}

	rows := make([]model.Signal, 0, len(bars)-start)
	for i := start; i < len(bars); i++ {
		prevFast, _ := short.At(i - 1)
		prevSlow, _ := long.At(i - 1)
		fast, _ := short.At(i)
		slow, _ := long.At(i)

		row := newRow(s, id, bars[i])
		switch {
		case prevFast <= prevSlow && fast > slow:
			row.Decision = model.DecisionStrongBuy
		case prevFast >= prevSlow && fast < slow:
			row.Decision = model.DecisionStrongSell
		}
		if fast > slow {
			row.Trend = model.TrendUp
		} else {
			row.Trend = model.TrendDown
		}
		row.StopLoss = emaStop(bars[i].Close, slow, c.StopShift, row.Trend.Bullish())
		row.TakeProfit = RewardRatio * row.StopLoss
		row.Indicators = map[string]float64{short.Name: fast, long.Name: slow}
		rows = append(rows, row)
	}
	return rows, nil
}

// emaStop returns the stop distance from close: the long EMA shifted away
// from the trade by shift, never on the wrong side of close.
func emaStop(close, longEMA, shift float64, long bool) float64 {
	if long {
		stop := min(longEMA, close) * (1 - shift)
		return close - stop
	}
	stop := max(longEMA, close) * (1 + shift)
	return stop - close
}
