package strategy

import (
	"signal-engine/internal/indicator"
	"signal-engine/internal/model"
)

// classifyTrend maps short/medium/long EMA ordering to a trend. Up without
// strong is the correction state short < medium with short still above long.
func classifyTrend(short, medium, long float64) model.Trend {
	switch {
	case short > medium && medium > long:
		return model.TrendStrongUp
	case short < medium && medium < long:
		return model.TrendStrongDown
	case short > long:
		return model.TrendUp
	}
	return model.TrendDown
}

// evaluateEMATrend emits strong-buy/strong-sell on the bar the trend enters
// strong-up/strong-down.
func evaluateEMATrend(c EMATrendConfig, s model.BarSeries, id string) ([]model.Signal, error) {
	bars := s.Bars()
	short := indicator.Run(indicator.NewEMA(c.Short), bars)
	medium := indicator.Run(indicator.NewEMA(c.Medium), bars)
	long := indicator.Run(indicator.NewEMA(c.Long), bars)

	start := max(short.Offset, medium.Offset, long.Offset) + 1
	if start >= len(bars) {
		return nil, insufficient(id, s, c.MinBars())
	}

	trendAt := func(i int) (model.Trend, float64, float64, float64) {
		a, _ := short.At(i)
		b, _ := medium.At(i)
		l, _ := long.At(i)
		return classifyTrend(a, b, l), a, b, l
	}

	rows := make([]model.Signal, 0, len(bars)-start)
	prevTrend, _, _, _ := trendAt(start - 1)
	for i := start; i < len(bars); i++ {
		trend, a, b, l := trendAt(i)

		row := newRow(s, id, bars[i])
		row.Trend = trend
		switch {
		case trend == model.TrendStrongUp && prevTrend != model.TrendStrongUp:
			row.Decision = model.DecisionStrongBuy
		case trend == model.TrendStrongDown && prevTrend != model.TrendStrongDown:
			row.Decision = model.DecisionStrongSell
		}
		row.StopLoss = emaStop(bars[i].Close, l, c.StopShift, trend.Bullish())
		row.TakeProfit = RewardRatio * row.StopLoss
		row.Indicators = map[string]float64{short.Name: a, medium.Name: b, long.Name: l}
		rows = append(rows, row)
		prevTrend = trend
	}
	return rows, nil
}
