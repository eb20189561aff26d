package strategy

import (
	"signal-engine/internal/indicator"
	"signal-engine/internal/model"
)

// CCI stop and target multiples of ATR.
const (
	cciStopATR   = 2.0
	cciTargetATR = 3.0
)

func evaluateCCI(c CCIConfig, s model.BarSeries, id string) ([]model.Signal, error) {
	bars := s.Bars()
	cci := indicator.Run(indicator.NewCCI(c.Length), bars)
	atr := indicator.Run(indicator.NewATR(c.Length), bars)

	start := max(cci.Offset, atr.Offset) + 1
	if start >= len(bars) {
		return nil, insufficient(id, s, c.MinBars())
	}

	rows := make([]model.Signal, 0, len(bars)-start)
	for i := start; i < len(bars); i++ {
		prev, _ := cci.At(i - 1)
		cur, _ := cci.At(i)
		a, _ := atr.At(i)

		row := newRow(s, id, bars[i])
		row.Decision = cciDecision(prev, cur, c)
		row.Trend = cciTrend(cur, c)
		row.StopLoss = cciStopATR * a
		row.TakeProfit = cciTargetATR * a
		row.Indicators = map[string]float64{cci.Name: cur, atr.Name: a}
		rows = append(rows, row)
	}
	return rows, nil
}

// cciDecision applies the zero-cross or band rule to consecutive readings.
func cciDecision(prev, cur float64, c CCIConfig) model.Decision {
	if c.ZeroCross() {
		switch {
		case prev <= 0 && cur > 0:
			return model.DecisionStrongBuy
		case prev > 0 && cur <= 0:
			return model.DecisionStrongSell
		}
		return model.DecisionNone
	}

	switch {
	case prev <= c.MaxValue && cur > c.MaxValue:
		// band-to-band flip in one bar
		if prev < c.MinValue {
			return model.DecisionStrongBuy
		}
		return model.DecisionBuy
	case prev >= c.MinValue && cur < c.MinValue:
		if prev > c.MaxValue {
			return model.DecisionStrongSell
		}
		return model.DecisionSell
	}
	return model.DecisionNone
}

func cciTrend(v float64, c CCIConfig) model.Trend {
	switch {
	case v > c.MaxValue:
		return model.TrendStrongUp
	case v > 0:
		return model.TrendUp
	case v < c.MinValue:
		return model.TrendStrongDown
	}
	return model.TrendDown
}
