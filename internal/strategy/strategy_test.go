package strategy

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/indicator"
	"signal-engine/internal/model"
)

func TestCCI_FixtureRegression(t *testing.T) {
	s := loadFixture(t)
	cfg, err := DefaultRegistry().Lookup("cci4")
	require.NoError(t, err)

	out, err := Evaluate(cfg, s)
	require.NoError(t, err)

	// input rows - (length + 1)
	require.Len(t, out.Rows, 50-(4+1))
	for i, row := range out.Rows {
		_, ok := row.Indicators["CCI_4"]
		assert.Truef(t, ok, "row %d has no CCI value", i)
		assert.Equal(t, "cci4", row.Strategy)
	}

	last, _ := out.Last()
	assert.InDelta(t, 76.56249999999332, last.Indicators["CCI_4"], 1e-9)
	assert.InDelta(t, 2*1.183453467213583, last.StopLoss, 1e-9)
	assert.InDelta(t, 3*1.183453467213583, last.TakeProfit, 1e-9)
	assert.Equal(t, model.TrendUp, last.Trend)
	assert.Equal(t, model.DecisionNone, last.Decision)
	assert.True(t, last.Time.Equal(s.End()))
	assert.Equal(t, s.At(s.Len()-1), last.Bar)
}

func TestCCI_Decision(t *testing.T) {
	band := CCIConfig{Length: 4, MinValue: -100, MaxValue: 100}
	zero := CCIConfig{Length: 4}

	cases := []struct {
		name      string
		cfg       CCIConfig
		prev, cur float64
		want      model.Decision
	}{
		{"zero cross up", zero, -5, 3, model.DecisionStrongBuy},
		{"zero cross up from zero", zero, 0, 3, model.DecisionStrongBuy},
		{"zero cross down", zero, 5, -3, model.DecisionStrongSell},
		{"zero cross down to zero", zero, 5, 0, model.DecisionStrongSell},
		{"zero stays at zero", zero, 0, 0, model.DecisionNone},
		{"zero leaves zero downwards", zero, 0, -5, model.DecisionNone},
		{"zero no cross", zero, 5, 7, model.DecisionNone},
		{"band buy", band, 50, 120, model.DecisionBuy},
		{"band strong buy", band, -150, 120, model.DecisionStrongBuy},
		{"band sell", band, -50, -120, model.DecisionSell},
		{"band strong sell", band, 150, -120, model.DecisionStrongSell},
		{"band stays above", band, 110, 130, model.DecisionNone},
		{"band inside", band, -20, 80, model.DecisionNone},
		{"band at edge is inside", band, 50, 100, model.DecisionNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cciDecision(tc.prev, tc.cur, tc.cfg))
		})
	}
}

func TestCCI_Trend(t *testing.T) {
	band := CCIConfig{Length: 4, MinValue: -100, MaxValue: 100}
	assert.Equal(t, model.TrendStrongUp, cciTrend(150, band))
	assert.Equal(t, model.TrendUp, cciTrend(10, band))
	assert.Equal(t, model.TrendDown, cciTrend(-10, band))
	assert.Equal(t, model.TrendStrongDown, cciTrend(-150, band))
}

func TestEvaluate_InsufficientHistory(t *testing.T) {
	for _, cfg := range Builtins() {
		s := closesSeries(t, make([]float64, cfg.MinBars()-1))
		_, err := Evaluate(cfg, s)
		assert.Truef(t, errors.Is(err, model.ErrInsufficientHistory), "%s: got %v", cfg.ID(), err)

		closes := make([]float64, cfg.MinBars())
		for i := range closes {
			closes[i] = 100 + float64(i%3)
		}
		out, err := Evaluate(cfg, closesSeries(t, closes))
		require.NoErrorf(t, err, "%s", cfg.ID())
		assert.Lenf(t, out.Rows, 1, "%s: MinBars must yield exactly one row", cfg.ID())
	}
}

// A series that crosses upward exactly once yields exactly one strong-buy,
// on the first bar where short > long.
func TestEMACross_SingleUpwardCross(t *testing.T) {
	s := valleySeries(t, 40, 30)
	cfg := EMACrossConfig{Name: "x", Short: 3, Long: 8, StopShift: 0.01}

	out, err := Evaluate(cfg, s)
	require.NoError(t, err)

	short := indicator.Run(indicator.NewEMA(3), s.Bars())
	long := indicator.Run(indicator.NewEMA(8), s.Bars())
	first := -1
	for i := long.Offset; i < s.Len(); i++ {
		a, _ := short.At(i)
		b, _ := long.At(i)
		if a > b {
			first = i
			break
		}
	}
	require.Greater(t, first, long.Offset, "fixture must start below and cross later")

	var buys, sells []int
	for _, row := range out.Rows {
		switch row.Decision {
		case model.DecisionStrongBuy:
			buys = append(buys, int(row.Time.Sub(t0).Hours()))
		case model.DecisionStrongSell:
			sells = append(sells, int(row.Time.Sub(t0).Hours()))
		}
	}
	assert.Equal(t, []int{first}, buys)
	assert.Empty(t, sells)
}

func TestEMACross_StopsAndTrend(t *testing.T) {
	s := valleySeries(t, 40, 30)
	cfg := EMACrossConfig{Name: "x", Short: 3, Long: 8, StopShift: 0.01}
	out, err := Evaluate(cfg, s)
	require.NoError(t, err)

	for _, row := range out.Rows {
		assert.Greater(t, row.StopLoss, 0.0)
		assert.InDelta(t, RewardRatio*row.StopLoss, row.TakeProfit, 1e-12)
	}
	assert.Equal(t, model.TrendDown, out.Rows[0].Trend)
	last, _ := out.Last()
	assert.Equal(t, model.TrendUp, last.Trend)
}

func TestEMAStop(t *testing.T) {
	// long EMA below close: stop sits shift below the EMA
	assert.InDelta(t, 100-95*0.99, emaStop(100, 95, 0.01, true), 1e-9)
	// long EMA above close: clipped to close, then shifted
	assert.InDelta(t, 1.0, emaStop(100, 105, 0.01, true), 1e-9)
	assert.InDelta(t, 105*1.01-100, emaStop(100, 105, 0.01, false), 1e-9)
	assert.InDelta(t, 1.0, emaStop(100, 95, 0.01, false), 1e-9)
}

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		s, m, l float64
		want    model.Trend
	}{
		{3, 2, 1, model.TrendStrongUp},
		{2, 3, 1, model.TrendUp},
		{1, 2, 3, model.TrendStrongDown},
		{2, 1, 3, model.TrendDown},
		{1, 3, 2, model.TrendDown},
		{1, 1, 1, model.TrendDown},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, classifyTrend(tc.s, tc.m, tc.l), "%v/%v/%v", tc.s, tc.m, tc.l)
	}
}

func TestEMATrend_SignalsOnEntryIntoStrongTrend(t *testing.T) {
	s := valleySeries(t, 60, 60)
	cfg := EMATrendConfig{Name: "trend", Short: 3, Medium: 6, Long: 12, StopShift: 0.01}

	out, err := Evaluate(cfg, s)
	require.NoError(t, err)
	require.Equal(t, model.TrendStrongDown, out.Rows[0].Trend, "series must start in a strong downtrend")

	strongBuys := 0
	firstStrongUp := -1
	for i, row := range out.Rows {
		if row.Trend == model.TrendStrongUp && firstStrongUp < 0 {
			firstStrongUp = i
		}
		if row.Decision == model.DecisionStrongBuy {
			strongBuys++
			assert.Equal(t, firstStrongUp, i)
		}
		assert.NotEqual(t, model.DecisionStrongSell, row.Decision, "already strong-down at start")
	}
	assert.Equal(t, 1, strongBuys)
	require.Greater(t, firstStrongUp, 0)
	assert.Equal(t, model.TrendUp, out.Rows[firstStrongUp-1].Trend, "correction state precedes strong-up")
}

func TestSignalRowsAreFinite(t *testing.T) {
	s := loadFixture(t)
	for _, cfg := range []Config{
		CCIConfig{Name: "c", Length: 4},
		EMACrossConfig{Name: "e", Short: 3, Long: 10, StopShift: 0.01},
		EMATrendConfig{Name: "t", Short: 3, Medium: 6, Long: 12, StopShift: 0.01},
	} {
		out, err := Evaluate(cfg, s)
		require.NoError(t, err)
		for _, row := range out.Rows {
			assert.False(t, math.IsNaN(row.StopLoss) || math.IsInf(row.StopLoss, 0))
			for name, v := range row.Indicators {
				assert.Falsef(t, math.IsNaN(v), "%s %s is NaN", cfg.ID(), name)
			}
		}
	}
}
