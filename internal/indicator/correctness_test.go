package indicator

import (
	"math"
	"testing"

	"signal-engine/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func bar(close float64) model.Bar {
	return model.Bar{Open: close, High: close + 0.5, Low: close - 0.5, Close: close}
}

func hlc(high, low, close float64) model.Bar {
	return model.Bar{Open: close, High: high, Low: low, Close: close}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after bar 3: (100+102+104)/3 = 102.0000
	// SMA after bar 4: (102+104+103)/3 = 103.0000
	// SMA after bar 5: (104+103+105)/3 = 104.0000

	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(bar(p))
		if sma.Ready() != ready[i] {
			t.Errorf("bar %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Bar 3: sum=306 → initial EMA = 306/3 = 102.0 (SMA seed)
	// Bar 4: EMA = 103*0.5 + 102.0*0.5 = 102.5
	// Bar 5: EMA = 105*0.5 + 102.5*0.5 = 103.75

	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}

	for i, p := range prices {
		ema.Update(bar(p))
		if i >= 2 {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMA_Correctness_Period5(t *testing.T) {
	// Prices: 44, 44.25, 44.50, 43.75, 44.50 → SMA seed = 44.20
	mult := 2.0 / 6.0

	ema := NewEMA(5)
	for _, p := range []float64{44, 44.25, 44.50, 43.75, 44.50} {
		ema.Update(bar(p))
	}
	assertClose(t, "EMA(5) seed", ema.Value(), 44.20, 0.0001)

	ema.Update(bar(44.25))
	expected6 := 44.25*mult + 44.20*(1-mult)
	assertClose(t, "EMA(5) bar 6", ema.Value(), expected6, 0.0001)

	ema.Update(bar(44.00))
	assertClose(t, "EMA(5) bar 7", ema.Value(), 44.00*mult+expected6*(1-mult), 0.0001)
}

// ────────────────────────────────────────────────────────────
// SMMA Correctness (Wilder's Smoothing)
// ────────────────────────────────────────────────────────────

func TestSMMA_Correctness_Period3(t *testing.T) {
	// Bars 1-3: seed = (100+102+104)/3 = 102.0
	// Bar 4: SMMA = (102.0 * 2 + 103) / 3 = 102.3333
	// Bar 5: SMMA = (102.3333 * 2 + 105) / 3 = 103.2222

	smma := NewSMMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.3333, 103.2222}

	for i, p := range prices {
		smma.Update(bar(p))
		if i >= 2 {
			assertClose(t, "SMMA(3)", smma.Value(), expected[i], 0.001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// CCI Correctness
// ────────────────────────────────────────────────────────────

func TestCCI_Correctness_Period3(t *testing.T) {
	// Flat bars so TP == close.
	// Window 1,2,3: mean=2, MD=2/3 → (3-2)/(0.015*2/3) = 100
	// Window 2,3,4: mean=3, MD=2/3 → 100
	// Window 3,4,2: mean=3, MD=2/3 → (2-3)/(0.01) = -100
	cci := NewCCI(3)
	prices := []float64{1, 2, 3, 4, 2}
	expected := []float64{0, 0, 100, 100, -100}

	for i, p := range prices {
		cci.Update(model.Bar{High: p, Low: p, Close: p})
		if cci.Ready() != (i >= 2) {
			t.Errorf("bar %d: Ready()=%v", i, cci.Ready())
		}
		if i >= 2 {
			assertClose(t, "CCI(3)", cci.Value(), expected[i], 1e-9)
		}
	}
}

func TestCCI_FlatWindowIsZero(t *testing.T) {
	cci := NewCCI(3)
	for i := 0; i < 5; i++ {
		cci.Update(bar(50))
	}
	if cci.Value() != 0 {
		t.Errorf("flat window CCI = %v, want 0", cci.Value())
	}
}

// ────────────────────────────────────────────────────────────
// ATR Correctness
// ────────────────────────────────────────────────────────────

func TestATR_Correctness_Period2(t *testing.T) {
	// b0 (10,8,9) primes prevClose
	// b1 (11,9,10): TR = max(2, 2, 0) = 2
	// b2 (12,9,11): TR = max(3, 2, 1) = 3 → seed (2+3)/2 = 2.5
	// b3 (11,10,10.5): TR = max(1, 0, 1) = 1 → (2.5*1 + 1)/2 = 1.75
	atr := NewATR(2)
	bars := []model.Bar{hlc(10, 8, 9), hlc(11, 9, 10), hlc(12, 9, 11), hlc(11, 10, 10.5)}
	ready := []bool{false, false, true, true}
	expected := []float64{0, 0, 2.5, 1.75}

	for i, b := range bars {
		atr.Update(b)
		if atr.Ready() != ready[i] {
			t.Errorf("bar %d: Ready()=%v, want %v", i, atr.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "ATR(2)", atr.Value(), expected[i], 1e-9)
		}
	}
}

func TestTrueRange_GapDown(t *testing.T) {
	// gap below previous close dominates the bar range
	assertClose(t, "TR", TrueRange(hlc(95, 93, 94), 100), 7, 1e-12)
}

// ────────────────────────────────────────────────────────────
// Run / Series
// ────────────────────────────────────────────────────────────

func TestRun_DropsWarmupBars(t *testing.T) {
	bars := make([]model.Bar, 10)
	for i := range bars {
		bars[i] = bar(float64(100 + i))
	}

	cases := []struct {
		ind    Indicator
		offset int
	}{
		{NewSMA(3), 2},
		{NewEMA(4), 3},
		{NewSMMA(5), 4},
		{NewCCI(4), 3},
		{NewATR(4), 4},
	}
	for _, tc := range cases {
		s := Run(tc.ind, bars)
		if s.Offset != tc.offset {
			t.Errorf("%s: offset=%d, want %d", s.Name, s.Offset, tc.offset)
		}
		if len(s.Values) != len(bars)-tc.offset {
			t.Errorf("%s: %d values, want %d", s.Name, len(s.Values), len(bars)-tc.offset)
		}
		if _, ok := s.At(tc.offset - 1); ok {
			t.Errorf("%s: value before offset", s.Name)
		}
		last, _ := s.Last()
		if v, ok := s.At(len(bars) - 1); !ok || v != last {
			t.Errorf("%s: At(last)=%v,%v, Last()=%v", s.Name, v, ok, last)
		}
	}
}

func TestRun_ShortInputYieldsNoValues(t *testing.T) {
	s := Run(NewCCI(20), []model.Bar{bar(1), bar(2)})
	if len(s.Values) != 0 || s.Offset != 2 {
		t.Errorf("expected empty series at offset 2, got %+v", s)
	}
	if _, ok := s.Last(); ok {
		t.Error("Last() on empty series should report false")
	}
}

func TestRun_ResetsIndicator(t *testing.T) {
	ema := NewEMA(3)
	bars := []model.Bar{bar(1), bar(2), bar(3), bar(4)}
	first := Run(ema, bars)
	second := Run(ema, bars)
	if first.Values[len(first.Values)-1] != second.Values[len(second.Values)-1] {
		t.Errorf("Run is not repeatable: %v vs %v", first.Values, second.Values)
	}
}

func TestIndicatorNames(t *testing.T) {
	for want, ind := range map[string]Indicator{
		"SMA_20": NewSMA(20), "EMA_9": NewEMA(9), "SMMA_14": NewSMMA(14), "CCI_4": NewCCI(4), "ATR_14": NewATR(14),
	} {
		if ind.Name() != want {
			t.Errorf("Name() = %q, want %q", ind.Name(), want)
		}
	}
}

func TestNewIndicator_PanicsOnBadPeriod(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for period 0")
		}
	}()
	NewEMA(0)
}
