package indicator

import (
	"math"

	"signal-engine/internal/model"
)

// ATR calculates Average True Range with Wilder smoothing. True range needs
// the previous close, so the first bar only primes the indicator and the
// first value appears on bar index period.
type ATR struct {
	period    int
	smma      *SMMA
	prevClose float64
	primed    bool
}

// NewATR creates a new ATR indicator with the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period, smma: NewSMMA(period)}
}

func (a *ATR) Name() string { return name("ATR", a.period) }

func (a *ATR) Update(bar model.Bar) {
	if !a.primed {
		a.prevClose = bar.Close
		a.primed = true
		return
	}
	a.smma.Add(TrueRange(bar, a.prevClose))
	a.prevClose = bar.Close
}

func (a *ATR) Value() float64 { return a.smma.Value() }
func (a *ATR) Ready() bool    { return a.smma.Ready() }

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.smma.Reset()
	a.prevClose = 0
	a.primed = false
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(bar model.Bar, prevClose float64) float64 {
	return math.Max(bar.High-bar.Low, math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
}
