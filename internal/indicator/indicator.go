// Package indicator provides technical indicator calculations over bar data.
//
// All indicators implement the Indicator interface, receiving bars one at a
// time and producing float64 values. Run replays a whole series through an
// indicator and keeps only the values produced once its window is full.
package indicator

import (
	"fmt"

	"signal-engine/internal/model"
)

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "CCI_20", "EMA_9").
	Name() string

	// Update feeds the next bar and recalculates.
	Update(bar model.Bar)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears state for reuse.
	Reset()
}

// Series is the output of one indicator over a bar series. Values[i] belongs
// to bar Offset+i; bars before Offset produced no value and are dropped.
type Series struct {
	Name   string
	Offset int
	Values []float64
}

// At returns the value for bar index i.
func (s Series) At(i int) (float64, bool) {
	j := i - s.Offset
	if j < 0 || j >= len(s.Values) {
		return 0, false
	}
	return s.Values[j], true
}

// Last returns the most recent value.
func (s Series) Last() (float64, bool) {
	if len(s.Values) == 0 {
		return 0, false
	}
	return s.Values[len(s.Values)-1], true
}

// Run resets ind and feeds it every bar in order.
func Run(ind Indicator, bars []model.Bar) Series {
	ind.Reset()
	out := Series{Name: ind.Name(), Offset: len(bars)}
	for i, b := range bars {
		ind.Update(b)
		if !ind.Ready() {
			continue
		}
		if out.Values == nil {
			out.Offset = i
			out.Values = make([]float64, 0, len(bars)-i)
		}
		out.Values = append(out.Values, ind.Value())
	}
	return out
}

func name(kind string, period int) string {
	return fmt.Sprintf("%s_%d", kind, period)
}

func checkPeriod(period int) {
	if period < 1 {
		panic(fmt.Sprintf("indicator: period must be >= 1, got %d", period))
	}
}
