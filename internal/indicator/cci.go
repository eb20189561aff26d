package indicator

import (
	"math"

	"signal-engine/internal/model"
)

// cciConstant scales CCI so that roughly 70-80% of values fall in [-100, 100].
const cciConstant = 0.015

// CCI calculates the Commodity Channel Index over typical prices:
//
//	CCI = (TP - SMA(TP)) / (0.015 * MeanDeviation(TP))
//
// A flat window (zero mean deviation) yields 0.
type CCI struct {
	period  int
	buf     []float64 // typical prices, circular
	idx     int
	count   int
	sum     float64
	current float64
}

// NewCCI creates a new CCI indicator with the given period.
func NewCCI(period int) *CCI {
	checkPeriod(period)
	return &CCI{period: period, buf: make([]float64, period)}
}

func (c *CCI) Name() string { return name("CCI", c.period) }

func (c *CCI) Update(bar model.Bar) {
	tp := bar.TypicalPrice()
	if c.count >= c.period {
		c.sum -= c.buf[c.idx]
	}
	c.buf[c.idx] = tp
	c.sum += tp
	c.idx = (c.idx + 1) % c.period
	c.count++

	if c.count < c.period {
		return
	}

	mean := c.sum / float64(c.period)
	var dev float64
	for _, v := range c.buf {
		dev += math.Abs(v - mean)
	}
	dev /= float64(c.period)

	if dev == 0 {
		c.current = 0
		return
	}
	c.current = (tp - mean) / (cciConstant * dev)
}

func (c *CCI) Value() float64 { return c.current }
func (c *CCI) Ready() bool    { return c.count >= c.period }

// Reset clears the CCI state for reuse.
func (c *CCI) Reset() {
	c.idx = 0
	c.count = 0
	c.sum = 0
	c.current = 0
	for i := range c.buf {
		c.buf[i] = 0
	}
}
