package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Decision is the categorical output of a strategy for one bar.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionBuy
	DecisionStrongBuy
	DecisionSell
	DecisionStrongSell
)

var decisionNames = [...]string{"none", "buy", "strong-buy", "sell", "strong-sell"}

func (d Decision) String() string {
	if d < 0 || int(d) >= len(decisionNames) {
		return "unknown"
	}
	return decisionNames[d]
}

// ParseDecision is the inverse of Decision.String.
func ParseDecision(s string) (Decision, error) {
	for i, name := range decisionNames {
		if name == s {
			return Decision(i), nil
		}
	}
	return DecisionNone, fmt.Errorf("unknown decision %q", s)
}

func (d Decision) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Decision) UnmarshalText(b []byte) error {
	v, err := ParseDecision(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// IsBuy reports buy or strong-buy.
func (d Decision) IsBuy() bool { return d == DecisionBuy || d == DecisionStrongBuy }

// IsSell reports sell or strong-sell.
func (d Decision) IsSell() bool { return d == DecisionSell || d == DecisionStrongSell }

// Strong reports strong-buy or strong-sell.
func (d Decision) Strong() bool { return d == DecisionStrongBuy || d == DecisionStrongSell }

// Weaken maps strong decisions to their weak counterpart.
func (d Decision) Weaken() Decision {
	switch d {
	case DecisionStrongBuy:
		return DecisionBuy
	case DecisionStrongSell:
		return DecisionSell
	}
	return d
}

// Trend classifies the market state a strategy sees on one bar.
type Trend int

const (
	TrendUnknown Trend = iota
	TrendStrongUp
	TrendUp
	TrendDown
	TrendStrongDown
)

var trendNames = [...]string{"unknown", "strong-up", "up", "down", "strong-down"}

func (t Trend) String() string {
	if t < 0 || int(t) >= len(trendNames) {
		return "unknown"
	}
	return trendNames[t]
}

func (t Trend) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Trend) UnmarshalText(b []byte) error {
	for i, name := range trendNames {
		if name == string(b) {
			*t = Trend(i)
			return nil
		}
	}
	return fmt.Errorf("unknown trend %q", b)
}

// Bullish reports up or strong-up.
func (t Trend) Bullish() bool { return t == TrendUp || t == TrendStrongUp }

// Bearish reports down or strong-down.
func (t Trend) Bearish() bool { return t == TrendDown || t == TrendStrongDown }

// Signal is a strategy decision for exactly one bar timestamp. A Signal for
// an earlier timestamp is stale and is never reused for a later bar.
type Signal struct {
	Time       time.Time `json:"ts"`
	Symbol     string    `json:"symbol"`
	Interval   Interval  `json:"interval"`
	Strategy   string    `json:"strategy"`
	Decision   Decision  `json:"decision"`
	Trend      Trend     `json:"trend"`
	StopLoss   float64   `json:"stop_loss"`   // price distance, not a price
	TakeProfit float64   `json:"take_profit"` // price distance, not a price
	Bar        Bar       `json:"bar"`

	// Indicators holds the strategy's indicator readings for this bar,
	// keyed by indicator name (e.g. "CCI_4").
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Key returns "symbol:interval:strategy".
func (s Signal) Key() string {
	return s.Symbol + ":" + s.Interval.Code() + ":" + s.Strategy
}

// Clone returns a copy that shares no maps with s.
func (s Signal) Clone() Signal {
	if s.Indicators != nil {
		s.Indicators = maps.Clone(s.Indicators)
	}
	return s
}

// JSON returns the JSON-encoded signal.
func (s Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// SignalSeries is the per-bar output of one strategy run, ascending by time.
type SignalSeries struct {
	Symbol   string
	Interval Interval
	Strategy string
	Rows     []Signal
}

// Last returns the most recent row.
func (s SignalSeries) Last() (Signal, bool) {
	if len(s.Rows) == 0 {
		return Signal{}, false
	}
	return s.Rows[len(s.Rows)-1], true
}

// AsOf returns the latest row with Time <= t. Equal timestamps match, so a
// coarse row stamped exactly at a fine bar's time is visible to that bar.
func (s SignalSeries) AsOf(t time.Time) (Signal, bool) {
	lo, hi := 0, len(s.Rows)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.Rows[mid].Time.After(t) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == 0 {
		return Signal{}, false
	}
	return s.Rows[lo-1], true
}
