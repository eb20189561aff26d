package backtest

import (
	"fmt"
	"time"

	"signal-engine/internal/exchange"
	"signal-engine/internal/model"
)

// Direction is the side of a simulated position.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "long":
		*d = Long
	case "short":
		*d = Short
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// CloseReason records which condition closed a position.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	ReasonStopLoss
	ReasonTakeProfit
	ReasonSignal
)

var reasonNames = [...]string{"", "stop-loss", "take-profit", "signal"}

func (r CloseReason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

func (r CloseReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *CloseReason) UnmarshalText(b []byte) error {
	for i, name := range reasonNames {
		if name == string(b) {
			*r = CloseReason(i)
			return nil
		}
	}
	return fmt.Errorf("unknown close reason %q", b)
}

// Status of a position.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Position is one synthetic trade. Prices are absolute; StopLoss and
// TakeProfit of zero mean the level is not set.
type Position struct {
	Direction  Direction `json:"direction"`
	Status     Status    `json:"status"`
	OpenTime   time.Time `json:"open_ts"`
	OpenPrice  float64   `json:"open_price"`
	Quantity   float64   `json:"quantity"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`

	CloseTime  time.Time   `json:"close_ts,omitzero"`
	ClosePrice float64     `json:"close_price,omitempty"`
	Reason     CloseReason `json:"reason,omitempty"`

	// Extremes of the price range seen while open.
	MaxPrice float64 `json:"max_price"`
	MinPrice float64 `json:"min_price"`

	Balance   float64 `json:"balance"` // balance the position was sized from
	Fee       float64 `json:"fee"`
	Profit    float64 `json:"profit"`
	ProfitPct float64 `json:"profit_pct"`

	initialStop float64
}

// RunUpPct is the best excursion in the position's favour, in percent of
// the open price.
func (p Position) RunUpPct() float64 {
	if p.OpenPrice == 0 {
		return 0
	}
	if p.Direction == Short {
		return (p.OpenPrice - p.MinPrice) / p.OpenPrice * 100
	}
	return (p.MaxPrice - p.OpenPrice) / p.OpenPrice * 100
}

// DrawdownPct is the worst excursion against the position, in percent of
// the open price.
func (p Position) DrawdownPct() float64 {
	if p.OpenPrice == 0 {
		return 0
	}
	if p.Direction == Short {
		return (p.MaxPrice - p.OpenPrice) / p.OpenPrice * 100
	}
	return (p.OpenPrice - p.MinPrice) / p.OpenPrice * 100
}

// Options are the per-run simulation parameters.
type Options struct {
	Balance float64 `json:"balance"`
	Limit   int     `json:"limit"`
	// FeeRate is charged as given; zero means no fee. Inputs that leave the
	// fee out start from DefaultFeeRate.
	FeeRate float64 `json:"fee_rate"`

	// StopLossRate and TakeProfitRate, when positive, replace the signal's
	// stop and target distances with a fraction of the open price.
	StopLossRate   float64 `json:"stop_loss_rate"`
	TakeProfitRate float64 `json:"take_profit_rate"`

	// Trailing enables the strategy's trailing-stop parameters.
	Trailing bool `json:"trailing"`

	AsOf       time.Time `json:"as_of"`
	ClosedBars bool      `json:"closed_bars"`
}

// Defaults.
const (
	DefaultBalance = 1000.0
	DefaultLimit   = 500
	DefaultFeeRate = 0.001
)

// MaxLimit bounds the bars of one simulation to a single klines request.
const MaxLimit = exchange.MaxLimit

// WithDefaults fills zero Balance and Limit. FeeRate is left alone.
func (o Options) WithDefaults() Options {
	if o.Balance == 0 {
		o.Balance = DefaultBalance
	}
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	return o
}

// Validate rejects out-of-range parameters.
func (o Options) Validate() error {
	switch {
	case o.Balance <= 0:
		return fmt.Errorf("balance must be positive, got %g", o.Balance)
	case o.Limit <= 0 || o.Limit > MaxLimit:
		return fmt.Errorf("limit must be in 1..%d, got %d", MaxLimit, o.Limit)
	case o.FeeRate < 0 || o.FeeRate >= 1:
		return fmt.Errorf("fee rate must be in [0, 1), got %g", o.FeeRate)
	case o.StopLossRate < 0 || o.StopLossRate >= 1:
		return fmt.Errorf("stop-loss rate must be in [0, 1), got %g", o.StopLossRate)
	case o.TakeProfitRate < 0:
		return fmt.Errorf("take-profit rate must be non-negative, got %g", o.TakeProfitRate)
	}
	return nil
}

// Stats aggregates a group of closed positions.
type Stats struct {
	Count  int     `json:"count"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
	Profit float64 `json:"profit"` // sum of winning positions
	Loss   float64 `json:"loss"`   // sum of losing positions, as a positive amount
	Net    float64 `json:"net"`

	AvgProfitPct   float64 `json:"avg_profit_pct"`
	AvgRunUpPct    float64 `json:"avg_run_up_pct"`
	AvgDrawdownPct float64 `json:"avg_drawdown_pct"`

	sumProfitPct, sumRunUp, sumDrawdown float64
}

// Summary groups statistics by direction and by close reason.
type Summary struct {
	Total       Stats            `json:"total"`
	ByDirection map[string]Stats `json:"by_direction"`
	ByReason    map[string]Stats `json:"by_reason"`
}

// Result is the outcome of one simulation run. It is not modified after
// Simulate returns.
type Result struct {
	ID       string         `json:"id"`
	Symbol   string         `json:"symbol"`
	Interval model.Interval `json:"interval"`
	Strategy string         `json:"strategy"`
	Options  Options        `json:"options"`

	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`
	Bars  int       `json:"bars"`

	InitialBalance float64 `json:"initial_balance"`
	FinalBalance   float64 `json:"final_balance"`
	Profit         float64 `json:"profit"`

	Positions []Position `json:"positions"`
	// Open is the position still open after the last bar, if any. It is not
	// part of Positions or Summary.
	Open    *Position `json:"open,omitempty"`
	Summary Summary   `json:"summary"`
}
