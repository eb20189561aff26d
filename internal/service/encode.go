package service

import (
	"sort"
	"time"

	"signal-engine/internal/backtest"
	"signal-engine/internal/model"
)

// BarColumns are the columns of a BarTable row.
var BarColumns = []string{"ts", "open", "high", "low", "close", "volume"}

// BarTable is a bar series as columns and rows. ts is unix milliseconds.
type BarTable struct {
	Symbol   string      `json:"symbol"`
	Interval string      `json:"interval"`
	Limit    int         `json:"limit"`
	End      time.Time   `json:"end"`
	Columns  []string    `json:"columns"`
	Rows     [][]float64 `json:"rows"`
}

// EncodeBars renders s as a table.
func EncodeBars(s model.BarSeries) BarTable {
	t := BarTable{
		Symbol:   s.Symbol,
		Interval: s.Interval.Code(),
		Limit:    s.Limit,
		End:      s.End(),
		Columns:  BarColumns,
		Rows:     make([][]float64, 0, s.Len()),
	}
	for i := 0; i < s.Len(); i++ {
		b := s.At(i)
		t.Rows = append(t.Rows, []float64{float64(b.Time.UnixMilli()), b.Open, b.High, b.Low, b.Close, b.Volume})
	}
	return t
}

// SignalRecord is the flat form of one signal.
type SignalRecord struct {
	Time       time.Time          `json:"ts"`
	Symbol     string             `json:"symbol"`
	Interval   string             `json:"interval"`
	Strategy   string             `json:"strategy"`
	Decision   string             `json:"decision"`
	Trend      string             `json:"trend"`
	StopLoss   float64            `json:"stop_loss"`
	TakeProfit float64            `json:"take_profit"`
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	Volume     float64            `json:"volume"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// EncodeSignal renders sig as a record.
func EncodeSignal(sig model.Signal) SignalRecord {
	sig = sig.Clone()
	return SignalRecord{
		Time:       sig.Time,
		Symbol:     sig.Symbol,
		Interval:   sig.Interval.Code(),
		Strategy:   sig.Strategy,
		Decision:   sig.Decision.String(),
		Trend:      sig.Trend.String(),
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Open:       sig.Bar.Open,
		High:       sig.Bar.High,
		Low:        sig.Bar.Low,
		Close:      sig.Bar.Close,
		Volume:     sig.Bar.Volume,
		Indicators: sig.Indicators,
	}
}

// PositionRecord is the flat form of one closed position.
type PositionRecord struct {
	Direction   string    `json:"direction"`
	OpenTime    time.Time `json:"open_ts"`
	OpenPrice   float64   `json:"open_price"`
	CloseTime   time.Time `json:"close_ts"`
	ClosePrice  float64   `json:"close_price"`
	Quantity    float64   `json:"quantity"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit  float64   `json:"take_profit"`
	Reason      string    `json:"reason"`
	Fee         float64   `json:"fee"`
	Profit      float64   `json:"profit"`
	ProfitPct   float64   `json:"profit_pct"`
	RunUpPct    float64   `json:"run_up_pct"`
	DrawdownPct float64   `json:"drawdown_pct"`
}

// StatsRow is one line of a simulation summary.
type StatsRow struct {
	Group          string  `json:"group"`
	Count          int     `json:"count"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"`
	Profit         float64 `json:"profit"`
	Loss           float64 `json:"loss"`
	Net            float64 `json:"net"`
	AvgProfitPct   float64 `json:"avg_profit_pct"`
	AvgRunUpPct    float64 `json:"avg_run_up_pct"`
	AvgDrawdownPct float64 `json:"avg_drawdown_pct"`
}

// SimulationRecord is the flat form of a simulation result.
type SimulationRecord struct {
	ID             string           `json:"id"`
	Symbol         string           `json:"symbol"`
	Interval       string           `json:"interval"`
	Strategy       string           `json:"strategy"`
	Options        backtest.Options `json:"options"`
	Start          time.Time        `json:"start"`
	End            time.Time        `json:"end"`
	Bars           int              `json:"bars"`
	InitialBalance float64          `json:"initial_balance"`
	FinalBalance   float64          `json:"final_balance"`
	Profit         float64          `json:"profit"`
	Positions      []PositionRecord `json:"positions"`
	OpenPosition   *PositionRecord  `json:"open_position,omitempty"`
	Total          StatsRow         `json:"total"`
	ByDirection    []StatsRow       `json:"by_direction"`
	ByReason       []StatsRow       `json:"by_reason"`
}

// EncodeSimulation renders r as a record. Group rows are sorted by name.
func EncodeSimulation(r backtest.Result) SimulationRecord {
	rec := SimulationRecord{
		ID:             r.ID,
		Symbol:         r.Symbol,
		Interval:       r.Interval.Code(),
		Strategy:       r.Strategy,
		Options:        r.Options,
		Start:          r.Start,
		End:            r.End,
		Bars:           r.Bars,
		InitialBalance: r.InitialBalance,
		FinalBalance:   r.FinalBalance,
		Profit:         r.Profit,
		Positions:      make([]PositionRecord, 0, len(r.Positions)),
		Total:          statsRow("total", r.Summary.Total),
		ByDirection:    statsRows(r.Summary.ByDirection),
		ByReason:       statsRows(r.Summary.ByReason),
	}
	for _, p := range r.Positions {
		rec.Positions = append(rec.Positions, positionRecord(p))
	}
	if r.Open != nil {
		p := positionRecord(*r.Open)
		rec.OpenPosition = &p
	}
	return rec
}

func positionRecord(p backtest.Position) PositionRecord {
	return PositionRecord{
		Direction:   p.Direction.String(),
		OpenTime:    p.OpenTime,
		OpenPrice:   p.OpenPrice,
		CloseTime:   p.CloseTime,
		ClosePrice:  p.ClosePrice,
		Quantity:    p.Quantity,
		StopLoss:    p.StopLoss,
		TakeProfit:  p.TakeProfit,
		Reason:      p.Reason.String(),
		Fee:         p.Fee,
		Profit:      p.Profit,
		ProfitPct:   p.ProfitPct,
		RunUpPct:    p.RunUpPct(),
		DrawdownPct: p.DrawdownPct(),
	}
}

func statsRow(group string, s backtest.Stats) StatsRow {
	return StatsRow{
		Group:          group,
		Count:          s.Count,
		Wins:           s.Wins,
		Losses:         s.Losses,
		WinRate:        s.WinRate(),
		Profit:         s.Profit,
		Loss:           s.Loss,
		Net:            s.Net,
		AvgProfitPct:   s.AvgProfitPct,
		AvgRunUpPct:    s.AvgRunUpPct,
		AvgDrawdownPct: s.AvgDrawdownPct,
	}
}

func statsRows(m map[string]backtest.Stats) []StatsRow {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]StatsRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, statsRow(k, m[k]))
	}
	return out
}
