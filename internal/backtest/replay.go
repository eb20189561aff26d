package backtest

import (
	"fmt"
	"math"

	"signal-engine/internal/model"
	"signal-engine/internal/strategy"
)

// Simulate replays a signal series bar by bar in ascending time order.
//
// With no position open, a strong-buy opens a long and a strong-sell opens a
// short at the bar's close, sized from the whole running balance. While a
// position is open each bar first widens the price extremes, then checks the
// stop, the target and an opposite signal, in that order. A bar that closes
// a position is re-examined for a new open. The fee is charged once per
// position as balance * FeeRate.
func Simulate(series model.SignalSeries, risk strategy.RiskParams, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	for i := 1; i < len(series.Rows); i++ {
		if !series.Rows[i].Time.After(series.Rows[i-1].Time) {
			return Result{}, fmt.Errorf("signal rows out of order at %d", i)
		}
	}

	res := Result{
		Symbol:         series.Symbol,
		Interval:       series.Interval,
		Strategy:       series.Strategy,
		Options:        opts,
		Bars:           len(series.Rows),
		InitialBalance: opts.Balance,
		Positions:      []Position{},
	}
	if n := len(series.Rows); n > 0 {
		res.Start = series.Rows[0].Time
		res.End = series.Rows[n-1].Time
	}

	balance := opts.Balance
	var pos *Position
	for _, row := range series.Rows {
		if pos != nil {
			pos.observe(row.Bar)
			if reason, price, ok := pos.exit(row); ok {
				pos.close(row, reason, price, opts.FeeRate)
				balance += pos.Profit
				res.Positions = append(res.Positions, *pos)
				pos = nil
			} else if opts.Trailing && risk.Trailing() {
				pos.trail(risk)
			}
		}
		if pos == nil && row.Decision.Strong() && row.Bar.Close > 0 {
			pos = open(row, balance, opts)
		}
	}

	res.FinalBalance = balance
	res.Profit = balance - opts.Balance
	if pos != nil {
		p := *pos
		res.Open = &p
	}
	res.Summary = summarize(res.Positions)
	return res, nil
}

func open(row model.Signal, balance float64, opts Options) *Position {
	price := row.Bar.Close
	p := &Position{
		Direction: Long,
		Status:    StatusOpen,
		OpenTime:  row.Time,
		OpenPrice: price,
		Quantity:  balance / price,
		Balance:   balance,
		MaxPrice:  price,
		MinPrice:  price,
	}
	if row.Decision == model.DecisionStrongSell {
		p.Direction = Short
	}

	sl, tp := row.StopLoss, row.TakeProfit
	if opts.StopLossRate > 0 {
		sl = price * opts.StopLossRate
	}
	if opts.TakeProfitRate > 0 {
		tp = price * opts.TakeProfitRate
	}
	if sl > 0 {
		p.StopLoss = p.level(-sl)
	}
	if tp > 0 {
		p.TakeProfit = p.level(tp)
	}
	p.initialStop = p.StopLoss
	return p
}

// level returns the price d away from the open in the position's favour
// (negative d is against it).
func (p *Position) level(d float64) float64 {
	if p.Direction == Short {
		return p.OpenPrice - d
	}
	return p.OpenPrice + d
}

func (p *Position) observe(b model.Bar) {
	p.MaxPrice = math.Max(p.MaxPrice, b.High)
	p.MinPrice = math.Min(p.MinPrice, b.Low)
}

// exit reports the first close condition that fires on row, with its fill
// price.
func (p *Position) exit(row model.Signal) (CloseReason, float64, bool) {
	b := row.Bar
	if p.Direction == Long {
		switch {
		case p.StopLoss > 0 && b.Low <= p.StopLoss:
			return ReasonStopLoss, p.StopLoss, true
		case p.TakeProfit > 0 && b.High >= p.TakeProfit:
			return ReasonTakeProfit, p.TakeProfit, true
		case row.Decision.IsSell():
			return ReasonSignal, b.Close, true
		}
		return ReasonNone, 0, false
	}
	switch {
	case p.StopLoss > 0 && b.High >= p.StopLoss:
		return ReasonStopLoss, p.StopLoss, true
	case p.TakeProfit > 0 && b.Low <= p.TakeProfit:
		return ReasonTakeProfit, p.TakeProfit, true
	case row.Decision.IsBuy():
		return ReasonSignal, b.Close, true
	}
	return ReasonNone, 0, false
}

func (p *Position) close(row model.Signal, reason CloseReason, price, feeRate float64) {
	p.Status = StatusClosed
	p.CloseTime = row.Time
	p.ClosePrice = price
	p.Reason = reason
	p.Fee = p.Balance * feeRate

	gross := (price - p.OpenPrice) * p.Quantity
	if p.Direction == Short {
		gross = -gross
	}
	p.Profit = gross - p.Fee
	p.ProfitPct = p.Profit / p.Balance * 100
}

// trail pulls the stop toward the price after a bar that did not close the
// position, so it takes effect from the next bar.
func (p *Position) trail(r strategy.RiskParams) {
	if p.initialStop == 0 {
		return
	}
	favour := p.MaxPrice - p.OpenPrice
	if p.Direction == Short {
		favour = p.OpenPrice - p.MinPrice
	}
	steps := math.Floor(favour / (r.TrailingStep * p.OpenPrice))
	if steps < 1 {
		return
	}
	pull := steps * r.TrailingIncrement
	if r.TrailingLimit > 0 {
		pull = math.Min(pull, r.TrailingLimit)
	}
	d := pull * p.OpenPrice
	if p.Direction == Short {
		p.StopLoss = math.Min(p.StopLoss, p.initialStop-d)
	} else {
		p.StopLoss = math.Max(p.StopLoss, p.initialStop+d)
	}
}
