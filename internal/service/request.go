package service

import (
	"fmt"
	"strings"
	"time"

	"signal-engine/internal/backtest"
	"signal-engine/internal/model"
)

// SignalRequest selects one signal. Build it with NewSignalRequest.
type SignalRequest struct {
	symbol     string
	interval   model.Interval
	strategy   string
	closedBars bool
	asOf       time.Time
}

// NewSignalRequest validates the arguments of a signal lookup. A zero asOf
// means "now" at call time.
func NewSignalRequest(symbol, interval, strategy string, closedBars bool, asOf time.Time) (SignalRequest, error) {
	sym, iv, err := parseCommon(symbol, interval)
	if err != nil {
		return SignalRequest{}, err
	}
	strategy = strings.TrimSpace(strategy)
	if strategy == "" {
		return SignalRequest{}, fmt.Errorf("%w: empty id", model.ErrUnknownStrategy)
	}
	return SignalRequest{symbol: sym, interval: iv, strategy: strategy, closedBars: closedBars, asOf: asOf}, nil
}

func (r SignalRequest) Symbol() string           { return r.symbol }
func (r SignalRequest) Interval() model.Interval { return r.interval }
func (r SignalRequest) Strategy() string         { return r.strategy }
func (r SignalRequest) ClosedBars() bool         { return r.closedBars }

// BarsRequest selects a history window. Build it with NewBarsRequest.
type BarsRequest struct {
	symbol     string
	interval   model.Interval
	limit      int
	closedBars bool
	asOf       time.Time
}

// MaxBars bounds a single history request.
const MaxBars = 1000

// NewBarsRequest validates the arguments of a history lookup.
func NewBarsRequest(symbol, interval string, limit int, closedBars bool, asOf time.Time) (BarsRequest, error) {
	sym, iv, err := parseCommon(symbol, interval)
	if err != nil {
		return BarsRequest{}, err
	}
	if limit <= 0 || limit > MaxBars {
		return BarsRequest{}, fmt.Errorf("limit must be in 1..%d, got %d", MaxBars, limit)
	}
	return BarsRequest{symbol: sym, interval: iv, limit: limit, closedBars: closedBars, asOf: asOf}, nil
}

func (r BarsRequest) Symbol() string           { return r.symbol }
func (r BarsRequest) Interval() model.Interval { return r.interval }
func (r BarsRequest) Limit() int               { return r.limit }

// SimulationRequest is one simulation. Build it with NewSimulationRequest.
type SimulationRequest struct {
	symbol   string
	interval model.Interval
	strategy string
	opts     backtest.Options
}

// NewSimulationRequest validates a simulation. Zero options take the
// backtest defaults.
func NewSimulationRequest(symbol, interval, strategy string, opts backtest.Options) (SimulationRequest, error) {
	sym, iv, err := parseCommon(symbol, interval)
	if err != nil {
		return SimulationRequest{}, err
	}
	strategy = strings.TrimSpace(strategy)
	if strategy == "" {
		return SimulationRequest{}, fmt.Errorf("%w: empty id", model.ErrUnknownStrategy)
	}
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return SimulationRequest{}, err
	}
	return SimulationRequest{symbol: sym, interval: iv, strategy: strategy, opts: opts}, nil
}

func (r SimulationRequest) Symbol() string            { return r.symbol }
func (r SimulationRequest) Interval() model.Interval  { return r.interval }
func (r SimulationRequest) Strategy() string          { return r.strategy }
func (r SimulationRequest) Options() backtest.Options { return r.opts }

func parseCommon(symbol, interval string) (string, model.Interval, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", "", fmt.Errorf("%w: empty symbol", model.ErrUnknownSymbol)
	}
	iv, err := model.ParseInterval(strings.TrimSpace(interval))
	if err != nil {
		return "", "", err
	}
	return symbol, iv, nil
}
