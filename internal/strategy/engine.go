// Package strategy turns bar series into per-bar signal series.
//
// A strategy is an immutable Config looked up by ID in a Registry. Evaluate
// is the pure rule step; Engine adds history retrieval and the up-level
// filter, which evaluates a delegate strategy on the next coarser interval
// and joins it onto the fine series without look-ahead.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"signal-engine/internal/logger"
	"signal-engine/internal/model"
)

// Request selects one strategy run.
type Request struct {
	Symbol     string
	Interval   model.Interval
	Strategy   string
	Limit      int
	AsOf       time.Time
	ClosedBars bool
}

// Key returns "symbol/interval/strategy".
func (r Request) Key() string {
	return r.Symbol + "/" + r.Interval.Code() + "/" + r.Strategy
}

// Engine runs strategies over history from a BarSource.
type Engine struct {
	reg  *Registry
	bars model.BarSource
	log  *slog.Logger
}

// NewEngine creates an engine. A nil logger uses the default.
func NewEngine(reg *Registry, bars model.BarSource, l *slog.Logger) *Engine {
	return &Engine{reg: reg, bars: bars, log: logger.Component(l, "strategy")}
}

// Registry returns the engine's strategy registry.
func (e *Engine) Registry() *Registry { return e.reg }

// Run fetches req.Limit bars and evaluates the strategy over them. History
// errors propagate unchanged.
func (e *Engine) Run(ctx context.Context, req Request) (model.SignalSeries, error) {
	cfg, err := e.reg.Lookup(req.Strategy)
	if err != nil {
		return model.SignalSeries{}, err
	}
	if !req.Interval.Valid() {
		return model.SignalSeries{}, fmt.Errorf("%w: %q", model.ErrUnknownInterval, req.Interval)
	}
	if req.Limit < cfg.MinBars() {
		return model.SignalSeries{}, fmt.Errorf("%w: %s needs at least %d bars, limit is %d",
			model.ErrInsufficientHistory, req.Key(), cfg.MinBars(), req.Limit)
	}

	bars, err := e.bars.Bars(ctx, model.BarsQuery{
		Symbol:     req.Symbol,
		Interval:   req.Interval,
		Limit:      req.Limit,
		AsOf:       req.AsOf,
		ClosedBars: req.ClosedBars,
	})
	if err != nil {
		return model.SignalSeries{}, err
	}

	series, err := Evaluate(cfg, bars)
	if err != nil {
		return model.SignalSeries{}, err
	}

	up := cfg.UpLevel()
	coarse, ok := req.Interval.Coarser()
	if up == "" || !ok {
		return series, nil
	}

	upCfg, err := e.reg.Lookup(up)
	if err != nil {
		return model.SignalSeries{}, err
	}
	upReq := Request{
		Symbol:     req.Symbol,
		Interval:   coarse,
		Strategy:   up,
		Limit:      coarseLimit(req.Limit, req.Interval.ScaleFactor(coarse), upCfg.MinBars()),
		AsOf:       req.AsOf,
		ClosedBars: req.ClosedBars,
	}
	upSeries, err := e.Run(ctx, upReq)
	if err != nil {
		return model.SignalSeries{}, fmt.Errorf("up-level %s: %w", upReq.Key(), err)
	}

	e.log.Debug("applied up-level filter",
		slog.String("request", req.Key()),
		slog.String("up_level", upReq.Key()),
		slog.Int("coarse_rows", len(upSeries.Rows)),
	)
	return ApplyUpLevel(series, upSeries), nil
}

// coarseLimit sizes the coarse request to span the fine window plus the
// coarse strategy's warm-up.
func coarseLimit(fineLimit, scale, warmup int) int {
	return (fineLimit+scale-1)/scale + warmup
}

// Evaluate applies cfg to s. Rows start at the first bar where every
// indicator and its previous reading exist; fewer bars than that is
// model.ErrInsufficientHistory.
func Evaluate(cfg Config, s model.BarSeries) (model.SignalSeries, error) {
	var (
		rows []model.Signal
		err  error
	)
	switch c := cfg.(type) {
	case CCIConfig:
		rows, err = evaluateCCI(c, s, c.ID())
	case EMACrossConfig:
		rows, err = evaluateEMACross(c, s, c.ID())
	case EMATrendConfig:
		rows, err = evaluateEMATrend(c, s, c.ID())
	default:
		return model.SignalSeries{}, fmt.Errorf("%w: unsupported config %T", model.ErrUnknownStrategy, cfg)
	}
	if err != nil {
		return model.SignalSeries{}, err
	}
	return model.SignalSeries{Symbol: s.Symbol, Interval: s.Interval, Strategy: cfg.ID(), Rows: rows}, nil
}

func newRow(s model.BarSeries, id string, b model.Bar) model.Signal {
	return model.Signal{
		Time:     b.Time,
		Symbol:   s.Symbol,
		Interval: s.Interval,
		Strategy: id,
		Bar:      b,
	}
}

func insufficient(id string, s model.BarSeries, need int) error {
	return fmt.Errorf("%w: %s on %s needs %d bars, have %d",
		model.ErrInsufficientHistory, id, s.Key(), need, s.Len())
}
