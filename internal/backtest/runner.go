// Package backtest is the SimulationEngine: it replays a strategy's signal
// series as synthetic positions and aggregates the results.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"signal-engine/internal/logger"
	"signal-engine/internal/model"
	"signal-engine/internal/strategy"
)

var resultNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("signal-engine/simulation-result"))

// ResultID derives the storage ID of a run from its inputs. The same
// combination and parameters always map to the same ID.
func ResultID(symbol string, iv model.Interval, strategyID string, o Options) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	name := strings.Join([]string{
		symbol, iv.Code(), strategyID,
		f(o.Balance), strconv.Itoa(o.Limit),
		f(o.StopLossRate), f(o.TakeProfitRate), f(o.FeeRate),
	}, "|")
	return uuid.NewSHA1(resultNamespace, []byte(name)).String()
}

// Request is one simulation.
type Request struct {
	Symbol   string
	Interval model.Interval
	Strategy string
	Options  Options
}

// Key returns "symbol/interval/strategy".
func (r Request) Key() string {
	return r.Symbol + "/" + r.Interval.Code() + "/" + r.Strategy
}

// ResultStore persists finished runs.
type ResultStore interface {
	SaveResult(ctx context.Context, r Result) error
}

// Observer is told about every finished run.
type Observer interface {
	SimulationFinished(strategy string, positions int, elapsed time.Duration, err error)
}

// Simulator runs simulations against a strategy engine. It is safe for
// concurrent use.
type Simulator struct {
	engine *strategy.Engine
	store  ResultStore
	obs    Observer
	log    *slog.Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithStore persists every successful run.
func WithStore(s ResultStore) Option { return func(sim *Simulator) { sim.store = s } }

// WithObserver sets the run observer.
func WithObserver(o Observer) Option { return func(sim *Simulator) { sim.obs = o } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(sim *Simulator) { sim.log = logger.Component(l, "backtest") }
}

// NewSimulator creates a Simulator over engine.
func NewSimulator(engine *strategy.Engine, opts ...Option) *Simulator {
	s := &Simulator{engine: engine, log: logger.Component(nil, "backtest")}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run evaluates the strategy over req.Options.Limit bars and simulates it.
// Strategy, interval and history errors propagate unchanged.
func (s *Simulator) Run(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	defer func() {
		if s.obs != nil {
			s.obs.SimulationFinished(req.Strategy, len(res.Positions), time.Since(start), err)
		}
	}()

	opts := req.Options.WithDefaults()
	if err := opts.Validate(); err != nil {
		return Result{}, fmt.Errorf("simulation %s: %w", req.Key(), err)
	}
	cfg, err := s.engine.Registry().Lookup(req.Strategy)
	if err != nil {
		return Result{}, err
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	ctx = logger.EnsureTraceID(ctx, req.Key(), asOf)
	series, err := s.engine.Run(ctx, strategy.Request{
		Symbol:     req.Symbol,
		Interval:   req.Interval,
		Strategy:   req.Strategy,
		Limit:      opts.Limit,
		AsOf:       asOf,
		ClosedBars: opts.ClosedBars,
	})
	if err != nil {
		return Result{}, err
	}

	res, err = Simulate(series, cfg.Risk(), opts)
	if err != nil {
		return Result{}, fmt.Errorf("simulation %s: %w", req.Key(), err)
	}
	res.ID = ResultID(req.Symbol, req.Interval, req.Strategy, opts)

	if s.store != nil {
		if err := s.store.SaveResult(ctx, res); err != nil {
			return Result{}, fmt.Errorf("save simulation %s: %w", req.Key(), err)
		}
	}

	s.log.Info("simulation finished",
		append(logger.LogWithTrace(ctx),
			slog.String("id", res.ID),
			slog.Int("bars", res.Bars),
			slog.Int("positions", len(res.Positions)),
			slog.Float64("profit", res.Profit),
			slog.Duration("elapsed", time.Since(start)),
		)...,
	)
	return res, nil
}

// Outcome is one entry of a batch report.
type Outcome struct {
	Request Request
	Result  Result
	Err     error
}

// BatchReport lists outcomes in request order.
type BatchReport struct {
	Outcomes []Outcome
}

// Succeeded returns the successful results in request order.
func (b BatchReport) Succeeded() []Result {
	var out []Result
	for _, o := range b.Outcomes {
		if o.Err == nil {
			out = append(out, o.Result)
		}
	}
	return out
}

// Failed returns the failed outcomes in request order.
func (b BatchReport) Failed() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// RunBatch runs reqs with at most parallel simulations in flight. A failing
// combination is logged and reported; it never stops the others. Only a
// cancelled ctx ends the batch early, leaving unstarted requests failed with
// ctx.Err().
func (s *Simulator) RunBatch(ctx context.Context, reqs []Request, parallel int) BatchReport {
	if parallel <= 0 {
		parallel = 1
	}
	report := BatchReport{Outcomes: make([]Outcome, len(reqs))}

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, req := range reqs {
		report.Outcomes[i].Request = req
		if err := ctx.Err(); err != nil {
			report.Outcomes[i].Err = err
			continue
		}
		g.Go(func() error {
			res, err := s.Run(ctx, req)
			if err != nil {
				s.log.Warn("simulation skipped",
					slog.String("key", req.Key()),
					slog.String("error", err.Error()),
				)
			}
			report.Outcomes[i].Result = res
			report.Outcomes[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return report
}
