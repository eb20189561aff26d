// Package service is the inbound facade of the signal engine. Every
// operation takes a request struct validated at construction and returns an
// explicitly encoded record; no framework types cross this boundary.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"signal-engine/internal/backtest"
	"signal-engine/internal/logger"
	"signal-engine/internal/marketdata"
	"signal-engine/internal/model"
	"signal-engine/internal/signals"
	"signal-engine/internal/strategy"
)

// Deps are the collaborators a Service is wired from.
type Deps struct {
	Universe  model.Universe
	History   *marketdata.Provider
	Registry  *strategy.Registry
	Signals   *signals.Factory
	Simulator *backtest.Simulator
	Logger    *slog.Logger

	// Now is the clock used for requests without an as-of time.
	Now func() time.Time
}

// Service answers signal, history and simulation requests.
type Service struct {
	universe model.Universe
	history  *marketdata.Provider
	registry *strategy.Registry
	signals  *signals.Factory
	sim      *backtest.Simulator
	now      func() time.Time
	log      *slog.Logger
}

// New creates a Service.
func New(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		universe: d.Universe,
		history:  d.History,
		registry: d.Registry,
		signals:  d.Signals,
		sim:      d.Simulator,
		now:      now,
		log:      logger.Component(d.Logger, "service"),
	}
}

func (s *Service) asOf(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// Signal returns the current signal for the request.
func (s *Service) Signal(ctx context.Context, req SignalRequest) (SignalRecord, error) {
	sig, err := s.signals.Signal(ctx, signals.Request{
		Symbol:     req.symbol,
		Interval:   req.interval,
		Strategy:   req.strategy,
		AsOf:       s.asOf(req.asOf),
		ClosedBars: req.closedBars,
	})
	if err != nil {
		return SignalRecord{}, err
	}
	return EncodeSignal(sig), nil
}

// Bars returns a history window for a universe symbol.
func (s *Service) Bars(ctx context.Context, req BarsRequest) (BarTable, error) {
	if _, err := s.universe.Lookup(req.symbol); err != nil {
		return BarTable{}, err
	}
	series, err := s.history.Bars(ctx, model.BarsQuery{
		Symbol:     req.symbol,
		Interval:   req.interval,
		Limit:      req.limit,
		AsOf:       s.asOf(req.asOf),
		ClosedBars: req.closedBars,
	})
	if err != nil {
		return BarTable{}, err
	}
	return EncodeBars(series), nil
}

// Simulate runs one simulation for a universe symbol.
func (s *Service) Simulate(ctx context.Context, req SimulationRequest) (SimulationRecord, error) {
	if _, err := s.universe.Lookup(req.symbol); err != nil {
		return SimulationRecord{}, err
	}
	opts := req.opts
	opts.AsOf = s.asOf(opts.AsOf)
	res, err := s.sim.Run(ctx, backtest.Request{
		Symbol:   req.symbol,
		Interval: req.interval,
		Strategy: req.strategy,
		Options:  opts,
	})
	if err != nil {
		return SimulationRecord{}, err
	}
	return EncodeSimulation(res), nil
}

// Symbols returns the exchange listing.
func (s *Service) Symbols(ctx context.Context) ([]string, error) {
	return s.history.Symbols(ctx)
}

// Strategies returns the registered strategy IDs, sorted.
func (s *Service) Strategies() []string { return s.registry.IDs() }

// MarketStatus describes whether symbol trades at t (zero t means now).
func (s *Service) MarketStatus(symbol string, t time.Time) (string, error) {
	sched, err := s.history.Schedule(symbol)
	if err != nil {
		return "", err
	}
	status := sched.StatusString(s.asOf(t))
	s.log.Debug("market status", slog.String("symbol", symbol), slog.String("status", status))
	return status, nil
}

// Describe returns a one-line summary of a strategy.
func (s *Service) Describe(id string) (string, error) {
	cfg, err := s.registry.Lookup(id)
	if err != nil {
		return "", err
	}
	d := fmt.Sprintf("%s (%s), needs %d bars", cfg.ID(), cfg.Kind(), cfg.MinBars())
	if up := cfg.UpLevel(); up != "" {
		d += ", gated by " + up + " on the next coarser interval"
	}
	return d, nil
}
