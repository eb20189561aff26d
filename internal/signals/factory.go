// Package signals produces the current signal for a (symbol, interval,
// strategy) triple, memoized per bar timestamp.
package signals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"signal-engine/internal/cache"
	"signal-engine/internal/logger"
	"signal-engine/internal/model"
	"signal-engine/internal/strategy"
	"signal-engine/internal/timewindow"
)

// DefaultLimit is the history length used when Options.Limit is zero.
const DefaultLimit = 200

// HoursSource resolves a symbol's trading-hours schedule. Unknown symbols
// return model.ErrUnknownSymbol.
type HoursSource interface {
	Schedule(symbol string) (*timewindow.Schedule, error)
}

// Observer is told about every signal the factory returns.
type Observer interface {
	SignalServed(strategy string, decision model.Decision, cached bool)
	MarketClosed(symbol string)
}

// Request selects one signal.
type Request struct {
	Symbol     string
	Interval   model.Interval
	Strategy   string
	AsOf       time.Time
	ClosedBars bool
}

func (r Request) key() cache.SignalKey {
	return cache.SignalKey{Symbol: r.Symbol, Interval: r.Interval, Strategy: r.Strategy}
}

// Options configures a Factory.
type Options struct {
	Limit     int                   // bars per strategy run, default DefaultLimit
	Publisher model.SignalPublisher // optional; receives fresh non-none signals
	Observer  Observer              // optional
	Logger    *slog.Logger
}

// Factory is the SignalFactory. It is safe for concurrent use.
type Factory struct {
	engine *strategy.Engine
	buf    *cache.Buffer
	hours  HoursSource
	limit  int
	pub    model.SignalPublisher
	obs    Observer
	log    *slog.Logger

	group singleflight.Group
}

// NewFactory wires a factory.
func NewFactory(engine *strategy.Engine, buf *cache.Buffer, hours HoursSource, opts Options) *Factory {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Factory{
		engine: engine,
		buf:    buf,
		hours:  hours,
		limit:  opts.Limit,
		pub:    opts.Publisher,
		obs:    opts.Observer,
		log:    logger.Component(opts.Logger, "signals"),
	}
}

// Signal returns the signal for the bar req resolves to. Outside trading
// hours it returns a none signal without touching history. A cached signal is
// reused only if it was computed for exactly that bar.
func (f *Factory) Signal(ctx context.Context, req Request) (model.Signal, error) {
	cfg, err := f.engine.Registry().Lookup(req.Strategy)
	if err != nil {
		return model.Signal{}, err
	}
	if !req.Interval.Valid() {
		return model.Signal{}, fmt.Errorf("%w: %q", model.ErrUnknownInterval, req.Interval)
	}
	sched, err := f.hours.Schedule(req.Symbol)
	if err != nil {
		return model.Signal{}, err
	}

	end := req.Interval.EndTimestamp(req.AsOf, req.ClosedBars)

	if !sched.IsOpen(req.AsOf, req.Interval) {
		if f.obs != nil {
			f.obs.MarketClosed(req.Symbol)
		}
		return model.Signal{
			Time:     end,
			Symbol:   req.Symbol,
			Interval: req.Interval,
			Strategy: req.Strategy,
			Decision: model.DecisionNone,
		}, nil
	}

	key := req.key()
	sig, ok, err := f.buf.Signal(key, end)
	switch {
	case err != nil && errors.Is(err, model.ErrStaleCacheRead):
		f.log.Warn("dropped stale cache entry", slog.String("key", key.String()), slog.String("error", err.Error()))
	case err != nil:
		return model.Signal{}, err
	case ok:
		f.served(sig, true)
		return sig, nil
	}

	ctx = logger.EnsureTraceID(ctx, key.String(), end)
	limit := max(f.limit, cfg.MinBars())
	flight := key.String() + ":" + strconv.FormatInt(end.Unix(), 10)
	v, err, _ := f.group.Do(flight, func() (any, error) {
		return f.compute(ctx, req, limit)
	})
	if err != nil {
		return model.Signal{}, err
	}
	sig = v.(model.Signal).Clone()
	f.served(sig, false)
	return sig, nil
}

func (f *Factory) compute(ctx context.Context, req Request, limit int) (model.Signal, error) {
	series, err := f.engine.Run(ctx, strategy.Request{
		Symbol:     req.Symbol,
		Interval:   req.Interval,
		Strategy:   req.Strategy,
		Limit:      limit,
		AsOf:       req.AsOf,
		ClosedBars: req.ClosedBars,
	})
	if err != nil {
		return model.Signal{}, err
	}
	sig, ok := series.Last()
	if !ok {
		return model.Signal{}, fmt.Errorf("%w: %s produced no rows", model.ErrInsufficientHistory, req.Strategy)
	}
	f.buf.SetSignal(sig)

	f.log.Info("signal computed",
		append(logger.LogWithTrace(ctx),
			slog.String("key", sig.Key()),
			slog.Time("ts", sig.Time),
			slog.String("decision", sig.Decision.String()),
		)...,
	)

	if f.pub != nil && sig.Decision != model.DecisionNone {
		if err := f.pub.PublishSignal(ctx, sig); err != nil {
			f.log.Warn("publish signal failed",
				append(logger.LogWithTrace(ctx), slog.String("key", sig.Key()), slog.String("error", err.Error()))...)
		}
	}
	return sig, nil
}

func (f *Factory) served(sig model.Signal, cached bool) {
	if f.obs != nil {
		f.obs.SignalServed(sig.Strategy, sig.Decision, cached)
	}
}
