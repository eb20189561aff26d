// Package app wires the signal engine's components from configuration and
// runs the long-lived daemon.
package app

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"signal-engine/config"
	"signal-engine/internal/backtest"
	"signal-engine/internal/cache"
	"signal-engine/internal/exchange"
	"signal-engine/internal/logger"
	"signal-engine/internal/marketdata"
	"signal-engine/internal/metrics"
	"signal-engine/internal/model"
	"signal-engine/internal/strategy"
)

// Core is the dependency graph shared by every binary: exchange client,
// cache, history provider and strategy engine, all reporting to one set of
// metrics.
type Core struct {
	Universe model.Universe
	Registry *strategy.Registry
	Buffer   *cache.Buffer
	Exchange *exchange.Client
	History  *marketdata.Provider
	Engine   *strategy.Engine
	Metrics  *metrics.Metrics

	log *slog.Logger
}

// NewCore builds the core from cfg and the universe file. A nil file means
// built-in strategies and an empty universe. Metrics register with reg.
func NewCore(cfg *config.Config, file *config.File, reg prometheus.Registerer, l *slog.Logger) (*Core, error) {
	if file == nil {
		file = &config.File{}
	}
	registry, err := file.Registry()
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics(reg)
	buf := cache.New(cache.WithObserver(m))
	ex := exchange.New(exchange.Config{
		BaseURL:   cfg.ExchangeURL,
		Timeout:   cfg.ExchangeTimeout,
		RateLimit: cfg.ExchangeRate,
		Burst:     cfg.ExchangeBurst,
		Logger:    l,
		Observer:  m,
	})
	universe := file.Universe()
	history := marketdata.NewProvider(buf, ex, marketdata.WithUniverse(universe), marketdata.WithLogger(l))

	c := &Core{
		Universe: universe,
		Registry: registry,
		Buffer:   buf,
		Exchange: ex,
		History:  history,
		Engine:   strategy.NewEngine(registry, history, l),
		Metrics:  m,
		log:      logger.Component(l, "app"),
	}
	c.log.Info("core ready",
		slog.Int("symbols", len(universe)),
		slog.Int("strategies", len(registry.IDs())),
		slog.String("exchange", cfg.ExchangeURL))
	return c, nil
}

// Simulator returns a simulator over the core's engine. A nil store skips
// persistence.
func (c *Core) Simulator(store backtest.ResultStore, l *slog.Logger) *backtest.Simulator {
	opts := []backtest.Option{backtest.WithObserver(c.Metrics), backtest.WithLogger(l)}
	if store != nil {
		opts = append(opts, backtest.WithStore(store))
	}
	return backtest.NewSimulator(c.Engine, opts...)
}
