package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"signal-engine/config"
	"signal-engine/internal/api"
	"signal-engine/internal/logger"
	"signal-engine/internal/metrics"
	"signal-engine/internal/notification"
	"signal-engine/internal/service"
	"signal-engine/internal/signals"
	redisstore "signal-engine/internal/store/redis"
	sqlitestore "signal-engine/internal/store/sqlite"
)

// Daemon is the long-running signal service: HTTP API, periodic
// notification job, Redis publication, metrics and health.
type Daemon struct {
	cfg *config.Config
	log *slog.Logger

	Core    *Core
	Store   *sqlitestore.Store
	Pub     *redisstore.Publisher // nil when Redis is disabled or unreachable
	Signals *signals.Factory
	Service *service.Service
	Job     *notification.Job

	registry *prometheus.Registry
	health   *metrics.HealthStatus
}

// NewDaemon connects to SQLite and Redis and wires every component. Redis
// is optional: when it cannot be reached the daemon runs without
// publication.
func NewDaemon(ctx context.Context, cfg *config.Config, file *config.File, l *slog.Logger) (*Daemon, error) {
	if file == nil || len(file.Symbols) == 0 {
		return nil, errors.New("universe file declares no symbols")
	}
	log := logger.Component(l, "daemon")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	core, err := NewCore(cfg, file, reg, l)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := sqlitestore.Open(cfg.SQLitePath, l)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		log:      log,
		Core:     core,
		Store:    store,
		registry: reg,
		health:   metrics.NewHealthStatus(),
	}

	if cfg.RedisAddr != "" {
		pub, err := redisstore.Dial(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Logger:   l,
		})
		if err != nil {
			log.Warn("redis unavailable, continuing without signal publication", slog.String("error", err.Error()))
		} else {
			pub.OnBuffer = core.Metrics.BufferedWrite
			pub.OnFlush = core.Metrics.FlushedWrites
			d.Pub = pub
		}
	}

	opts := signals.Options{Limit: cfg.HistoryLimit, Observer: core.Metrics, Logger: l}
	if d.Pub != nil {
		opts.Publisher = d.Pub
	}
	d.Signals = signals.NewFactory(core.Engine, core.Buffer, core.History, opts)

	d.Service = service.New(service.Deps{
		Universe:  core.Universe,
		History:   core.History,
		Registry:  core.Registry,
		Signals:   d.Signals,
		Simulator: core.Simulator(store, l),
		Logger:    l,
	})

	notifiers, err := buildNotifiers(cfg, l)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Job = notification.NewJob(d.Signals, notification.JobConfig{
		Watch:      file.Watch,
		Recipients: file.Recipients,
		Notifiers:  notifiers,
		ClosedBars: cfg.ClosedBars,
		Observer:   core.Metrics,
		Logger:     l,
	})

	d.registerChecks()
	return d, nil
}

func buildNotifiers(cfg *config.Config, l *slog.Logger) ([]notification.Notifier, error) {
	out := []notification.Notifier{notification.NewLogNotifier(l)}
	if cfg.TelegramToken != "" {
		tg, err := notification.NewTelegramNotifier(notification.TelegramConfig{
			Token:        cfg.TelegramToken,
			DefaultChats: cfg.TelegramChats,
			Logger:       l,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, tg)
	}
	if cfg.WebhookURL != "" {
		out = append(out, notification.NewWebhookNotifier(cfg.WebhookURL, l))
	}
	return out, nil
}

func (d *Daemon) registerChecks() {
	d.health.Register("sqlite", func(ctx context.Context) error {
		return d.Store.DB().PingContext(ctx)
	})
	d.health.Register("exchange", func(context.Context) error {
		if st := d.Core.Exchange.BreakerState(); st == "open" {
			return fmt.Errorf("circuit breaker %s", st)
		}
		return nil
	})
	if d.Pub != nil {
		d.health.Register("redis", d.Pub.Ping)
	}
}

// Handler returns the HTTP API.
func (d *Daemon) Handler() http.Handler {
	return api.NewRouter(d.Service, d.log)
}

// Run serves the API and metrics, runs the liveness checker and the
// notification loop, and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.health.StartLivenessChecker(ctx, 15*time.Second)

	metricsSrv := metrics.NewServer(d.cfg.MetricsAddr, d.registry, d.health, d.log)
	metricsSrv.Start()

	apiSrv := &http.Server{Addr: d.cfg.APIAddr, Handler: d.Handler(), ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.log.Info("api listening", slog.String("addr", d.cfg.APIAddr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		d.log.Info("notification loop started", slog.Duration("period", d.cfg.NotifyPeriod))
		d.Job.Loop(ctx, d.cfg.NotifyPeriod)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.log.Info("shutting down")
		if err := metricsSrv.Stop(shutdownCtx); err != nil {
			d.log.Warn("metrics shutdown", slog.String("error", err.Error()))
		}
		return apiSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the stores.
func (d *Daemon) Close() error {
	var errs []error
	if d.Pub != nil {
		errs = append(errs, d.Pub.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}
