// Package redis publishes computed signals to Redis and reads them back.
//
// Every published signal is written in one pipeline: XADD to a per-triple
// stream, SET of the latest value, and PUBLISH on the triple's channel.
// Writes go through a circuit breaker; while it is open signals are buffered
// locally and replayed when it closes again.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"signal-engine/internal/logger"
	"signal-engine/internal/model"
	"signal-engine/internal/ringbuf"
)

const (
	streamMaxLen     = 1000
	minLatestTTL     = 30 * time.Minute
	defaultBufferLen = 10000
)

// Config configures the publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	// Breaker trips after this many consecutive failed pipelines (default 5)
	// and stays open for BreakerTimeout (default 10s).
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// MaxBuffered bounds the signals kept while the breaker is open; the
	// oldest is dropped first. Default 10000.
	MaxBuffered int

	Logger *slog.Logger
}

// StreamKey is the stream holding every published signal of a triple.
func StreamKey(symbol string, iv model.Interval, strategy string) string {
	return "signal:" + strategy + ":" + iv.Code() + ":" + symbol
}

// LatestKey holds the most recent signal of a triple.
func LatestKey(symbol string, iv model.Interval, strategy string) string {
	return "signal:latest:" + strategy + ":" + iv.Code() + ":" + symbol
}

// Channel is the pubsub channel of a triple.
func Channel(symbol string, iv model.Interval, strategy string) string {
	return "pub:signal:" + strategy + ":" + iv.Code() + ":" + symbol
}

// latestTTL keeps the latest key alive for two bars.
func latestTTL(iv model.Interval) time.Duration {
	ttl := 2 * iv.Duration()
	if ttl < minLatestTTL {
		ttl = minLatestTTL
	}
	return ttl
}

// Publisher implements model.SignalPublisher.
type Publisher struct {
	client  goredis.UniversalClient
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger

	pending *ringbuf.Ring[model.Signal]

	// OnBuffer and OnFlush are optional hooks for metrics.
	OnBuffer func()
	OnFlush  func(count int)
}

var _ model.SignalPublisher = (*Publisher)(nil)

// Dial connects to Redis, pings it and returns a publisher.
func Dial(ctx context.Context, cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := NewPublisher(client, cfg)
	p.log.Info("connected", slog.String("addr", cfg.Addr))
	return p, nil
}

// NewPublisher wraps an existing client.
func NewPublisher(client goredis.UniversalClient, cfg Config) *Publisher {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 10 * time.Second
	}
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = defaultBufferLen
	}

	p := &Publisher{
		client:  client,
		log:     logger.Component(cfg.Logger, "redis"),
		pending: ringbuf.New[model.Signal](cfg.MaxBuffered),
	}
	failures := cfg.BreakerFailures
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn("circuit breaker state change",
				slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
			if to == gobreaker.StateClosed {
				go p.Flush(context.Background())
			}
		},
	})
	return p
}

// PublishSignal writes sig through the breaker. While the breaker is open
// the signal is buffered and nil is returned.
func (p *Publisher) PublishSignal(ctx context.Context, sig model.Signal) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.write(ctx, sig)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		p.buffer(sig)
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", sig.Key(), err)
	}
	return nil
}

func (p *Publisher) write(ctx context.Context, sig model.Signal) error {
	data := string(sig.JSON())

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey(sig.Symbol, sig.Interval, sig.Strategy),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	pipe.Set(ctx, LatestKey(sig.Symbol, sig.Interval, sig.Strategy), data, latestTTL(sig.Interval))
	pipe.Publish(ctx, Channel(sig.Symbol, sig.Interval, sig.Strategy), data)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Publisher) buffer(sig model.Signal) {
	if p.pending.Push(sig) {
		p.log.Warn("buffer full, dropped oldest signal", slog.Uint64("dropped_total", p.pending.Overflow()))
	}
	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// Flush replays buffered signals directly, bypassing the breaker, and
// returns how many were written. Signals that fail again are dropped.
func (p *Publisher) Flush(ctx context.Context) int {
	todo := p.pending.Drain()
	if len(todo) == 0 {
		return 0
	}

	flushed := 0
	for _, sig := range todo {
		if err := p.write(ctx, sig); err != nil {
			p.log.Warn("flush failed", slog.String("signal", sig.Key()), slog.String("error", err.Error()))
			continue
		}
		flushed++
	}
	p.log.Info("flushed buffered signals", slog.Int("count", flushed), slog.Int("dropped", len(todo)-flushed))
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
	return flushed
}

// Pending returns the number of buffered signals.
func (p *Publisher) Pending() int { return p.pending.Len() }

// BreakerState reports "closed", "half-open" or "open".
func (p *Publisher) BreakerState() string { return p.breaker.State().String() }

// Ping checks the connection for health probes.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the client.
func (p *Publisher) Close() error { return p.client.Close() }
