// Package exchange is the REST client for the external market-data source.
// It speaks the Binance-style spot API: /api/v3/klines for bar history and
// /api/v3/exchangeInfo for the symbol listing.
//
// Every request is paced by a token-bucket limiter and guarded by a circuit
// breaker. All failures (transport, non-2xx, malformed payload, open
// breaker, cancelled wait) are returned wrapping model.ErrUpstreamFetch and
// are never retried here.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"signal-engine/internal/logger"
	"signal-engine/internal/model"
)

const (
	defaultBaseURL = "https://api.binance.com"
	klinesPath     = "/api/v3/klines"
	infoPath       = "/api/v3/exchangeInfo"

	// MaxLimit is the most rows one klines request may return.
	MaxLimit = 1000
)

// Config holds client settings. Zero values take defaults.
type Config struct {
	BaseURL   string        // default: https://api.binance.com
	Timeout   time.Duration // default: 10s
	RateLimit float64       // requests per second, default: 10
	Burst     int           // default: 10

	// Breaker trips after this many consecutive failures (default 5) and
	// stays open for BreakerTimeout (default 30s).
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
	Observer   Observer
}

// Observer receives per-request outcomes.
type Observer interface {
	UpstreamRequest(endpoint string, elapsed time.Duration, err error)
}

// Client implements model.BarFetcher.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
	obs     Observer
}

var _ model.BarFetcher = (*Client)(nil)

// New creates a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	log := logger.Component(cfg.Logger, "exchange")
	failures := cfg.BreakerFailures
	st := gobreaker.Settings{
		Name:    "exchange",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
		obs:     cfg.Observer,
	}
}

// BreakerState reports the circuit breaker state ("closed", "half-open", "open").
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// FetchBars returns up to limit klines whose open time is at or before end,
// oldest first, as (open time millis, open, high, low, close, volume) rows.
func (c *Client) FetchBars(ctx context.Context, symbol string, interval model.Interval, limit int, end time.Time) ([]model.RawBar, error) {
	if limit <= 0 || limit > MaxLimit {
		return nil, fmt.Errorf("%w: klines limit %d outside 1..%d", model.ErrUpstreamFetch, limit, MaxLimit)
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval.Code())
	q.Set("limit", strconv.Itoa(limit))
	if !end.IsZero() {
		q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	// Rows are Binance-style mixed arrays; prices arrive as quoted decimals.
	var rows [][]json.Number
	if err := c.getJSON(ctx, klinesPath, q, &rows); err != nil {
		return nil, err
	}

	out := make([]model.RawBar, 0, len(rows))
	for i, row := range rows {
		bar, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s row %d: %w", model.ErrUpstreamFetch, symbol, interval, i, err)
		}
		out = append(out, bar)
	}
	return out, nil
}

func parseKline(row []json.Number) (model.RawBar, error) {
	var bar model.RawBar
	if len(row) < 6 {
		return bar, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}
	for i := 0; i < 6; i++ {
		v, err := row[i].Float64()
		if err != nil {
			return bar, fmt.Errorf("field %d: %w", i, err)
		}
		bar[i] = v
	}
	return bar, nil
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

// FetchSymbols lists symbols currently trading.
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	var info exchangeInfo
	if err := c.getJSON(ctx, infoPath, nil, &info); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "" || s.Status == "TRADING" {
			out = append(out, s.Symbol)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s: empty symbol listing", model.ErrUpstreamFetch, infoPath)
	}
	return out, nil
}

// apiError is the exchange's error body: {"code": -1121, "msg": "Invalid symbol."}.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.obs != nil {
			c.obs.UpstreamRequest(path, time.Since(start), err)
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: rate limiter: %w", model.ErrUpstreamFetch, path, err)
	}

	reqURL := c.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	raw, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, reqURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.log.Warn("request rejected by circuit breaker", slog.String("path", path))
		}
		if errors.Is(err, model.ErrUpstreamFetch) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", model.ErrUpstreamFetch, path, err)
	}

	if err := json.Unmarshal(raw.([]byte), out); err != nil {
		return fmt.Errorf("%w: %s: couldn't parse JSON response: %w", model.ErrUpstreamFetch, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Msg != "" {
			return nil, fmt.Errorf("%w: HTTP %d: code %d: %s", model.ErrUpstreamFetch, resp.StatusCode, ae.Code, ae.Msg)
		}
		return nil, fmt.Errorf("%w: HTTP %d", model.ErrUpstreamFetch, resp.StatusCode)
	}
	return body, nil
}
