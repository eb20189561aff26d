// Package api is the HTTP front end of the signal engine: thin request
// parsing over the service facade.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signal-engine/internal/backtest"
	"signal-engine/internal/logger"
	"signal-engine/internal/model"
	"signal-engine/internal/service"
)

// Backend is the part of service.Service the router calls.
type Backend interface {
	Signal(ctx context.Context, req service.SignalRequest) (service.SignalRecord, error)
	Bars(ctx context.Context, req service.BarsRequest) (service.BarTable, error)
	Simulate(ctx context.Context, req service.SimulationRequest) (service.SimulationRecord, error)
	Symbols(ctx context.Context) ([]string, error)
	Strategies() []string
	Describe(id string) (string, error)
	MarketStatus(symbol string, t time.Time) (string, error)
}

var _ Backend = (*service.Service)(nil)

type router struct {
	b   Backend
	log *slog.Logger
}

// NewRouter sets up the HTTP routes.
//
//	GET  /api/v1/health
//	GET  /api/v1/symbols
//	GET  /api/v1/strategies
//	GET  /api/v1/market-status?symbol=
//	GET  /api/v1/bars?symbol=&interval=&limit=&closed=&as_of=
//	GET  /api/v1/signal?symbol=&interval=&strategy=&closed=&as_of=
//	POST /api/v1/simulate
func NewRouter(b Backend, l *slog.Logger) *http.ServeMux {
	rt := &router{b: b, log: logger.Component(l, "api")}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/v1/symbols", rt.symbols)
	mux.HandleFunc("GET /api/v1/strategies", rt.strategies)
	mux.HandleFunc("GET /api/v1/market-status", rt.marketStatus)
	mux.HandleFunc("GET /api/v1/bars", rt.bars)
	mux.HandleFunc("GET /api/v1/signal", rt.signal)
	mux.HandleFunc("POST /api/v1/simulate", rt.simulate)
	return mux
}

func (rt *router) symbols(w http.ResponseWriter, r *http.Request) {
	syms, err := rt.b.Symbols(r.Context())
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syms)
}

type strategyInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

func (rt *router) strategies(w http.ResponseWriter, r *http.Request) {
	ids := rt.b.Strategies()
	out := make([]strategyInfo, 0, len(ids))
	for _, id := range ids {
		d, err := rt.b.Describe(id)
		if err != nil {
			rt.fail(w, r, err)
			return
		}
		out = append(out, strategyInfo{ID: id, Description: d})
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *router) marketStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf, err := parseTime(q.Get("as_of"))
	if err != nil {
		badRequest(w, err)
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(q.Get("symbol")))
	status, err := rt.b.MarketStatus(symbol, asOf)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"symbol": symbol, "status": status})
}

func (rt *router) bars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf, err := parseTime(q.Get("as_of"))
	if err != nil {
		badRequest(w, err)
		return
	}
	limit := 200
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			badRequest(w, errors.New("limit must be an integer"))
			return
		}
	}
	req, err := service.NewBarsRequest(q.Get("symbol"), q.Get("interval"), limit, q.Get("closed") == "true", asOf)
	if err != nil {
		badRequest(w, err)
		return
	}
	table, err := rt.b.Bars(r.Context(), req)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (rt *router) signal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf, err := parseTime(q.Get("as_of"))
	if err != nil {
		badRequest(w, err)
		return
	}
	req, err := service.NewSignalRequest(q.Get("symbol"), q.Get("interval"), q.Get("strategy"), q.Get("closed") == "true", asOf)
	if err != nil {
		badRequest(w, err)
		return
	}
	rec, err := rt.b.Signal(r.Context(), req)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type simulateBody struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Strategy string `json:"strategy"`
	backtest.Options
}

func (rt *router) simulate(w http.ResponseWriter, r *http.Request) {
	body := simulateBody{Options: backtest.Options{FeeRate: backtest.DefaultFeeRate}}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		badRequest(w, errors.New("invalid JSON"))
		return
	}
	req, err := service.NewSimulationRequest(body.Symbol, body.Interval, body.Strategy, body.Options)
	if err != nil {
		badRequest(w, err)
		return
	}
	rec, err := rt.b.Simulate(r.Context(), req)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// statusOf maps the error taxonomy to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrUnknownSymbol), errors.Is(err, model.ErrUnknownStrategy):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnknownInterval):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientHistory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrUpstreamFetch):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (rt *router) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		rt.log.Error("request failed", append(logger.LogWithTrace(r.Context()),
			slog.String("path", r.URL.Path), slog.String("error", err.Error()))...)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	if errors.Is(err, model.ErrUnknownSymbol) || errors.Is(err, model.ErrUnknownStrategy) {
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// parseTime accepts RFC 3339 or unix milliseconds; empty means now.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("as_of must be RFC 3339 or unix milliseconds")
	}
	return t.UTC(), nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
