// cmd/backtest runs batch simulations for every (symbol, interval, strategy)
// combination, stores the results in SQLite and prints a summary. A failing
// combination is reported and skipped; the rest of the batch still runs.
//
// Usage:
//
//	go run ./cmd/backtest -symbols=BTCUSDT,ETHUSDT -intervals=1h,4h -strategies=cci4,ema-9-21
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signal-engine/config"
	"signal-engine/internal/app"
	"signal-engine/internal/backtest"
	"signal-engine/internal/logger"
	"signal-engine/internal/model"
	sqlitestore "signal-engine/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	symbols := flag.String("symbols", "BTCUSDT", "Comma-separated symbols")
	intervals := flag.String("intervals", "1h", "Comma-separated intervals")
	strategies := flag.String("strategies", "cci4", "Comma-separated strategy ids, or \"all\"")
	balance := flag.Float64("balance", cfg.SimBalance, "Starting balance")
	limit := flag.Int("limit", cfg.SimLimit, "Bars per simulation")
	fee := flag.Float64("fee", cfg.SimFeeRate, "Fee rate charged per closed position")
	slRate := flag.Float64("sl-rate", 0, "Stop-loss as a fraction of the open price (0 = strategy's)")
	tpRate := flag.Float64("tp-rate", 0, "Take-profit as a fraction of the open price (0 = strategy's)")
	trailing := flag.Bool("trailing", false, "Apply the strategy's trailing stop")
	closed := flag.Bool("closed", true, "Use only closed bars")
	asOfStr := flag.String("as-of", "", "RFC 3339 end of the simulated window (default now)")
	parallel := flag.Int("parallel", cfg.SimParallel, "Simulations run concurrently")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database for results (empty = don't store)")
	universe := flag.String("universe", cfg.UniverseFile, "Universe file with extra strategies (optional)")
	verbose := flag.Bool("v", false, "Print every closed position")
	flag.Parse()

	log := logger.Init("backtest", cfg.LogLevel)

	var asOf time.Time
	if *asOfStr != "" {
		if asOf, err = time.Parse(time.RFC3339, *asOfStr); err != nil {
			log.Error("invalid -as-of", slog.String("error", err.Error()))
			os.Exit(2)
		}
	}

	file, err := config.LoadFile(*universe)
	if errors.Is(err, os.ErrNotExist) {
		file = nil
	} else if err != nil {
		log.Error("universe file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	core, err := app.NewCore(cfg, file, prometheus.NewRegistry(), log)
	if err != nil {
		log.Error("init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var store backtest.ResultStore
	if *dbPath != "" {
		os.MkdirAll(filepath.Dir(*dbPath), 0o755)
		s, err := sqlitestore.Open(*dbPath, log)
		if err != nil {
			log.Error("sqlite open failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer s.Close()
		store = s
	}

	opts := backtest.Options{
		Balance:        *balance,
		Limit:          *limit,
		FeeRate:        *fee,
		StopLossRate:   *slRate,
		TakeProfitRate: *tpRate,
		Trailing:       *trailing,
		AsOf:           asOf,
		ClosedBars:     *closed,
	}
	if err := opts.Validate(); err != nil {
		log.Error("invalid options", slog.String("error", err.Error()))
		os.Exit(2)
	}

	ids := splitList(*strategies)
	if len(ids) == 1 && ids[0] == "all" {
		ids = core.Registry.IDs()
	}
	reqs, err := buildRequests(splitList(strings.ToUpper(*symbols)), splitList(*intervals), ids, opts)
	if err != nil {
		log.Error("invalid arguments", slog.String("error", err.Error()))
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	start := time.Now()
	report := core.Simulator(store, log).RunBatch(ctx, reqs, *parallel)

	printReport(os.Stdout, report, *verbose, time.Since(start))
	if len(report.Succeeded()) == 0 {
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildRequests expands the cross product. Intervals are validated here;
// unknown symbols and strategies fail their own combination only.
func buildRequests(symbols, intervals, strategies []string, opts backtest.Options) ([]backtest.Request, error) {
	if len(symbols) == 0 || len(intervals) == 0 || len(strategies) == 0 {
		return nil, errors.New("need at least one symbol, interval and strategy")
	}
	ivs := make([]model.Interval, 0, len(intervals))
	for _, s := range intervals {
		iv, err := model.ParseInterval(s)
		if err != nil {
			return nil, err
		}
		ivs = append(ivs, iv)
	}
	var reqs []backtest.Request
	for _, sym := range symbols {
		for _, iv := range ivs {
			for _, id := range strategies {
				reqs = append(reqs, backtest.Request{Symbol: sym, Interval: iv, Strategy: id, Options: opts})
			}
		}
	}
	return reqs, nil
}

func printReport(w io.Writer, report backtest.BatchReport, verbose bool, elapsed time.Duration) {
	results := report.Succeeded()
	sort.SliceStable(results, func(i, j int) bool { return results[i].Profit > results[j].Profit })

	fmt.Fprintf(w, "%-10s %-4s %-18s %6s %5s %7s %12s %12s\n",
		"SYMBOL", "IV", "STRATEGY", "BARS", "POS", "WIN%", "PROFIT", "FINAL")
	for _, r := range results {
		fmt.Fprintf(w, "%-10s %-4s %-18s %6d %5d %6.1f%% %12.2f %12.2f\n",
			r.Symbol, r.Interval, r.Strategy, r.Bars, r.Summary.Total.Count,
			r.Summary.Total.WinRate(), r.Profit, r.FinalBalance)
		if verbose {
			for _, p := range r.Positions {
				fmt.Fprintf(w, "    %-5s %s -> %s  %10.4f -> %10.4f  %-11s %10.2f\n",
					p.Direction, p.OpenTime.Format("2006-01-02 15:04"), p.CloseTime.Format("2006-01-02 15:04"),
					p.OpenPrice, p.ClosePrice, p.Reason, p.Profit)
			}
		}
	}
	for _, o := range report.Failed() {
		fmt.Fprintf(w, "FAILED %s: %v\n", o.Request.Key(), o.Err)
	}

	var net float64
	positions := 0
	for _, r := range results {
		net += r.Profit
		positions += r.Summary.Total.Count
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        BACKTEST COMPLETE             ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Simulations:       %-16d ║\n", len(report.Outcomes))
	fmt.Fprintf(w, "║  Succeeded:         %-16d ║\n", len(results))
	fmt.Fprintf(w, "║  Failed:            %-16d ║\n", len(report.Failed()))
	fmt.Fprintf(w, "║  Closed positions:  %-16d ║\n", positions)
	fmt.Fprintf(w, "║  Net profit:        %-16.2f ║\n", net)
	fmt.Fprintf(w, "║  Elapsed:           %-16s ║\n", elapsed.Round(time.Millisecond))
	fmt.Fprintln(w, "╚══════════════════════════════════════╝")
}
