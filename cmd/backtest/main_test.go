package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"signal-engine/internal/backtest"
	"signal-engine/internal/model"
)

func TestSplitList(t *testing.T) {
	got := splitList(" BTCUSDT, ,ETHUSDT,")
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Errorf("splitList = %q", got)
	}
}

func TestBuildRequests(t *testing.T) {
	opts := backtest.Options{Balance: 1000, Limit: 300}
	reqs, err := buildRequests([]string{"A", "B"}, []string{"1h", "4h"}, []string{"cci4", "ema-9-21", "x"}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 12 {
		t.Fatalf("requests = %d, want 12", len(reqs))
	}
	if reqs[0].Key() != "A/1h/cci4" || reqs[11].Key() != "B/4h/x" {
		t.Errorf("order: first %s last %s", reqs[0].Key(), reqs[11].Key())
	}
	if reqs[5].Options.Limit != 300 {
		t.Errorf("options not propagated: %+v", reqs[5].Options)
	}

	if _, err := buildRequests([]string{"A"}, []string{"7m"}, []string{"cci4"}, opts); !errors.Is(err, model.ErrUnknownInterval) {
		t.Errorf("bad interval err = %v", err)
	}
	if _, err := buildRequests(nil, []string{"1h"}, []string{"cci4"}, opts); err == nil {
		t.Error("expected error for no symbols")
	}
}

func TestPrintReport(t *testing.T) {
	open := time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC)
	good := backtest.Result{
		Symbol: "BTCUSDT", Interval: model.Interval1h, Strategy: "cci4",
		Bars: 45, Profit: 12.5, FinalBalance: 1012.5,
		Positions: []backtest.Position{{
			Direction: backtest.Long, OpenTime: open, CloseTime: open.Add(time.Hour),
			OpenPrice: 100, ClosePrice: 101.25, Reason: backtest.ReasonSignal, Profit: 12.5,
		}},
		Summary: backtest.Summary{Total: backtest.Stats{Count: 1, Wins: 1}},
	}
	report := backtest.BatchReport{Outcomes: []backtest.Outcome{
		{Request: backtest.Request{Symbol: "BTCUSDT", Interval: model.Interval1h, Strategy: "cci4"}, Result: good},
		{Request: backtest.Request{Symbol: "NOPE", Interval: model.Interval1h, Strategy: "cci4"}, Err: model.ErrUpstreamFetch},
	}}

	var buf bytes.Buffer
	printReport(&buf, report, true, 1500*time.Millisecond)
	out := buf.String()
	for _, want := range []string{
		"BTCUSDT    1h   cci4",
		"100.0%",
		"long  2024-03-04 05:00 -> 2024-03-04 06:00",
		"FAILED NOPE/1h/cci4: upstream fetch failed",
		"║  Succeeded:         1                ║",
		"║  Net profit:        12.50            ║",
		"1.5s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
