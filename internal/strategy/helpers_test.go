package strategy

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"signal-engine/internal/model"
)

var t0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func loadFixture(t *testing.T) model.BarSeries {
	t.Helper()
	f, err := os.Open("../indicator/testdata/synthetic_1h.csv")
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	var bars []model.Bar
	for _, r := range recs[1:] {
		ts, err := time.Parse(time.RFC3339, r[0])
		if err != nil {
			t.Fatalf("fixture ts: %v", err)
		}
		var v [5]float64
		for i := range v {
			v[i], _ = strconv.ParseFloat(r[i+1], 64)
		}
		bars = append(bars, model.Bar{Time: ts, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]})
	}
	s, err := model.NewBarSeries("BABA", model.Interval1h, len(bars), bars)
	if err != nil {
		t.Fatalf("fixture series: %v", err)
	}
	return s
}

// closesSeries builds hourly bars with the given closes and a fixed range.
func closesSeries(t *testing.T, closes []float64) model.BarSeries {
	t.Helper()
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{Time: t0.Add(time.Duration(i) * time.Hour), Open: c, High: c + 0.25, Low: c - 0.25, Close: c, Volume: 1}
	}
	s, err := model.NewBarSeries("TEST", model.Interval1h, len(bars), bars)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// valleySeries falls for fall bars by 0.5, then rises for rise bars by 1.0.
func valleySeries(t *testing.T, fall, rise int) model.BarSeries {
	closes := make([]float64, 0, fall+rise)
	p := 100.0
	for i := 0; i < fall; i++ {
		p -= 0.5
		closes = append(closes, p)
	}
	for i := 0; i < rise; i++ {
		p += 1.0
		closes = append(closes, p)
	}
	return closesSeries(t, closes)
}

// waveSource serves synthetic bars for any interval, ending at the query's
// end timestamp. Prices follow a slow sine of absolute time, so different
// intervals describe the same market.
type waveSource struct {
	mu      sync.Mutex
	queries []model.BarsQuery
	fail    map[model.Interval]error
	short   int // bars withheld from every response
}

func (w *waveSource) Bars(_ context.Context, q model.BarsQuery) (model.BarSeries, error) {
	w.mu.Lock()
	w.queries = append(w.queries, q)
	err := w.fail[q.Interval]
	w.mu.Unlock()
	if err != nil {
		return model.BarSeries{}, err
	}

	end := q.End()
	n := q.Limit - w.short
	bars := make([]model.Bar, 0, n)
	for i := n - 1; i >= 0; i-- {
		ts := end.Add(-time.Duration(i) * q.Interval.Duration())
		hours := float64(ts.Unix()) / 3600
		c := 100 + 10*math.Sin(hours/30)
		bars = append(bars, model.Bar{Time: ts, Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1})
	}
	return model.NewBarSeries(q.Symbol, q.Interval, q.Limit, bars)
}
