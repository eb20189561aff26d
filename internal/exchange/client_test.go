package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-engine/internal/model"
)

const klinesBody = `[
 [1709712000000,"100.0","101.5","99.5","101.0","12.5",1709715599999,"1262.5",42,"6.0","606.0","0"],
 [1709715600000,"101.0","102.0","100.5","101.8","8.25",1709719199999,"839.9",30,"4.0","407.2","0"]
]`

type recordingObserver struct {
	mu    sync.Mutex
	calls []error
}

func (o *recordingObserver) UpstreamRequest(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	o.calls = append(o.calls, err)
	o.mu.Unlock()
}

func newTestClient(t *testing.T, h http.HandlerFunc, obs Observer) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, RateLimit: 1000, Burst: 100, BreakerFailures: 2, Observer: obs})
}

func TestFetchBars_ParsesRowsAndQuery(t *testing.T) {
	end := time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)
	obs := &recordingObserver{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, klinesPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "1h", q.Get("interval"))
		assert.Equal(t, "2", q.Get("limit"))
		assert.Equal(t, "1709715600000", q.Get("endTime"))
		_, _ = w.Write([]byte(klinesBody))
	}, obs)

	rows, err := c.FetchBars(context.Background(), "BTCUSDT", model.Interval1h, 2, end)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.RawBar{1709712000000, 100, 101.5, 99.5, 101, 12.5}, rows[0])
	assert.Equal(t, 101.8, rows[1][4])
	require.Len(t, obs.calls, 1)
	assert.NoError(t, obs.calls[0])
}

func TestFetchBars_Errors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"non-2xx with api error", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, "Invalid symbol."},
		{"non-2xx plain", http.StatusBadGateway, `oops`, "HTTP 502"},
		{"malformed json", http.StatusOK, `[[1,2`, "couldn't parse JSON"},
		{"short row", http.StatusOK, `[[1709712000000,"1","2","3"]]`, "expected at least 6 fields"},
		{"non numeric field", http.StatusOK, `[[1709712000000,"abc","2","3","4","5"]]`, "couldn't parse JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, nil)
			_, err := c.FetchBars(context.Background(), "BTCUSDT", model.Interval1h, 2, time.Time{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrUpstreamFetch), "got %v", err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestFetchBars_RejectsBadLimit(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"})
	_, err := c.FetchBars(context.Background(), "BTCUSDT", model.Interval1h, 0, time.Time{})
	assert.ErrorIs(t, err, model.ErrUpstreamFetch)
	_, err = c.FetchBars(context.Background(), "BTCUSDT", model.Interval1h, MaxLimit+1, time.Time{})
	assert.ErrorIs(t, err, model.ErrUpstreamFetch)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)

	for i := 0; i < 2; i++ {
		_, err := c.FetchBars(context.Background(), "BTCUSDT", model.Interval1h, 2, time.Time{})
		require.ErrorIs(t, err, model.ErrUpstreamFetch)
	}
	assert.Equal(t, "open", c.BreakerState())

	_, err := c.FetchBars(context.Background(), "BTCUSDT", model.Interval1h, 2, time.Time{})
	require.ErrorIs(t, err, model.ErrUpstreamFetch)
	mu.Lock()
	assert.Equal(t, 2, hits, "open breaker must not reach the server")
	mu.Unlock()
}

func TestFetchBars_CancelledContext(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0", RateLimit: 0.001, Burst: 1})
	// drain the single token so the next call has to wait
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchBars(ctx, "BTCUSDT", model.Interval1h, 2, time.Time{})
	assert.ErrorIs(t, err, model.ErrUpstreamFetch)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchSymbols(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, infoPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING"},
			{"symbol":"LUNAUSDT","status":"BREAK"},
			{"symbol":"ETHUSDT","status":"TRADING"}]}`))
	}, nil)

	syms, err := c.FetchSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, syms)
}

func TestFetchSymbols_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[]}`))
	}, nil)
	_, err := c.FetchSymbols(context.Background())
	assert.ErrorIs(t, err, model.ErrUpstreamFetch)
}
