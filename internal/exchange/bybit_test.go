package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestBybitClient(serverURL string) *BybitClient {
	c := NewBybitClient()
	c.baseURL = serverURL
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func bybitKlineRow(openTime time.Time, open, high, low, close, volume string) bybitKline {
	return bybitKline{
		Symbol:   "BTCUSD",
		Interval: "1",
		OpenTime: openTime.Unix(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   volume,
	}
}

func TestBybitGetKlines(t *testing.T) {
	start := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Minute)

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		require.Equal(t, "/v2/public/kline/list", r.URL.Path)
		assert.Equal(t, "BTCUSD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1", r.URL.Query().Get("interval"))
		assert.Equal(t, strconv.FormatInt(start.Unix(), 10), r.URL.Query().Get("from"))

		// Short page: pagination stops after one request.
		_ = json.NewEncoder(w).Encode(bybitEnvelope{
			Result: []bybitKline{
				bybitKlineRow(start, "38000", "38100", "37900", "38050", "120"),
				bybitKlineRow(start.Add(2*time.Minute), "38050", "38060", "38000", "38020", "95"),
			},
		})
	}))
	defer server.Close()

	client := newTestBybitClient(server.URL)
	klines, err := client.GetKlines(context.Background(), "BTCUSD", 60, start, end)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))

	require.Len(t, klines, 3)
	assert.Equal(t, "BybitInversePerpetual", klines[0].Exchange)
	require.False(t, klines[0].IsGap())
	assert.Equal(t, 38000.0, *klines[0].Open)
	assert.True(t, klines[1].IsGap())
	assert.False(t, klines[2].IsGap())
}

func TestBybitGetKlinesRejection(t *testing.T) {
	start := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bybitEnvelope{RetCode: 10001, RetMsg: "invalid request"})
	}))
	defer server.Close()

	// A rejected page terminates pagination; the caller still gets the
	// dense series, all gaps.
	client := newTestBybitClient(server.URL)
	klines, err := client.GetKlines(context.Background(), "BTCUSD", 60, start, end)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.True(t, klines[0].IsGap())
	assert.True(t, klines[1].IsGap())
}

func TestBybitGetKlinesValidation(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer server.Close()

	client := newTestBybitClient(server.URL)
	start := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		symbol   string
		interval int64
	}{
		{"unknown_symbol", "BTC_JPY", 60},
		{"interval_below_minimum", "BTCUSD", 30},
		{"interval_without_encoding", "BTCUSD", 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.GetKlines(context.Background(), tt.symbol, tt.interval, start, start.Add(time.Hour))
			require.Error(t, err)

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(&requests))
}

func TestBybitGetKlinesPagination(t *testing.T) {
	start := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Duration(bybitKlinesPerPage+5) * time.Minute)

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)

		from, err := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		require.NoError(t, err)
		cursor := time.Unix(from, 0).UTC()

		rows := make([]bybitKline, 0)
		for ts := cursor; ts.Before(end) && len(rows) < bybitKlinesPerPage; ts = ts.Add(time.Minute) {
			rows = append(rows, bybitKlineRow(ts, "38000", "38100", "37900", "38050", "10"))
		}
		_ = json.NewEncoder(w).Encode(bybitEnvelope{Result: rows})
	}))
	defer server.Close()

	client := newTestBybitClient(server.URL)
	klines, err := client.GetKlines(context.Background(), "BTCUSD", 60, start, end)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	assert.Len(t, klines, bybitKlinesPerPage+5)
	for _, k := range klines {
		assert.False(t, k.IsGap())
	}
}

func TestBybitGetKlinesFullMalformedPageStops(t *testing.T) {
	start := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Duration(bybitKlinesPerPage+5) * time.Minute)

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)

		// A full page where every row has unparseable prices.
		rows := make([]bybitKline, 0, bybitKlinesPerPage)
		for i := 0; i < bybitKlinesPerPage; i++ {
			ts := start.Add(time.Duration(i) * time.Minute)
			rows = append(rows, bybitKlineRow(ts, "bogus", "bogus", "bogus", "bogus", "bogus"))
		}
		_ = json.NewEncoder(w).Encode(bybitEnvelope{Result: rows})
	}))
	defer server.Close()

	client := newTestBybitClient(server.URL)
	klines, err := client.GetKlines(context.Background(), "BTCUSD", 60, start, end)
	require.NoError(t, err)

	// Nothing in the page moved the cursor forward, so the client must
	// give up instead of re-requesting the same window.
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	require.Len(t, klines, bybitKlinesPerPage+5)
	for _, k := range klines {
		assert.True(t, k.IsGap())
	}
}
