package kline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidefall/go-kline-archive/internal/models"
)

func TestBuildSeriesEmptySub(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 1, 1, 0, 2, 0, 0, time.UTC)

	klines, err := BuildSeries("X", "S1", 60, start, end, nil)
	require.NoError(t, err)
	require.Len(t, klines, 2)

	assert.Equal(t, start.UnixMilli(), klines[0].OpenTime)
	assert.Equal(t, start.Add(time.Minute).UnixMilli(), klines[1].OpenTime)

	for _, k := range klines {
		assert.Equal(t, "X", k.Exchange)
		assert.Equal(t, "S1", k.Symbol)
		assert.Equal(t, int64(60), k.Interval)
		assert.True(t, k.IsGap())
		assert.Nil(t, k.Volume)
	}
}

func TestBuildSeriesLeftJoin(t *testing.T) {
	start := time.Date(2022, 4, 12, 14, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Minute)

	sub := map[int64]Bar{
		start.Add(time.Minute).UnixMilli(): {Open: 100, High: 105, Low: 99, Close: 104, Volume: 0.5},
	}

	klines, err := BuildSeries("GMOCoin", "BTC_JPY", 60, start, end, sub)
	require.NoError(t, err)
	require.Len(t, klines, 3)

	assert.True(t, klines[0].IsGap())
	assert.True(t, klines[2].IsGap())

	k := klines[1]
	require.NotNil(t, k.Open)
	assert.Equal(t, 100.0, *k.Open)
	assert.Equal(t, 105.0, *k.High)
	assert.Equal(t, 99.0, *k.Low)
	assert.Equal(t, 104.0, *k.Close)
	assert.Equal(t, 0.5, *k.Volume)
}

// Row count must be exactly (end-start)/interval, strictly increasing, with
// no duplicate open times.
func TestBuildSeriesRowCount(t *testing.T) {
	tests := []struct {
		name     string
		interval int64
		span     time.Duration
		want     int
	}{
		{"one_minute_buckets_over_hour", 60, time.Hour, 60},
		{"hour_buckets_over_day", 3600, 24 * time.Hour, 24},
		{"twelve_hour_buckets_over_week", 43200, 7 * 24 * time.Hour, 14},
		{"odd_interval", 90, 45 * time.Minute, 30},
		{"single_bucket", 86400, 24 * time.Hour, 1},
	}

	start := time.Date(2021, 4, 15, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			klines, err := BuildSeries("Binance", "BTCUSDT", tt.interval, start, start.Add(tt.span), nil)
			require.NoError(t, err)
			assert.Len(t, klines, tt.want)

			for i := 1; i < len(klines); i++ {
				assert.Greater(t, klines[i].OpenTime, klines[i-1].OpenTime)
				assert.Equal(t, tt.interval*1000, klines[i].OpenTime-klines[i-1].OpenTime)
			}
		})
	}
}

func TestBuildSeriesNormalizesZones(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	start := time.Date(2022, 1, 1, 9, 0, 0, 0, jst) // 00:00 UTC
	end := start.Add(2 * time.Minute)

	klines, err := BuildSeries("BitFlyer", "BTC_JPY", 60, start, end, nil)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), klines[0].OpenTime)
}

func TestBuildSeriesValidation(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name     string
		exchange string
		symbol   string
		interval int64
		start    time.Time
		end      time.Time
	}{
		{"empty_exchange", "", "BTC_JPY", 60, start, end},
		{"empty_symbol", "GMOCoin", "", 60, start, end},
		{"zero_interval", "GMOCoin", "BTC_JPY", 0, start, end},
		{"negative_interval", "GMOCoin", "BTC_JPY", -1, start, end},
		{"start_equals_end", "GMOCoin", "BTC_JPY", 60, start, start},
		{"start_after_end", "GMOCoin", "BTC_JPY", 60, end, start},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSeries(tt.exchange, tt.symbol, tt.interval, tt.start, tt.end, nil)
			require.Error(t, err)

			var verr *models.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestClip(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	klines, err := BuildSeries("FTX", "BTC-PERP", 60, start, start.Add(10*time.Minute), nil)
	require.NoError(t, err)

	clipped := Clip(klines, start.Add(2*time.Minute), start.Add(5*time.Minute))
	require.Len(t, clipped, 3)
	assert.Equal(t, start.Add(2*time.Minute).UnixMilli(), clipped[0].OpenTime)
	assert.Equal(t, start.Add(4*time.Minute).UnixMilli(), clipped[2].OpenTime)
}
