// Package kline implements the normalization core: building dense,
// gap-aware canonical series from sparse per-bucket data, and aggregating
// raw trade executions into those buckets. Exchange clients feed either
// pre-aggregated candles or executions through this package to produce the
// canonical schema.
package kline

import (
	"fmt"
	"sort"
	"time"

	"github.com/tidefall/go-kline-archive/internal/models"
)

// Bar is a partial OHLCV value for a single bucket, keyed externally by the
// bucket's open time. It is the intermediate shape between raw exchange
// payloads and the canonical dense series.
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// BuildSeries produces the dense canonical series for [start, end) at the
// given interval. Boundaries are generated from start itself (not rounded),
// stepping interval seconds; each boundary is left-joined against sub, a
// sparse map from bucket-open epoch milliseconds to Bar. Boundaries with no
// entry become gap rows with nil OHLCV.
//
// The result is ascending in time with exactly (end-start)/interval rows.
func BuildSeries(exchange, symbol string, interval int64, start, end time.Time, sub map[int64]Bar) ([]models.Kline, error) {
	if exchange == "" {
		return nil, &models.ValidationError{Field: "exchange", Message: "exchange cannot be empty"}
	}
	if symbol == "" {
		return nil, &models.ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if interval <= 0 {
		return nil, &models.ValidationError{Field: "interval", Message: fmt.Sprintf("interval must be positive, got %d", interval)}
	}
	if !end.After(start) {
		return nil, &models.ValidationError{Field: "end", Message: "end must be after start"}
	}

	start = start.UTC()
	end = end.UTC()

	step := time.Duration(interval) * time.Second
	count := int(end.Sub(start) / step)
	if start.Add(time.Duration(count) * step).Before(end) {
		// end is not aligned to a boundary; the last partial bucket still
		// opens inside the half-open range.
		count++
	}

	klines := make([]models.Kline, 0, count)
	for t := start; t.Before(end); t = t.Add(step) {
		k := models.Kline{
			Exchange: exchange,
			Symbol:   symbol,
			Interval: interval,
			OpenTime: t.UnixMilli(),
		}
		if bar, ok := sub[t.UnixMilli()]; ok {
			k.Open = ptr(bar.Open)
			k.High = ptr(bar.High)
			k.Low = ptr(bar.Low)
			k.Close = ptr(bar.Close)
			k.Volume = ptr(bar.Volume)
		}
		klines = append(klines, k)
	}

	return klines, nil
}

// Clip returns the klines whose open time falls inside [start, end).
// Clients that accumulate more raw data than requested use this to trim the
// converted series back to the caller's range.
func Clip(klines []models.Kline, start, end time.Time) []models.Kline {
	startMs := start.UnixMilli()
	endMs := end.UnixMilli()

	clipped := make([]models.Kline, 0, len(klines))
	for _, k := range klines {
		if k.OpenTime >= startMs && k.OpenTime < endMs {
			clipped = append(clipped, k)
		}
	}
	return clipped
}

// SortByOpenTime orders klines ascending by open time in place.
func SortByOpenTime(klines []models.Kline) {
	sort.Slice(klines, func(i, j int) bool { return klines[i].OpenTime < klines[j].OpenTime })
}

func ptr(v float64) *float64 { return &v }
