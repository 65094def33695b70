package kline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateExecutionsSingleBucket(t *testing.T) {
	base := time.Date(2022, 4, 12, 14, 48, 0, 0, time.UTC)
	executions := []Execution{
		{Sequence: 1, Side: "BUY", Price: 100, Size: 0.1, Time: base.Add(5 * time.Second)},
		{Sequence: 2, Side: "SELL", Price: 105, Size: 0.2, Time: base.Add(40 * time.Second)},
	}

	bars := AggregateExecutions(executions, 60)
	require.Len(t, bars, 1)

	bar, ok := bars[base.UnixMilli()]
	require.True(t, ok)
	assert.Equal(t, 100.0, bar.Open)
	assert.Equal(t, 105.0, bar.High)
	assert.Equal(t, 100.0, bar.Low)
	assert.Equal(t, 105.0, bar.Close)
	assert.InDelta(t, 0.3, bar.Volume, 1e-12)
}

func TestAggregateExecutionsCalendarAligned(t *testing.T) {
	// First execution at 14:48:30; its bucket must open at 14:48:00, not at
	// the execution's own timestamp.
	ts := time.Date(2022, 4, 12, 14, 48, 30, 0, time.UTC)
	bars := AggregateExecutions([]Execution{{Sequence: 1, Price: 5000000, Size: 0.01, Time: ts}}, 60)

	bucket := time.Date(2022, 4, 12, 14, 48, 0, 0, time.UTC).UnixMilli()
	_, ok := bars[bucket]
	assert.True(t, ok)
}

func TestAggregateExecutionsSequenceTieBreak(t *testing.T) {
	// Same timestamp: the lower sequence id is first, so it supplies the
	// open and the higher one the close, regardless of input order.
	ts := time.Date(2022, 4, 12, 14, 48, 1, 828000000, time.UTC)
	executions := []Execution{
		{Sequence: 20, Price: 105, Size: 0.2, Time: ts},
		{Sequence: 10, Price: 100, Size: 0.1, Time: ts},
	}

	bars := AggregateExecutions(executions, 60)
	require.Len(t, bars, 1)
	for _, bar := range bars {
		assert.Equal(t, 100.0, bar.Open)
		assert.Equal(t, 105.0, bar.Close)
	}
}

func TestAggregateExecutionsMultipleBuckets(t *testing.T) {
	base := time.Date(2022, 4, 12, 14, 48, 0, 0, time.UTC)
	executions := []Execution{
		{Sequence: 1, Price: 100, Size: 1, Time: base},
		{Sequence: 2, Price: 110, Size: 2, Time: base.Add(61 * time.Second)},
		{Sequence: 3, Price: 90, Size: 3, Time: base.Add(62 * time.Second)},
		// 14:50 bucket stays empty and must be absent.
		{Sequence: 4, Price: 95, Size: 4, Time: base.Add(3*time.Minute + time.Second)},
	}

	bars := AggregateExecutions(executions, 60)
	require.Len(t, bars, 3)

	second := bars[base.Add(time.Minute).UnixMilli()]
	assert.Equal(t, 110.0, second.Open)
	assert.Equal(t, 110.0, second.High)
	assert.Equal(t, 90.0, second.Low)
	assert.Equal(t, 90.0, second.Close)
	assert.Equal(t, 5.0, second.Volume)

	_, ok := bars[base.Add(2*time.Minute).UnixMilli()]
	assert.False(t, ok)
}

// A span shorter than one interval yields zero rows under "neither" and at
// least one row under "both".
func TestExecutionsToKlinesBoundPolicy(t *testing.T) {
	ts := time.Date(2022, 4, 12, 14, 48, 1, 828000000, time.UTC)
	executions := []Execution{
		{Sequence: 1, Side: "SELL", Price: 5010271.0, Size: 0.01, Time: ts},
		{Sequence: 2, Side: "BUY", Price: 5010271.0, Size: 0.01, Time: ts},
	}

	klines, err := ExecutionsToKlines("GMOCoin", "BTC_JPY", 60, executions, BoundNeither)
	require.NoError(t, err)
	assert.Len(t, klines, 0)

	klines, err = ExecutionsToKlines("GMOCoin", "BTC_JPY", 60, executions, BoundBoth)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(klines), 1)

	k := klines[0]
	assert.Equal(t, "GMOCoin", k.Exchange)
	assert.Equal(t, "BTC_JPY", k.Symbol)
	require.NotNil(t, k.Volume)
	assert.InDelta(t, 0.02, *k.Volume, 1e-12)
}

func TestExecutionsToKlinesDerivedRange(t *testing.T) {
	base := time.Date(2022, 4, 12, 14, 48, 0, 0, time.UTC)
	executions := []Execution{
		{Sequence: 1, Price: 100, Size: 1, Time: base.Add(10 * time.Second)},
		{Sequence: 2, Price: 110, Size: 1, Time: base.Add(5*time.Minute + 50*time.Second)},
	}

	// min rounds down to 14:48, max rounds up to 14:54.
	klines, err := ExecutionsToKlines("BitFlyer", "FX_BTC_JPY", 60, executions, BoundBoth)
	require.NoError(t, err)
	require.Len(t, klines, 7)

	assert.Equal(t, base.UnixMilli(), klines[0].OpenTime)
	assert.Equal(t, base.Add(6*time.Minute).UnixMilli(), klines[6].OpenTime)

	assert.False(t, klines[0].IsGap())
	assert.False(t, klines[5].IsGap())
	for _, k := range klines[1:5] {
		assert.True(t, k.IsGap())
	}
	assert.True(t, klines[6].IsGap())
}

func TestExecutionsToKlinesEmptyInput(t *testing.T) {
	klines, err := ExecutionsToKlines("GMOCoin", "BTC_JPY", 60, nil, BoundBoth)
	require.NoError(t, err)
	assert.Empty(t, klines)
}

func TestExecutionsToKlinesBadPolicy(t *testing.T) {
	executions := []Execution{{Sequence: 1, Price: 1, Size: 1, Time: time.Now()}}
	_, err := ExecutionsToKlines("GMOCoin", "BTC_JPY", 60, executions, BoundPolicy("left"))
	assert.Error(t, err)
}

func TestBoundaryRounding(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"rounds_down_below_half",
			time.Date(2022, 1, 1, 0, 0, 29, 0, time.UTC),
			time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"rounds_up_at_half",
			time.Date(2022, 1, 1, 0, 0, 30, 0, time.UTC),
			time.Date(2022, 1, 1, 0, 1, 0, 0, time.UTC),
		},
		{
			"exact_boundary_unchanged",
			time.Date(2022, 1, 1, 0, 1, 0, 0, time.UTC),
			time.Date(2022, 1, 1, 0, 1, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, roundBoundary(tt.in, 60))
		})
	}
}
