package kline

import (
	"sort"
	"time"

	"github.com/tidefall/go-kline-archive/internal/models"
)

// Execution is one matched trade in normalized form. Sequence carries the
// exchange-native trade id or sequence marker when the exchange provides
// one; it breaks timestamp ties so bucket assignment is deterministic.
type Execution struct {
	Sequence int64
	Side     string
	Price    float64
	Size     float64
	Time     time.Time
}

// BoundPolicy controls whether the two boundary buckets derived from the
// data's own min/max timestamps are part of a self-derived range.
type BoundPolicy string

const (
	// BoundBoth includes both endpoint buckets.
	BoundBoth BoundPolicy = "both"
	// BoundNeither excludes both endpoint buckets.
	BoundNeither BoundPolicy = "neither"
)

// AggregateExecutions buckets executions into fixed windows of interval
// seconds aligned to epoch boundaries (not to the first execution) and
// computes OHLC from prices plus summed size as volume. Buckets with no
// executions are absent from the result; BuildSeries turns those misses
// into gap rows.
//
// Executions are sorted by timestamp with sequence id as tie-break before
// assignment, so open/close are deterministic.
func AggregateExecutions(executions []Execution, interval int64) map[int64]Bar {
	sorted := make([]Execution, len(executions))
	copy(sorted, executions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Time.Equal(sorted[j].Time) {
			return sorted[i].Time.Before(sorted[j].Time)
		}
		return sorted[i].Sequence < sorted[j].Sequence
	})

	bars := make(map[int64]Bar)
	for _, e := range sorted {
		bucket := floorBoundary(e.Time, interval).UnixMilli()

		bar, ok := bars[bucket]
		if !ok {
			bars[bucket] = Bar{Open: e.Price, High: e.Price, Low: e.Price, Close: e.Price, Volume: e.Size}
			continue
		}

		if e.Price > bar.High {
			bar.High = e.Price
		}
		if e.Price < bar.Low {
			bar.Low = e.Price
		}
		bar.Close = e.Price
		bar.Volume += e.Size
		bars[bucket] = bar
	}

	return bars
}

// ExecutionsToKlines converts executions into a canonical series whose
// bounds are derived from the data itself: the min and max execution
// timestamps rounded to the nearest bucket boundary. The policy decides
// whether those two endpoint buckets are emitted. This is the legacy
// self-deriving variant; clients with an explicit requested range aggregate
// and then call BuildSeries with half-open bounds instead.
func ExecutionsToKlines(exchange, symbol string, interval int64, executions []Execution, policy BoundPolicy) ([]models.Kline, error) {
	if len(executions) == 0 {
		return []models.Kline{}, nil
	}

	minTime := executions[0].Time
	maxTime := executions[0].Time
	for _, e := range executions[1:] {
		if e.Time.Before(minTime) {
			minTime = e.Time
		}
		if e.Time.After(maxTime) {
			maxTime = e.Time
		}
	}

	start := roundBoundary(minTime, interval)
	end := roundBoundary(maxTime, interval)

	step := time.Duration(interval) * time.Second
	switch policy {
	case BoundNeither:
		start = start.Add(step)
		// end boundary excluded by the half-open build below.
	case BoundBoth:
		end = end.Add(step)
	default:
		return nil, &models.ValidationError{Field: "policy", Message: "inclusive bound policy must be \"both\" or \"neither\""}
	}

	if !end.After(start) {
		return []models.Kline{}, nil
	}

	bars := AggregateExecutions(executions, interval)
	return BuildSeries(exchange, symbol, interval, start, end, bars)
}

// floorBoundary aligns t down to the bucket boundary containing it.
// Alignment is computed on epoch milliseconds so sub-second timestamps
// land in the right bucket.
func floorBoundary(t time.Time, interval int64) time.Time {
	stepMs := interval * 1000
	ms := t.UnixMilli()
	ms -= ((ms % stepMs) + stepMs) % stepMs
	return time.UnixMilli(ms).UTC()
}

// roundBoundary aligns t to the nearest bucket boundary, half up.
func roundBoundary(t time.Time, interval int64) time.Time {
	stepMs := interval * 1000
	floor := floorBoundary(t, interval)
	if t.UnixMilli()-floor.UnixMilli() >= stepMs/2 {
		return floor.Add(time.Duration(stepMs) * time.Millisecond)
	}
	return floor
}
