package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidefall/go-kline-archive/internal/models"
)

// MemoryStore implements KlineStore on an in-process map. It exists for
// tests and dry runs; it honors the same uniqueness key as the SQL
// backends.
type MemoryStore struct {
	mu     sync.RWMutex
	klines map[memoryKey]models.Kline
}

type memoryKey struct {
	exchange string
	symbol   string
	interval int64
	openTime int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{klines: make(map[memoryKey]models.Kline)}
}

// Initialize implements KlineStore.
func (s *MemoryStore) Initialize(ctx context.Context) error { return nil }

// Insert implements KlineStore.
func (s *MemoryStore) Insert(ctx context.Context, klines []models.Kline) (*InsertReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &InsertReport{}
	for _, k := range klines {
		if err := k.Validate(); err != nil {
			report.Failed++
			continue
		}
		key := memoryKey{k.Exchange, k.Symbol, k.Interval, k.OpenTime}
		if _, exists := s.klines[key]; exists {
			report.Duplicates++
			continue
		}
		s.klines[key] = k
		report.Inserted++
	}
	return report, nil
}

// SelectAll implements KlineStore.
func (s *MemoryStore) SelectAll(ctx context.Context) ([]models.Kline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	klines := make([]models.Kline, 0, len(s.klines))
	for _, k := range s.klines {
		klines = append(klines, k)
	}
	sortKlines(klines)
	return klines, nil
}

// SelectSeries implements KlineStore.
func (s *MemoryStore) SelectSeries(ctx context.Context, exchange, symbol string, interval int64) ([]models.Kline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var klines []models.Kline
	for key, k := range s.klines {
		if key.exchange == exchange && key.symbol == symbol && key.interval == interval {
			klines = append(klines, k)
		}
	}
	sortKlines(klines)
	return klines, nil
}

func sortKlines(klines []models.Kline) {
	sort.Slice(klines, func(i, j int) bool {
		if klines[i].OpenTime != klines[j].OpenTime {
			return klines[i].OpenTime < klines[j].OpenTime
		}
		if klines[i].Exchange != klines[j].Exchange {
			return klines[i].Exchange < klines[j].Exchange
		}
		if klines[i].Symbol != klines[j].Symbol {
			return klines[i].Symbol < klines[j].Symbol
		}
		return klines[i].Interval < klines[j].Interval
	})
}

// SelectRange implements KlineStore.
func (s *MemoryStore) SelectRange(ctx context.Context, exchange, symbol string, interval int64, start, end time.Time) ([]models.Kline, error) {
	all, err := s.SelectSeries(ctx, exchange, symbol, interval)
	if err != nil {
		return nil, err
	}

	startMs, endMs := start.UnixMilli(), end.UnixMilli()
	var klines []models.Kline
	for _, k := range all {
		if k.OpenTime >= startMs && k.OpenTime < endMs {
			klines = append(klines, k)
		}
	}
	return klines, nil
}

// Count implements KlineStore.
func (s *MemoryStore) Count(ctx context.Context, exchange, symbol string, interval int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for key := range s.klines {
		if key.exchange == exchange && key.symbol == symbol && key.interval == interval {
			count++
		}
	}
	return count, nil
}

// Stats implements KlineStore.
func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{TotalKlines: int64(len(s.klines))}
	symbols := make(map[string]struct{})
	var earliest, latest int64
	first := true
	for key := range s.klines {
		symbols[key.exchange+"/"+key.symbol] = struct{}{}
		if first || key.openTime < earliest {
			earliest = key.openTime
		}
		if first || key.openTime > latest {
			latest = key.openTime
		}
		first = false
	}
	stats.TotalSymbols = len(symbols)
	if stats.TotalKlines > 0 {
		stats.EarliestOpen = time.UnixMilli(earliest).UTC()
		stats.LatestOpen = time.UnixMilli(latest).UTC()
	}
	return stats, nil
}

// Close implements KlineStore.
func (s *MemoryStore) Close() error { return nil }
