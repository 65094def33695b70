// Package storage persists canonical klines. Backends share one contract:
// inserts are idempotent on the (exchange, symbol, interval, open_time) key,
// duplicate rows are counted rather than failed, and reads come back in
// open-time order.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/tidefall/go-kline-archive/internal/models"
)

// KlineStore is the persistence contract shared by all backends.
type KlineStore interface {
	// Initialize prepares the backend for use: creates tables, indexes,
	// and the uniqueness constraint. Safe to call more than once.
	Initialize(ctx context.Context) error

	// Insert stores the klines, skipping rows already present under the
	// (exchange, symbol, interval, open_time) key. The returned report
	// breaks the batch down into inserted, duplicate, and failed rows;
	// an error is returned only when the batch as a whole cannot be
	// attempted.
	Insert(ctx context.Context, klines []models.Kline) (*InsertReport, error)

	// SelectAll returns every stored kline across all series, ordered by
	// open time ascending.
	SelectAll(ctx context.Context) ([]models.Kline, error)

	// SelectSeries returns every stored kline for one series, ordered by
	// open time ascending.
	SelectSeries(ctx context.Context, exchange, symbol string, interval int64) ([]models.Kline, error)

	// SelectRange returns the series rows with open_time in
	// [start, end), ordered by open time ascending.
	SelectRange(ctx context.Context, exchange, symbol string, interval int64, start, end time.Time) ([]models.Kline, error)

	// Count returns the number of stored rows for the series.
	Count(ctx context.Context, exchange, symbol string, interval int64) (int64, error)

	// Stats reports aggregate figures across all stored klines.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the backend's resources.
	Close() error
}

// InsertReport summarizes an Insert call.
type InsertReport struct {
	Inserted   int
	Duplicates int
	Failed     int
}

// Total is the number of rows the insert attempted.
func (r *InsertReport) Total() int {
	return r.Inserted + r.Duplicates + r.Failed
}

// Stats holds aggregate figures about stored klines.
type Stats struct {
	TotalKlines  int64
	TotalSymbols int
	EarliestOpen time.Time
	LatestOpen   time.Time
}

// StorageError wraps a backend failure with operation context.
type StorageError struct {
	Operation string
	Table     string
	Err       error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage operation %s on table %s failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a StorageError with the provided context.
func NewStorageError(operation, table string, err error) *StorageError {
	return &StorageError{Operation: operation, Table: table, Err: err}
}
