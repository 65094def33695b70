package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/tidefall/go-kline-archive/internal/models"
)

// DuckDBStore implements KlineStore on DuckDB. It is the analytical
// backend: same schema and idempotence contract as SQLite, but columnar
// storage for range scans over long archives. Duplicates are absorbed by
// INSERT OR IGNORE, so the report derives them from rows affected.
type DuckDBStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewDuckDBStore opens (or creates) the DuckDB database at path. Use
// ":memory:" for an ephemeral store.
func NewDuckDBStore(path string, logger *slog.Logger) (*DuckDBStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, NewStorageError("open", "", err)
	}

	// Single writer pattern, as recommended for DuckDB.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &DuckDBStore{db: db, path: path, logger: logger.With("store", "duckdb")}, nil
}

// Initialize implements KlineStore.
func (s *DuckDBStore) Initialize(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		exchange  VARCHAR NOT NULL,
		symbol    VARCHAR NOT NULL,
		interval  BIGINT  NOT NULL,
		open_time BIGINT  NOT NULL,
		open      DOUBLE,
		high      DOUBLE,
		low       DOUBLE,
		close     DOUBLE,
		volume    DOUBLE,
		UNIQUE (exchange, symbol, interval, open_time)
	)`, klinesTable)

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return NewStorageError("initialize", klinesTable, err)
	}

	s.logger.Info("duckdb store initialized", "path", s.path)
	return nil
}

// Insert implements KlineStore.
func (s *DuckDBStore) Insert(ctx context.Context, klines []models.Kline) (*InsertReport, error) {
	report := &InsertReport{}
	if len(klines) == 0 {
		return report, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, NewStorageError("insert", klinesTable, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT OR IGNORE INTO %s (exchange, symbol, interval, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, klinesTable))
	if err != nil {
		return nil, NewStorageError("insert", klinesTable, err)
	}
	defer stmt.Close()

	for _, k := range klines {
		if err := k.Validate(); err != nil {
			s.logger.Warn("skipping invalid kline", "kline", k.String(), "error", err)
			report.Failed++
			continue
		}

		res, err := stmt.ExecContext(ctx,
			k.Exchange, k.Symbol, k.Interval, k.OpenTime,
			k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			s.logger.Error("kline insert failed", "kline", k.String(), "error", err)
			report.Failed++
			continue
		}

		affected, err := res.RowsAffected()
		if err == nil && affected == 0 {
			report.Duplicates++
			continue
		}
		report.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return nil, NewStorageError("insert", klinesTable, err)
	}

	if report.Duplicates > 0 {
		s.logger.Warn("duplicate klines skipped",
			"duplicates", report.Duplicates,
			"inserted", report.Inserted)
	}
	return report, nil
}

// SelectAll implements KlineStore.
func (s *DuckDBStore) SelectAll(ctx context.Context) ([]models.Kline, error) {
	query := fmt.Sprintf(`
		SELECT exchange, symbol, interval, open_time, open, high, low, close, volume
		FROM %s
		ORDER BY open_time ASC, exchange, symbol, interval`, klinesTable)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewStorageError("select", klinesTable, err)
	}
	defer rows.Close()

	return scanKlines(rows)
}

// SelectSeries implements KlineStore.
func (s *DuckDBStore) SelectSeries(ctx context.Context, exchange, symbol string, interval int64) ([]models.Kline, error) {
	query := fmt.Sprintf(`
		SELECT exchange, symbol, interval, open_time, open, high, low, close, volume
		FROM %s
		WHERE exchange = ? AND symbol = ? AND interval = ?
		ORDER BY open_time ASC`, klinesTable)

	rows, err := s.db.QueryContext(ctx, query, exchange, symbol, interval)
	if err != nil {
		return nil, NewStorageError("select", klinesTable, err)
	}
	defer rows.Close()

	return scanKlines(rows)
}

// SelectRange implements KlineStore.
func (s *DuckDBStore) SelectRange(ctx context.Context, exchange, symbol string, interval int64, start, end time.Time) ([]models.Kline, error) {
	query := fmt.Sprintf(`
		SELECT exchange, symbol, interval, open_time, open, high, low, close, volume
		FROM %s
		WHERE exchange = ? AND symbol = ? AND interval = ?
		  AND open_time >= ? AND open_time < ?
		ORDER BY open_time ASC`, klinesTable)

	rows, err := s.db.QueryContext(ctx, query, exchange, symbol, interval, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, NewStorageError("select", klinesTable, err)
	}
	defer rows.Close()

	return scanKlines(rows)
}

// Count implements KlineStore.
func (s *DuckDBStore) Count(ctx context.Context, exchange, symbol string, interval int64) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE exchange = ? AND symbol = ? AND interval = ?`, klinesTable)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, exchange, symbol, interval).Scan(&count); err != nil {
		return 0, NewStorageError("count", klinesTable, err)
	}
	return count, nil
}

// Stats implements KlineStore.
func (s *DuckDBStore) Stats(ctx context.Context) (*Stats, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(DISTINCT exchange || '/' || symbol),
		       COALESCE(MIN(open_time), 0),
		       COALESCE(MAX(open_time), 0)
		FROM %s`, klinesTable)

	var stats Stats
	var earliest, latest int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.TotalKlines, &stats.TotalSymbols, &earliest, &latest); err != nil {
		return nil, NewStorageError("stats", klinesTable, err)
	}
	if stats.TotalKlines > 0 {
		stats.EarliestOpen = time.UnixMilli(earliest).UTC()
		stats.LatestOpen = time.UnixMilli(latest).UTC()
	}
	return &stats, nil
}

// Close implements KlineStore.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}
