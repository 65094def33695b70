package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/tidefall/go-kline-archive/internal/models"
)

const klinesTable = "klines"

// SQLiteStore implements KlineStore on a SQLite database file. It is the
// default backend: a single archive file, no server, and a uniqueness
// constraint that makes re-ingesting an already-covered range a no-op.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database at path. Use
// ":memory:" for an ephemeral store.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, NewStorageError("open", "", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db, path: path, logger: logger.With("store", "sqlite")}, nil
}

// Initialize implements KlineStore.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		exchange  TEXT    NOT NULL,
		symbol    TEXT    NOT NULL,
		interval  INTEGER NOT NULL,
		open_time INTEGER NOT NULL,
		open      REAL,
		high      REAL,
		low       REAL,
		close     REAL,
		volume    REAL,
		UNIQUE (exchange, symbol, interval, open_time)
	)`, klinesTable)

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return NewStorageError("initialize", klinesTable, err)
	}

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_series
		ON %s (exchange, symbol, interval, open_time)`, klinesTable, klinesTable)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return NewStorageError("initialize", klinesTable, err)
	}

	s.logger.Info("sqlite store initialized", "path", s.path)
	return nil
}

// Insert implements KlineStore. Rows are written one at a time inside a
// single transaction so a duplicate only skips itself, never the batch.
func (s *SQLiteStore) Insert(ctx context.Context, klines []models.Kline) (*InsertReport, error) {
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
		INSERT INTO %s (exchange, symbol, interval, open_time, open, high, low, close, volume)
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

		_, err := stmt.ExecContext(ctx,
			k.Exchange, k.Symbol, k.Interval, k.OpenTime,
			k.Open, k.High, k.Low, k.Close, k.Volume)
		if err == nil {
			report.Inserted++
			continue
		}

		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			report.Duplicates++
			continue
		}

		s.logger.Error("kline insert failed", "kline", k.String(), "error", err)
		report.Failed++
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
func (s *SQLiteStore) SelectAll(ctx context.Context) ([]models.Kline, error) {
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
func (s *SQLiteStore) SelectSeries(ctx context.Context, exchange, symbol string, interval int64) ([]models.Kline, error) {
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
func (s *SQLiteStore) SelectRange(ctx context.Context, exchange, symbol string, interval int64, start, end time.Time) ([]models.Kline, error) {
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
func (s *SQLiteStore) Count(ctx context.Context, exchange, symbol string, interval int64) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE exchange = ? AND symbol = ? AND interval = ?`, klinesTable)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, exchange, symbol, interval).Scan(&count); err != nil {
		return 0, NewStorageError("count", klinesTable, err)
	}
	return count, nil
}

// Stats implements KlineStore.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanKlines drains a result set whose columns match the canonical schema.
func scanKlines(rows *sql.Rows) ([]models.Kline, error) {
	var klines []models.Kline
	for rows.Next() {
		var k models.Kline
		if err := rows.Scan(&k.Exchange, &k.Symbol, &k.Interval, &k.OpenTime,
			&k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, NewStorageError("scan", klinesTable, err)
		}
		klines = append(klines, k)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("scan", klinesTable, err)
	}
	return klines, nil
}
