// Kline archive CLI.
// Collects historical klines from cryptocurrency exchanges, persists them
// to a local database, and exports them to flat files.
//
// Usage:
//
//	klines ingest --exchange gmocoin --symbol BTC_JPY --frequency 1T --start 2021-05-01 --end 2021-06-01
//	klines export --exchange gmocoin --symbol BTC_JPY --frequency 1T --out klines.csv
//	klines stats
//
// For detailed help on any command, use: klines <command> --help
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tidefall/go-kline-archive/internal/config"
	"github.com/tidefall/go-kline-archive/internal/exchange"
	"github.com/tidefall/go-kline-archive/internal/files"
	"github.com/tidefall/go-kline-archive/internal/interval"
	"github.com/tidefall/go-kline-archive/internal/logger"
	"github.com/tidefall/go-kline-archive/internal/models"
	"github.com/tidefall/go-kline-archive/internal/pipeline"
	"github.com/tidefall/go-kline-archive/internal/storage"
)

const (
	appName = "klines"
	version = "1.0.0"
)

// Exit codes following standard conventions
const (
	exitSuccess     = 0
	exitUsageError  = 1
	exitConfigError = 2
	exitDataError   = 4
	exitInterrupt   = 130
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsageError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(exitConfigError)
	}

	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(exitConfigError)
	}
	slog.SetDefault(log)

	app := &cli{config: cfg, logger: log}

	var code int
	switch os.Args[1] {
	case "ingest":
		code = app.runIngest(ctx, os.Args[2:])
	case "export":
		code = app.runExport(ctx, os.Args[2:])
	case "stats":
		code = app.runStats(ctx, os.Args[2:])
	case "version":
		fmt.Printf("%s %s\n", appName, version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, os.Args[1])
		printUsage()
		code = exitUsageError
	}

	if ctx.Err() != nil {
		code = exitInterrupt
	}
	os.Exit(code)
}

type cli struct {
	config *config.Config
	logger *slog.Logger
}

func (c *cli) runIngest(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	exchangeName := fs.String("exchange", "", "exchange to collect from (gmocoin, bitflyer, bybit, binance, ftx)")
	symbol := fs.String("symbol", "", "symbol to collect")
	frequency := fs.String("frequency", "1T", "interval as a frequency code (e.g. 15T, 1H, 1D)")
	startStr := fs.String("start", "", "range start, inclusive (YYYY-MM-DD or RFC 3339)")
	endStr := fs.String("end", "", "range end, exclusive (YYYY-MM-DD or RFC 3339)")
	chunk := fs.Duration("chunk", 0, "persist in chunks of this duration (0 = single fetch)")
	fs.Parse(args)

	client, err := newClient(*exchangeName, c.logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return exitUsageError
	}
	if c.config.RequestsPerSecond > 0 {
		client.SetRequestsPerSecond(c.config.RequestsPerSecond)
	}

	intervalSeconds, err := interval.FromFrequency(*frequency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return exitUsageError
	}

	start, err := parseTime(*startStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid --start: %v\n", appName, err)
		return exitUsageError
	}
	end, err := parseTime(*endStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid --end: %v\n", appName, err)
		return exitUsageError
	}

	store, err := c.openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return exitConfigError
	}
	defer store.Close()

	ingestor := pipeline.NewIngestor(client, store, c.logger)
	ingestor.ChunkDuration = *chunk

	report, err := ingestor.Run(ctx, *symbol, intervalSeconds, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: ingest failed: %v\n", appName, err)
		return exitDataError
	}

	fmt.Printf("run %s: fetched %d, inserted %d, duplicates %d, failed %d in %s\n",
		report.RunID, report.Fetched, report.Inserted, report.Duplicates, report.Failed, report.Elapsed)
	return exitSuccess
}

func (c *cli) runExport(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	exchangeName := fs.String("exchange", "", "exchange the series was collected from")
	symbol := fs.String("symbol", "", "symbol to export")
	frequency := fs.String("frequency", "1T", "interval as a frequency code")
	out := fs.String("out", "", "output path; .csv or .gob decides the format")
	startStr := fs.String("start", "", "optional range start, inclusive")
	endStr := fs.String("end", "", "optional range end, exclusive")
	fs.Parse(args)

	client, err := newClient(*exchangeName, c.logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return exitUsageError
	}
	if *out == "" {
		fmt.Fprintf(os.Stderr, "%s: --out is required\n", appName)
		return exitUsageError
	}

	intervalSeconds, err := interval.FromFrequency(*frequency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return exitUsageError
	}

	store, err := c.openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return exitConfigError
	}
	defer store.Close()

	klines, err := c.selectKlines(ctx, store, client.Name(), *symbol, intervalSeconds, *startStr, *endStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return exitDataError
	}

	switch {
	case strings.HasSuffix(*out, ".gob"):
		err = files.WriteGobFile(*out, klines)
	default:
		err = files.WriteCSVFile(*out, klines)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: export failed: %v\n", appName, err)
		return exitDataError
	}

	fmt.Printf("exported %d klines to %s\n", len(klines), *out)
	return exitSuccess
}

func (c *cli) runStats(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(args)

	store, err := c.openStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return exitConfigError
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return exitDataError
	}

	fmt.Printf("klines:   %d\n", stats.TotalKlines)
	fmt.Printf("series:   %d\n", stats.TotalSymbols)
	if stats.TotalKlines > 0 {
		fmt.Printf("earliest: %s\n", stats.EarliestOpen.Format(time.RFC3339))
		fmt.Printf("latest:   %s\n", stats.LatestOpen.Format(time.RFC3339))
	}
	return exitSuccess
}

func (c *cli) openStore(ctx context.Context) (storage.KlineStore, error) {
	var store storage.KlineStore
	var err error

	switch c.config.StorageDriver {
	case "sqlite":
		store, err = storage.NewSQLiteStore(c.config.DatabasePath, c.logger)
	case "duckdb":
		store, err = storage.NewDuckDBStore(c.config.DatabasePath, c.logger)
	case "memory":
		store = storage.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.config.StorageDriver)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func (c *cli) selectKlines(ctx context.Context, store storage.KlineStore, exchangeName, symbol string, intervalSeconds int64, startStr, endStr string) ([]models.Kline, error) {
	if startStr == "" && endStr == "" {
		return store.SelectSeries(ctx, exchangeName, symbol, intervalSeconds)
	}

	start, err := parseTime(startStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := parseTime(endStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --end: %w", err)
	}
	return store.SelectRange(ctx, exchangeName, symbol, intervalSeconds, start, end)
}

// newClient maps an exchange name to its client. Every client satisfies
// KlineFetcher plus SetRequestsPerSecond from the shared base.
func newClient(name string, log *slog.Logger) (exchangeClient, error) {
	switch strings.ToLower(name) {
	case "gmocoin":
		return exchange.NewGMOCoinClientWithLogger(log), nil
	case "bitflyer":
		return exchange.NewBitFlyerClientWithLogger(log), nil
	case "bybit":
		return exchange.NewBybitClientWithLogger(log), nil
	case "binance":
		return exchange.NewBinanceClientWithLogger(log), nil
	case "ftx":
		return exchange.NewFTXClientWithLogger(log), nil
	case "":
		return nil, fmt.Errorf("--exchange is required")
	default:
		return nil, fmt.Errorf("unknown exchange %q", name)
	}
}

type exchangeClient interface {
	exchange.KlineFetcher
	SetRequestsPerSecond(rps float64)
}

// parseTime accepts a bare date or a full RFC 3339 timestamp, always UTC.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("value is required")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func printUsage() {
	fmt.Printf(`%s %s - historical kline archiver

Usage:
  %s <command> [flags]

Commands:
  ingest   Fetch a range of klines from an exchange and persist it
  export   Write a stored series to a CSV or gob file
  stats    Show aggregate figures about the archive
  version  Print version information
  help     Show this help

Configuration comes from the environment (or a .env file):
  STORAGE_DRIVER       sqlite, duckdb, or memory (default sqlite)
  DATABASE_PATH        database file path (default klines.db)
  REQUESTS_PER_SECOND  exchange request pacing (default 1)
  LOG_LEVEL            debug, info, warn, error (default info)
  LOG_FORMAT           text or json (default text)
  LOG_FILE_PATH        rotating log file (default stderr)

Examples:
  %s ingest --exchange gmocoin --symbol BTC_JPY --frequency 1T --start 2021-05-01 --end 2021-06-01
  %s export --exchange gmocoin --symbol BTC_JPY --frequency 1T --out klines.csv
`, appName, version, appName, appName, appName)
}
