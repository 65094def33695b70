package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/tidefall/go-kline-archive/internal/kline"
	"github.com/tidefall/go-kline-archive/internal/models"
)

const (
	binanceName    = "Binance"
	binanceBaseURL = "https://api1.binance.com"

	binanceKlinesPath = "/api/v3/klines"

	binanceMinInterval   = 60
	binanceKlinesPerPage = 1000
)

var binanceIntervals = map[int64]string{
	60:     "1m",
	180:    "3m",
	300:    "5m",
	900:    "15m",
	1800:   "30m",
	3600:   "1h",
	7200:   "2h",
	14400:  "4h",
	21600:  "6h",
	28800:  "8h",
	43200:  "12h",
	86400:  "1d",
	259200: "3d",
	604800: "1w",
}

var binanceSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "XRPUSDT", "ADAUSDT", "SOLUSDT",
	"DOGEUSDT", "DOTUSDT", "LTCUSDT", "LINKUSDT", "AVAXUSDT", "MATICUSDT",
	"ATOMUSDT", "UNIUSDT", "ETCUSDT", "XLMUSDT", "NEARUSDT", "FILUSDT",
}

// BinanceClient collects pre-aggregated spot klines from the Binance REST
// API.
type BinanceClient struct {
	baseClient
}

// NewBinanceClient creates a Binance client with default pacing.
func NewBinanceClient() *BinanceClient {
	return NewBinanceClientWithLogger(nil)
}

// NewBinanceClientWithLogger creates a Binance client with a custom logger.
func NewBinanceClientWithLogger(logger *slog.Logger) *BinanceClient {
	return &BinanceClient{baseClient: newBaseClient(binanceName, binanceBaseURL, logger)}
}

// Name implements KlineFetcher.
func (c *BinanceClient) Name() string { return binanceName }

// Symbols implements KlineFetcher.
func (c *BinanceClient) Symbols() []string { return binanceSymbols }

// binanceKline is one row of the positional kline array the endpoint
// returns: open time, OHLCV, close time, and quote-level fields we ignore.
type binanceKline struct {
	OpenTime int64
	Open     string
	High     string
	Low      string
	Close    string
	Volume   string
}

func (k *binanceKline) UnmarshalJSON(data []byte) error {
	var row []json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	if len(row) < 6 {
		return fmt.Errorf("kline row has %d fields, want at least 6", len(row))
	}

	if err := json.Unmarshal(row[0], &k.OpenTime); err != nil {
		return fmt.Errorf("invalid open time: %w", err)
	}
	for i, dst := range []*string{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume} {
		if err := json.Unmarshal(row[i+1], dst); err != nil {
			return fmt.Errorf("invalid kline field %d: %w", i+1, err)
		}
	}
	return nil
}

// GetKlines implements KlineFetcher. The endpoint takes explicit
// millisecond bounds and serves up to 1000 candles per call; the start
// cursor advances past the last returned candle until the range is covered
// or a short page signals exhaustion.
func (c *BinanceClient) GetKlines(ctx context.Context, symbol string, interval int64, start, end time.Time) ([]models.Kline, error) {
	if err := validateRequest(symbol, binanceSymbols, interval, binanceMinInterval, start, end); err != nil {
		return nil, err
	}
	if _, ok := binanceIntervals[interval]; !ok {
		return nil, &ValidationError{Field: "interval", Message: fmt.Sprintf("interval %d has no Binance encoding", interval)}
	}

	start = start.UTC()
	end = end.UTC()

	bars := make(map[int64]kline.Bar)
	date := start
	for date.Before(end) {
		chunk, err := c.fetchKlines(ctx, symbol, interval, date, end)
		if err != nil {
			break
		}

		var lastOpenTime int64
		for _, rk := range chunk {
			bar, err := rk.toBar()
			if err != nil {
				c.logger.Warn("skipping malformed kline", "symbol", symbol, "error", err)
				continue
			}
			bars[rk.OpenTime] = bar
			lastOpenTime = rk.OpenTime
		}

		// A full page with no usable row would leave the cursor stuck;
		// stop rather than re-request the same window forever.
		if len(chunk) != binanceKlinesPerPage || lastOpenTime == 0 {
			break
		}
		date = time.UnixMilli(lastOpenTime).Add(time.Duration(interval) * time.Second).UTC()
		c.logger.Info("collected klines", "symbol", symbol, "total", len(bars), "reached", date)
	}

	klines, err := kline.BuildSeries(binanceName, symbol, interval, start, end, bars)
	if err != nil {
		return nil, err
	}
	warnShortCoverage(c.logger, symbol, len(bars), len(klines))
	return klines, nil
}

func (c *BinanceClient) fetchKlines(ctx context.Context, symbol string, interval int64, start, end time.Time) ([]binanceKline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", binanceIntervals[interval])
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(binanceKlinesPerPage))

	var chunk []binanceKline
	if err := c.getJSON(ctx, binanceKlinesPath, params, &chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (k *binanceKline) toBar() (kline.Bar, error) {
	var bar kline.Bar
	for _, field := range []struct {
		raw string
		dst *float64
	}{
		{k.Open, &bar.Open},
		{k.High, &bar.High},
		{k.Low, &bar.Low},
		{k.Close, &bar.Close},
		{k.Volume, &bar.Volume},
	} {
		v, err := parseFloat(field.raw)
		if err != nil {
			return kline.Bar{}, err
		}
		*field.dst = v
	}
	return bar, nil
}
