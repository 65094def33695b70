package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/tidefall/go-kline-archive/internal/kline"
	"github.com/tidefall/go-kline-archive/internal/models"
)

const (
	ftxName    = "FTX"
	ftxBaseURL = "https://ftx.com/api"

	ftxCandlesPathFmt = "/markets/%s/candles"

	ftxMinInterval = 60
)

var ftxSymbols = []string{"BTC-PERP", "ETH-PERP", "BTC/USD", "ETH/USD", "SOL-PERP"}

// FTXClient collects pre-aggregated candles from the FTX REST API. The
// candle endpoint takes the interval directly in seconds, so no interval
// table is needed.
type FTXClient struct {
	baseClient
	now func() time.Time
}

// NewFTXClient creates an FTX client with default pacing.
func NewFTXClient() *FTXClient {
	return NewFTXClientWithLogger(nil)
}

// NewFTXClientWithLogger creates an FTX client with a custom logger.
func NewFTXClientWithLogger(logger *slog.Logger) *FTXClient {
	return &FTXClient{
		baseClient: newBaseClient(ftxName, ftxBaseURL, logger),
		now:        time.Now,
	}
}

// Name implements KlineFetcher.
func (c *FTXClient) Name() string { return ftxName }

// Symbols implements KlineFetcher.
func (c *FTXClient) Symbols() []string { return ftxSymbols }

type ftxEnvelope struct {
	Success bool       `json:"success"`
	Error   string     `json:"error"`
	Result  []ftxKline `json:"result"`
}

type ftxKline struct {
	StartTime string  `json:"startTime"`
	Time      float64 `json:"time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// GetKlines implements KlineFetcher. Pages arrive newest-first against a
// moving end cursor, walking backwards from the requested end until start
// is reached; fetching is clamped to now, and any buckets past now are
// emitted as gap rows.
func (c *FTXClient) GetKlines(ctx context.Context, symbol string, interval int64, start, end time.Time) ([]models.Kline, error) {
	if err := validateRequest(symbol, ftxSymbols, interval, ftxMinInterval, start, end); err != nil {
		return nil, err
	}

	start = start.UTC()
	end = end.UTC()
	reqEnd := end
	if now := c.now().UTC(); reqEnd.After(now) {
		reqEnd = now
	}
	if !reqEnd.After(start) {
		return nil, &ValidationError{Field: "start", Message: fmt.Sprintf("range [%s, %s) lies entirely in the future", start.Format(time.RFC3339), end.Format(time.RFC3339))}
	}

	bars := make(map[int64]kline.Bar)
	current := reqEnd
	for current.After(start) {
		chunk, err := c.fetchKlines(ctx, symbol, interval, start, current)
		if err != nil || len(chunk) == 0 {
			break
		}

		for _, rk := range chunk {
			bars[int64(rk.Time)] = kline.Bar{
				Open:   rk.Open,
				High:   rk.High,
				Low:    rk.Low,
				Close:  rk.Close,
				Volume: rk.Volume,
			}
		}

		oldest, err := time.Parse(time.RFC3339Nano, chunk[0].StartTime)
		if err != nil {
			c.logger.Error("malformed startTime, stopping", "value", chunk[0].StartTime, "error", err)
			break
		}
		if !oldest.Before(current) {
			break
		}
		current = oldest.UTC()
		c.logger.Info("collected klines", "symbol", symbol, "total", len(bars), "reached", current)
	}

	// Fetching stops at now, but the series still covers the requested
	// range; buckets past now come back as gap rows.
	klines, err := kline.BuildSeries(ftxName, symbol, interval, start, end, bars)
	if err != nil {
		return nil, err
	}
	warnShortCoverage(c.logger, symbol, len(bars), len(klines))
	return klines, nil
}

func (c *FTXClient) fetchKlines(ctx context.Context, symbol string, interval int64, start, end time.Time) ([]ftxKline, error) {
	params := url.Values{}
	params.Set("resolution", strconv.FormatInt(interval, 10))
	params.Set("start_time", strconv.FormatInt(start.Unix(), 10))
	params.Set("end_time", strconv.FormatInt(end.Unix(), 10))

	var envelope ftxEnvelope
	path := fmt.Sprintf(ftxCandlesPathFmt, url.PathEscape(symbol))
	if err := c.getJSON(ctx, path, params, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		c.logger.Error("candle request rejected", "error", envelope.Error)
		return nil, fmt.Errorf("ftx error: %s", envelope.Error)
	}
	return envelope.Result, nil
}
