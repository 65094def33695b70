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
	gmoCoinName    = "GMOCoin"
	gmoCoinBaseURL = "https://api.coin.z.com/public"

	gmoCoinKlinesPath = "/v1/klines"
	gmoCoinTradesPath = "/v1/trades"

	gmoCoinMinInterval       = 60
	gmoCoinExecutionsPerPage = 100
)

// gmoCoinOldestDate is the first day the kline endpoint serves data for.
var gmoCoinOldestDate = time.Date(2021, 4, 15, 0, 0, 0, 0, time.UTC)

// gmoCoinIntervals maps interval seconds to the endpoint's interval codes.
var gmoCoinIntervals = map[int64]string{
	60:     "1min",
	300:    "5min",
	600:    "10min",
	900:    "15min",
	1800:   "30min",
	3600:   "1hour",
	14400:  "4hour",
	28800:  "8hour",
	43200:  "12hour",
	86400:  "1day",
	604800: "1week",
}

var gmoCoinSymbols = []string{
	"BTC", "ETH", "BCH", "LTC", "XRP",
	"BTC_JPY", "ETH_JPY", "BCH_JPY", "LTC_JPY", "XRP_JPY",
}

// GMOCoinClient collects pre-aggregated klines and raw executions from the
// GMO Coin public API.
type GMOCoinClient struct {
	baseClient
}

// NewGMOCoinClient creates a GMO Coin client with default pacing.
func NewGMOCoinClient() *GMOCoinClient {
	return NewGMOCoinClientWithLogger(nil)
}

// NewGMOCoinClientWithLogger creates a GMO Coin client with a custom logger.
func NewGMOCoinClientWithLogger(logger *slog.Logger) *GMOCoinClient {
	return &GMOCoinClient{baseClient: newBaseClient(gmoCoinName, gmoCoinBaseURL, logger)}
}

// Name implements KlineFetcher.
func (c *GMOCoinClient) Name() string { return gmoCoinName }

// Symbols implements KlineFetcher.
func (c *GMOCoinClient) Symbols() []string { return gmoCoinSymbols }

// API payloads. Numeric fields arrive as strings and are decimal-parsed
// before use.

type gmoCoinEnvelope struct {
	Status       int             `json:"status"`
	Data         json.RawMessage `json:"data"`
	ResponseTime string          `json:"responsetime"`
}

type gmoCoinKline struct {
	OpenTime string `json:"openTime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

type gmoCoinExecution struct {
	Price     string `json:"price"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

type gmoCoinTradesPage struct {
	Pagination struct {
		CurrentPage int `json:"currentPage"`
		Count       int `json:"count"`
	} `json:"pagination"`
	List []gmoCoinExecution `json:"list"`
}

// GetKlines implements KlineFetcher. The kline endpoint serves one day per
// request, so the loop advances a date cursor from start until end.
func (c *GMOCoinClient) GetKlines(ctx context.Context, symbol string, interval int64, start, end time.Time) ([]models.Kline, error) {
	if err := validateRequest(symbol, gmoCoinSymbols, interval, gmoCoinMinInterval, start, end); err != nil {
		return nil, err
	}
	if _, ok := gmoCoinIntervals[interval]; !ok {
		return nil, &ValidationError{Field: "interval", Message: fmt.Sprintf("interval %d has no GMO Coin encoding", interval)}
	}
	if start.Before(gmoCoinOldestDate) {
		return nil, &ValidationError{Field: "start", Message: fmt.Sprintf("start %s is older than the oldest supported date %s", start.Format(time.RFC3339), gmoCoinOldestDate.Format(time.RFC3339))}
	}

	start = start.UTC()
	end = end.UTC()

	bars := make(map[int64]kline.Bar)
	for date := start; date.Before(end); date = date.Add(24 * time.Hour) {
		raw, err := c.fetchKlines(ctx, symbol, interval, date)
		if err != nil {
			// Partial data: stop paginating, keep what we have.
			break
		}
		for _, rk := range raw {
			openTime, bar, err := rk.toBar()
			if err != nil {
				c.logger.Warn("skipping malformed kline", "symbol", symbol, "error", err)
				continue
			}
			bars[openTime] = bar
		}
	}

	klines, err := kline.BuildSeries(gmoCoinName, symbol, interval, start, end, bars)
	if err != nil {
		return nil, err
	}
	warnShortCoverage(c.logger, symbol, len(bars), len(klines))
	return klines, nil
}

func (c *GMOCoinClient) fetchKlines(ctx context.Context, symbol string, interval int64, date time.Time) ([]gmoCoinKline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", gmoCoinIntervals[interval])
	params.Set("date", date.Format("20060102"))

	var envelope gmoCoinEnvelope
	if err := c.getJSON(ctx, gmoCoinKlinesPath, params, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status != 0 {
		c.logger.Error("kline request rejected", "status", envelope.Status, "symbol", symbol)
		return nil, fmt.Errorf("gmocoin status %d", envelope.Status)
	}

	var raw []gmoCoinKline
	if err := json.Unmarshal(envelope.Data, &raw); err != nil {
		c.logger.Error("malformed kline payload", "symbol", symbol, "error", err)
		return nil, err
	}
	return raw, nil
}

// GetExecutions pages through the public trade history, newest first, until
// maxExecutions have been collected or a short page signals exhaustion.
func (c *GMOCoinClient) GetExecutions(ctx context.Context, symbol string, page, maxExecutions int) ([]kline.Execution, error) {
	if symbol == "" || !containsSymbol(gmoCoinSymbols, symbol) {
		return nil, &ValidationError{Field: "symbol", Message: fmt.Sprintf("unknown symbol %q", symbol)}
	}
	if page < 1 {
		page = 1
	}

	count := gmoCoinExecutionsPerPage
	if maxExecutions < count {
		count = maxExecutions
	}

	var executions []kline.Execution
	for len(executions) < maxExecutions {
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("page", strconv.Itoa(page))
		params.Set("count", strconv.Itoa(count))

		var envelope gmoCoinEnvelope
		if err := c.getJSON(ctx, gmoCoinTradesPath, params, &envelope); err != nil {
			break
		}
		if envelope.Status != 0 {
			c.logger.Error("trade request rejected", "status", envelope.Status, "symbol", symbol)
			break
		}

		var tradesPage gmoCoinTradesPage
		if err := json.Unmarshal(envelope.Data, &tradesPage); err != nil {
			c.logger.Error("malformed trades payload", "symbol", symbol, "error", err)
			break
		}

		for i, raw := range tradesPage.List {
			e, err := raw.toExecution(int64(page)*int64(gmoCoinExecutionsPerPage) + int64(i))
			if err != nil {
				c.logger.Warn("skipping malformed execution", "symbol", symbol, "error", err)
				continue
			}
			executions = append(executions, e)
		}

		if len(tradesPage.List) != count {
			c.logger.Warn("short page, assuming end of data", "got", len(tradesPage.List), "want", count)
			break
		}
		if tradesPage.Pagination.CurrentPage == 0 {
			c.logger.Warn("missing pagination metadata, stopping", "symbol", symbol)
			break
		}

		page = tradesPage.Pagination.CurrentPage + 1
		c.logger.Info("collected executions", "symbol", symbol, "total", len(executions))
	}

	return executions, nil
}

// ExecutionsToKlines aggregates raw executions into the canonical schema
// with the range derived from the data itself.
func (c *GMOCoinClient) ExecutionsToKlines(symbol string, interval int64, executions []kline.Execution, policy kline.BoundPolicy) ([]models.Kline, error) {
	return kline.ExecutionsToKlines(gmoCoinName, symbol, interval, executions, policy)
}

func (k *gmoCoinKline) toBar() (int64, kline.Bar, error) {
	openTime, err := strconv.ParseInt(k.OpenTime, 10, 64)
	if err != nil {
		return 0, kline.Bar{}, fmt.Errorf("invalid openTime %q: %w", k.OpenTime, err)
	}

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
			return 0, kline.Bar{}, err
		}
		*field.dst = v
	}

	return openTime, bar, nil
}

func (e *gmoCoinExecution) toExecution(sequence int64) (kline.Execution, error) {
	price, err := parseFloat(e.Price)
	if err != nil {
		return kline.Execution{}, err
	}
	size, err := parseFloat(e.Size)
	if err != nil {
		return kline.Execution{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return kline.Execution{}, fmt.Errorf("invalid timestamp %q: %w", e.Timestamp, err)
	}

	return kline.Execution{
		Sequence: sequence,
		Side:     e.Side,
		Price:    price,
		Size:     size,
		Time:     ts.UTC(),
	}, nil
}

// warnShortCoverage emits the partial-data warning shared by the variants:
// the caller gets the dense series either way, but fewer raw buckets than
// boundaries means the exchange did not fully cover the requested range.
func warnShortCoverage(logger *slog.Logger, symbol string, rawBuckets, boundaries int) {
	if rawBuckets < boundaries {
		logger.Warn("requested range not fully covered",
			"symbol", symbol,
			"buckets_with_data", rawBuckets,
			"boundaries", boundaries)
	}
}
