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
	bybitName    = "BybitInversePerpetual"
	bybitBaseURL = "https://api.bybit.com"

	bybitKlinesPath = "/v2/public/kline/list"

	bybitMinInterval   = 60
	bybitKlinesPerPage = 200
)

var bybitIntervals = map[int64]string{
	60:     "1",
	180:    "3",
	300:    "5",
	900:    "15",
	1800:   "30",
	3600:   "60",
	7200:   "120",
	14400:  "240",
	21600:  "360",
	43200:  "720",
	86400:  "D",
	604800: "W",
}

var bybitSymbols = []string{"BTCUSD", "ETHUSD", "EOSUSD", "XRPUSD", "DOTUSD"}

// BybitClient collects pre-aggregated klines for Bybit inverse perpetual
// contracts.
type BybitClient struct {
	baseClient
}

// NewBybitClient creates a Bybit inverse perpetual client with default pacing.
func NewBybitClient() *BybitClient {
	return NewBybitClientWithLogger(nil)
}

// NewBybitClientWithLogger creates a Bybit client with a custom logger.
func NewBybitClientWithLogger(logger *slog.Logger) *BybitClient {
	return &BybitClient{baseClient: newBaseClient(bybitName, bybitBaseURL, logger)}
}

// Name implements KlineFetcher.
func (c *BybitClient) Name() string { return bybitName }

// Symbols implements KlineFetcher.
func (c *BybitClient) Symbols() []string { return bybitSymbols }

type bybitEnvelope struct {
	RetCode int          `json:"ret_code"`
	RetMsg  string       `json:"ret_msg"`
	Result  []bybitKline `json:"result"`
}

type bybitKline struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	OpenTime int64  `json:"open_time"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
	Turnover string `json:"turnover"`
}

// GetKlines implements KlineFetcher. The endpoint serves up to 200 candles
// from a unix-seconds cursor; the cursor advances one page's duration until
// the range is covered or a short page signals exhaustion.
func (c *BybitClient) GetKlines(ctx context.Context, symbol string, interval int64, start, end time.Time) ([]models.Kline, error) {
	if err := validateRequest(symbol, bybitSymbols, interval, bybitMinInterval, start, end); err != nil {
		return nil, err
	}
	if _, ok := bybitIntervals[interval]; !ok {
		return nil, &ValidationError{Field: "interval", Message: fmt.Sprintf("interval %d has no Bybit encoding", interval)}
	}

	start = start.UTC()
	end = end.UTC()

	bars := make(map[int64]kline.Bar)
	date := start
	for date.Before(end) {
		chunk, err := c.fetchKlines(ctx, symbol, interval, date)
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
			bars[rk.OpenTime*1000] = bar
			lastOpenTime = rk.OpenTime
		}

		// A full page with no usable row would leave the cursor stuck;
		// stop rather than re-request the same window forever.
		if len(chunk) != bybitKlinesPerPage || lastOpenTime == 0 {
			break
		}
		date = time.Unix(lastOpenTime+interval, 0).UTC()
		c.logger.Info("collected klines", "symbol", symbol, "total", len(bars), "reached", date)
	}

	klines, err := kline.BuildSeries(bybitName, symbol, interval, start, end, bars)
	if err != nil {
		return nil, err
	}
	warnShortCoverage(c.logger, symbol, len(bars), len(klines))
	return klines, nil
}

func (c *BybitClient) fetchKlines(ctx context.Context, symbol string, interval int64, from time.Time) ([]bybitKline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", bybitIntervals[interval])
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("limit", strconv.Itoa(bybitKlinesPerPage))

	var envelope bybitEnvelope
	if err := c.getJSON(ctx, bybitKlinesPath, params, &envelope); err != nil {
		return nil, err
	}
	if envelope.RetCode != 0 {
		c.logger.Error("kline request rejected", "ret_code", envelope.RetCode, "ret_msg", envelope.RetMsg)
		return nil, fmt.Errorf("bybit ret_code %d: %s", envelope.RetCode, envelope.RetMsg)
	}
	return envelope.Result, nil
}

func (k *bybitKline) toBar() (kline.Bar, error) {
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
