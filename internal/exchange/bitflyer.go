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
	bitFlyerName    = "BitFlyer"
	bitFlyerBaseURL = "https://api.bitflyer.com"

	bitFlyerExecutionsPath = "/v1/executions"

	// Executions are raw trades, so any interval down to one second can be
	// aggregated from them.
	bitFlyerMinInterval = 1

	bitFlyerExecutionsPerPage = 500
	bitFlyerMaxExecutions     = 100_000

	// The public execution history only reaches back this far.
	bitFlyerMaxAge = 40 * 24 * time.Hour
)

var bitFlyerSymbols = []string{
	"BTC_JPY", "FX_BTC_JPY", "ETH_JPY", "XRP_JPY", "ETH_BTC", "BCH_BTC",
}

// BitFlyerClient collects raw trade executions from the bitFlyer Lightning
// public API and aggregates them into canonical klines; the exchange offers
// no pre-aggregated candle endpoint.
type BitFlyerClient struct {
	baseClient
	now func() time.Time
}

// NewBitFlyerClient creates a bitFlyer client with default pacing.
func NewBitFlyerClient() *BitFlyerClient {
	return NewBitFlyerClientWithLogger(nil)
}

// NewBitFlyerClientWithLogger creates a bitFlyer client with a custom logger.
func NewBitFlyerClientWithLogger(logger *slog.Logger) *BitFlyerClient {
	return &BitFlyerClient{
		baseClient: newBaseClient(bitFlyerName, bitFlyerBaseURL, logger),
		now:        time.Now,
	}
}

// Name implements KlineFetcher.
func (c *BitFlyerClient) Name() string { return bitFlyerName }

// Symbols implements KlineFetcher.
func (c *BitFlyerClient) Symbols() []string { return bitFlyerSymbols }

type bitFlyerExecution struct {
	ID                         int64   `json:"id"`
	Side                       string  `json:"side"`
	Price                      float64 `json:"price"`
	Size                       float64 `json:"size"`
	ExecDate                   string  `json:"exec_date"`
	BuyChildOrderAcceptanceID  string  `json:"buy_child_order_acceptance_id"`
	SellChildOrderAcceptanceID string  `json:"sell_child_order_acceptance_id"`
}

// GetKlines implements KlineFetcher. Executions are paged newest-first with
// a before-id cursor until the page older than start is reached, then
// aggregated and joined against the full boundary set of [start, end).
func (c *BitFlyerClient) GetKlines(ctx context.Context, symbol string, interval int64, start, end time.Time) ([]models.Kline, error) {
	if err := validateRequest(symbol, bitFlyerSymbols, interval, bitFlyerMinInterval, start, end); err != nil {
		return nil, err
	}
	if oldest := c.now().Add(-bitFlyerMaxAge); start.Before(oldest) {
		return nil, &ValidationError{Field: "start", Message: fmt.Sprintf("start %s is too old, executions reach back to %s", start.Format(time.RFC3339), oldest.Format(time.RFC3339))}
	}

	start = start.UTC()
	end = end.UTC()

	var executions []kline.Execution
	var before int64
	currentDate := end

	for currentDate.After(start) {
		chunk, err := c.fetchExecutionsPage(ctx, symbol, before, bitFlyerExecutionsPerPage)
		if err != nil {
			break
		}
		executions = append(executions, chunk...)

		if len(chunk) != bitFlyerExecutionsPerPage {
			c.logger.Warn("short page, assuming end of data", "got", len(chunk), "want", bitFlyerExecutionsPerPage)
			break
		}

		oldest := chunk[len(chunk)-1]
		before = oldest.Sequence
		currentDate = oldest.Time
		c.logger.Info("collected executions", "symbol", symbol, "total", len(executions), "reached", currentDate)
	}

	bars := kline.AggregateExecutions(executions, interval)
	klines, err := kline.BuildSeries(bitFlyerName, symbol, interval, start, end, bars)
	if err != nil {
		return nil, err
	}
	warnShortCoverage(c.logger, symbol, len(bars), len(klines))
	return kline.Clip(klines, start, end), nil
}

// GetExecutions pages through the execution history, newest first. The
// before cursor is exclusive. Collection stops at maxExecutions, a short
// page, or a transport failure, whichever comes first.
func (c *BitFlyerClient) GetExecutions(ctx context.Context, symbol string, before int64, maxExecutions int) ([]kline.Execution, error) {
	if symbol == "" || !containsSymbol(bitFlyerSymbols, symbol) {
		return nil, &ValidationError{Field: "symbol", Message: fmt.Sprintf("unknown symbol %q", symbol)}
	}
	if maxExecutions <= 0 {
		maxExecutions = bitFlyerMaxExecutions
	}

	count := bitFlyerExecutionsPerPage
	if maxExecutions < count {
		count = maxExecutions
	}

	var executions []kline.Execution
	for len(executions) < maxExecutions {
		chunk, err := c.fetchExecutionsPage(ctx, symbol, before, count)
		if err != nil {
			break
		}
		executions = append(executions, chunk...)

		if len(chunk) != count {
			c.logger.Warn("short page, assuming end of data", "got", len(chunk), "want", count)
			break
		}
		before = chunk[len(chunk)-1].Sequence
	}

	return executions, nil
}

func (c *BitFlyerClient) fetchExecutionsPage(ctx context.Context, symbol string, before int64, count int) ([]kline.Execution, error) {
	params := url.Values{}
	params.Set("product_code", symbol)
	params.Set("count", strconv.Itoa(count))
	if before > 0 {
		params.Set("before", strconv.FormatInt(before, 10))
	}

	var raw []bitFlyerExecution
	if err := c.getJSON(ctx, bitFlyerExecutionsPath, params, &raw); err != nil {
		return nil, err
	}

	executions := make([]kline.Execution, 0, len(raw))
	for _, r := range raw {
		ts, err := parseBitFlyerTime(r.ExecDate)
		if err != nil {
			c.logger.Warn("skipping execution with bad exec_date", "id", r.ID, "error", err)
			continue
		}
		executions = append(executions, kline.Execution{
			Sequence: r.ID,
			Side:     r.Side,
			Price:    r.Price,
			Size:     r.Size,
			Time:     ts,
		})
	}
	return executions, nil
}

// parseBitFlyerTime handles exec_date values, which come without a zone
// suffix and are UTC.
func parseBitFlyerTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", time.RFC3339Nano} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid exec_date %q", s)
}
