// Package exchange provides the clients that collect historical market data
// from exchange REST APIs and convert the raw payloads into the canonical
// kline schema.
//
// All variants share one pagination and validation backbone; a variant
// contributes only its base URL, interval table, minimum granularity,
// oldest supported date, symbol table, and the raw-to-canonical conversion.
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidefall/go-kline-archive/internal/models"
)

// KlineFetcher is the contract every exchange variant satisfies.
type KlineFetcher interface {
	// Name returns the exchange identifier stamped on canonical klines.
	Name() string

	// Symbols returns the instrument codes the variant knows about.
	Symbols() []string

	// GetKlines collects raw data covering [start, end) and returns the
	// dense canonical series for that range. Precondition violations fail
	// before any network call; transport failures degrade to partial data.
	GetKlines(ctx context.Context, symbol string, interval int64, start, end time.Time) ([]models.Kline, error)
}

// ValidationError reports a request precondition violation. These surface
// synchronously, before any I/O, and are never retried.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation error for field " + e.Field + ": " + e.Message
}

// validateRequest enforces the precondition checks shared by all variants:
// ordered bounds, a known symbol, and an interval at least as fine as the
// exchange supports.
func validateRequest(symbol string, symbols []string, interval, minInterval int64, start, end time.Time) error {
	if symbol == "" {
		return &ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if len(symbols) > 0 && !containsSymbol(symbols, symbol) {
		return &ValidationError{Field: "symbol", Message: fmt.Sprintf("unknown symbol %q", symbol)}
	}
	if interval < minInterval {
		return &ValidationError{Field: "interval", Message: fmt.Sprintf("interval %d is below the minimum supported granularity %d", interval, minInterval)}
	}
	if start.IsZero() || end.IsZero() {
		return &ValidationError{Field: "start", Message: "start and end must be set"}
	}
	if !start.Before(end) {
		return &ValidationError{Field: "end", Message: fmt.Sprintf("start must be before end, got start=%s end=%s", start, end)}
	}
	return nil
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// parseFloat converts a string-encoded numeric field from a raw payload to
// a float64 via an exact decimal parse, so malformed values fail loudly
// instead of silently truncating.
func parseFloat(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}
