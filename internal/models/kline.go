// Package models provides the canonical data structures for normalized
// market data. Every exchange variant converges on the Kline type defined
// here; raw exchange payloads live with their clients and never leave them.
package models

import (
	"fmt"
	"time"
)

// Kline is one OHLCV record for a fixed time bucket in the canonical,
// exchange-agnostic schema. OHLCV fields are nil when no trade fell into
// the bucket (a gap): gap rows are still emitted so a requested range is
// always dense.
//
// (Exchange, Symbol, Interval, OpenTime) is the uniqueness key at rest.
type Kline struct {
	Exchange string   `json:"exchange" db:"exchange"`
	Symbol   string   `json:"symbol" db:"symbol"`
	Interval int64    `json:"interval" db:"interval"`
	OpenTime int64    `json:"open_time" db:"open_time"`
	Open     *float64 `json:"open" db:"open"`
	High     *float64 `json:"high" db:"high"`
	Low      *float64 `json:"low" db:"low"`
	Close    *float64 `json:"close" db:"close"`
	Volume   *float64 `json:"volume" db:"volume"`
}

// ValidationError reports a kline field that failed boundary validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate checks the key fields of the kline. OHLCV values are not
// inspected: nil OHLCV is a legitimate gap row, and price sanity is the
// concern of the exchange payload parsers, not the canonical schema.
func (k *Kline) Validate() error {
	if k.Exchange == "" {
		return &ValidationError{Field: "exchange", Message: "exchange cannot be empty"}
	}
	if k.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if k.Interval <= 0 {
		return &ValidationError{Field: "interval", Message: "interval must be a positive number of seconds"}
	}
	if k.OpenTime <= 0 {
		return &ValidationError{Field: "open_time", Message: "open_time must be a positive epoch millisecond timestamp"}
	}
	return nil
}

// IsGap reports whether the kline carries no trade data.
func (k *Kline) IsGap() bool {
	return k.Open == nil && k.High == nil && k.Low == nil && k.Close == nil
}

// Time returns the bucket open time as a time.Time in UTC.
func (k *Kline) Time() time.Time {
	return time.UnixMilli(k.OpenTime).UTC()
}

// String returns a human-readable representation, mostly for logs.
func (k *Kline) String() string {
	f := func(v *float64) string {
		if v == nil {
			return "<nil>"
		}
		return fmt.Sprintf("%g", *v)
	}
	return fmt.Sprintf("Kline{Exchange: %s, Symbol: %s, Interval: %d, OpenTime: %s, O: %s, H: %s, L: %s, C: %s, V: %s}",
		k.Exchange, k.Symbol, k.Interval, k.Time().Format(time.RFC3339), f(k.Open), f(k.High), f(k.Low), f(k.Close), f(k.Volume))
}
