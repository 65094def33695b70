package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest(t *testing.T) {
	symbols := []string{"BTC_JPY", "ETH_JPY"}
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name      string
		symbol    string
		interval  int64
		start     time.Time
		end       time.Time
		wantField string
	}{
		{"valid", "BTC_JPY", 60, start, end, ""},
		{"empty_symbol", "", 60, start, end, "symbol"},
		{"unknown_symbol", "DOGE_JPY", 60, start, end, "symbol"},
		{"interval_too_fine", "BTC_JPY", 30, start, end, "interval"},
		{"zero_start", "BTC_JPY", 60, time.Time{}, end, "start"},
		{"zero_end", "BTC_JPY", 60, start, time.Time{}, "start"},
		{"start_equals_end", "BTC_JPY", 60, start, start, "end"},
		{"start_after_end", "BTC_JPY", 60, end, start, "end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequest(tt.symbol, symbols, tt.interval, 60, tt.start, tt.end)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"5010271", 5010271, false},
		{"0.0001", 0.0001, false},
		{"-12.5", -12.5, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1.2.3", 0, true},
	}

	for _, tt := range tests {
		got, err := parseFloat(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}
