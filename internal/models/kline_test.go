package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestKlineValidate(t *testing.T) {
	valid := Kline{
		Exchange: "GMOCoin",
		Symbol:   "BTC_JPY",
		Interval: 60,
		OpenTime: 1649883600000,
		Open:     floatPtr(5182111.0),
		High:     floatPtr(5185122.0),
		Low:      floatPtr(5181512.0),
		Close:    floatPtr(5184938.0),
		Volume:   floatPtr(1.74),
	}

	tests := []struct {
		name    string
		mutate  func(k *Kline)
		wantErr string
	}{
		{name: "valid", mutate: func(k *Kline) {}},
		{
			name:   "gap_row_is_valid",
			mutate: func(k *Kline) { k.Open, k.High, k.Low, k.Close, k.Volume = nil, nil, nil, nil, nil },
		},
		{
			name:    "empty_exchange",
			mutate:  func(k *Kline) { k.Exchange = "" },
			wantErr: "exchange",
		},
		{
			name:    "empty_symbol",
			mutate:  func(k *Kline) { k.Symbol = "" },
			wantErr: "symbol",
		},
		{
			name:    "zero_interval",
			mutate:  func(k *Kline) { k.Interval = 0 },
			wantErr: "interval",
		},
		{
			name:    "negative_interval",
			mutate:  func(k *Kline) { k.Interval = -60 },
			wantErr: "interval",
		},
		{
			name:    "zero_open_time",
			mutate:  func(k *Kline) { k.OpenTime = 0 },
			wantErr: "open_time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := valid
			tt.mutate(&k)
			err := k.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKlineIsGap(t *testing.T) {
	k := Kline{Exchange: "BitFlyer", Symbol: "BTC_JPY", Interval: 60, OpenTime: 1649883600000}
	assert.True(t, k.IsGap())

	k.Open = floatPtr(100)
	assert.False(t, k.IsGap())
}

func TestKlineTime(t *testing.T) {
	k := Kline{OpenTime: 1640995200000}
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), k.Time())
}
