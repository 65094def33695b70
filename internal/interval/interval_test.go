package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFrequency(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{1, "1S"},
		{15, "15S"},
		{60, "1T"},
		{90, "90S"},
		{1800, "30T"},
		{3600, "1H"},
		{7200, "2H"},
		{43200, "12H"},
		{86400, "1D"},
		{604800, "7D"},
	}

	for _, tt := range tests {
		got, err := ToFrequency(tt.seconds)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "seconds=%d", tt.seconds)
	}
}

func TestToFrequencyRejectsNonPositive(t *testing.T) {
	for _, seconds := range []int64{0, -1, -3600} {
		_, err := ToFrequency(seconds)
		assert.Error(t, err, "seconds=%d", seconds)
	}
}

func TestFromFrequency(t *testing.T) {
	tests := []struct {
		code string
		want int64
	}{
		{"S", 1},
		{"1S", 1},
		{"T", 60},
		{"30T", 1800},
		{"H", 3600},
		{"12H", 43200},
		{"D", 86400},
		{"3D", 259200},
	}

	for _, tt := range tests {
		got, err := FromFrequency(tt.code)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "code=%s", tt.code)
	}
}

func TestFromFrequencyErrors(t *testing.T) {
	for _, code := range []string{"", "1X", "W", "xH", "1.5H", "0T", "-5T"} {
		_, err := FromFrequency(code)
		assert.Error(t, err, "code=%q", code)
	}
}

// Round-tripping through the frequency encoding must be lossless for every
// positive interval.
func TestRoundTrip(t *testing.T) {
	cases := []int64{1, 2, 7, 15, 59, 60, 61, 90, 300, 900, 1800, 3599, 3600, 14400, 43200, 86400, 86401, 604800}
	for _, seconds := range cases {
		code, err := ToFrequency(seconds)
		require.NoError(t, err)

		back, err := FromFrequency(code)
		require.NoError(t, err)
		assert.Equal(t, seconds, back, "code=%s", code)
	}

	for seconds := int64(1); seconds <= 5000; seconds++ {
		code, err := ToFrequency(seconds)
		require.NoError(t, err)
		back, err := FromFrequency(code)
		require.NoError(t, err)
		require.Equal(t, seconds, back)
	}
}
