package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *float64
	}{
		{"plain number", "123.45", ptr(123.45)},
		{"wan suffix", "12.3万", ptr(123000.0)},
		{"yi suffix", "12.3亿", ptr(1230000000.0)},
		{"negative yi", "-0.5亿", ptr(-50000000.0)},
		{"thousands separators", "1,234,567", ptr(1234567.0)},
		{"embedded space", "12 .3万", ptr(123000.0)},
		{"empty", "", nil},
		{"single dash", "-", nil},
		{"double dash", "--", nil},
		{"garbage", "abc", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAmount(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-6)
		})
	}
}

func TestParseAmountAbsentIsNotZero(t *testing.T) {
	assert.Nil(t, ParseAmount("--"))
	got := ParseAmount("0")
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		input string
		want  *float64
	}{
		{"-1.2%", ptr(-1.2)},
		{"9.87%", ptr(9.87)},
		{"3.5", ptr(3.5)},
		{"--", nil},
		{"", nil},
		{"n/a", nil},
	}

	for _, tt := range tests {
		got := ParsePercent(tt.input)
		if tt.want == nil {
			assert.Nil(t, got, "input %q", tt.input)
			continue
		}
		require.NotNil(t, got, "input %q", tt.input)
		assert.InDelta(t, *tt.want, *got, 1e-6)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-12-20", "2006-01-02")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, 20, d.Day())

	_, err = ParseDate("2024-13-45", "2006-01-02")
	assert.Error(t, err)

	_, err = ParseDate("not a date", "20060102")
	assert.Error(t, err)
}

func ptr(f float64) *float64 { return &f }
