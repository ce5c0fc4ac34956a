package stock

import (
	"errors"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundWith(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		mode     RoundingMode
		expected string
	}{
		{"half up rounds tie up", "2.345", RoundHalfUp, "2.35"},
		{"half up rounds below tie down", "2.344", RoundHalfUp, "2.34"},
		{"half up keeps two places", "5.20", RoundHalfUp, "5.20"},
		{"bank rounds tie to even down", "2.345", RoundHalfEven, "2.34"},
		{"bank rounds tie to even up", "2.355", RoundHalfEven, "2.36"},
		{"bank rounds non tie normally", "2.346", RoundHalfEven, "2.35"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.expected, RoundWith(dec(tt.input), tt.mode))
		})
	}
}

func TestSetRoundingMode(t *testing.T) {
	original := CurrentRoundingMode()
	defer func() { _ = SetRoundingMode(original) }()

	require.NoError(t, SetRoundingMode(RoundHalfEven))
	assert.Equal(t, RoundHalfEven, CurrentRoundingMode())
	assertDecimal(t, "2.34", Round(dec("2.345")))

	require.NoError(t, SetRoundingMode(RoundHalfUp))
	assertDecimal(t, "2.35", Round(dec("2.345")))

	assert.Error(t, SetRoundingMode("truncate"))
	assert.Equal(t, RoundHalfUp, CurrentRoundingMode())
}

func TestNormalize(t *testing.T) {
	t.Run("clamps negative results to zero", func(t *testing.T) {
		assert.True(t, Normalize(dec("-0.004")).IsZero())
		assert.True(t, Normalize(dec("-3")).IsZero())
	})

	t.Run("rounds to two places", func(t *testing.T) {
		assertDecimal(t, "0.10", Normalize(dec("0.1000000001")))
	})
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "3.00", Format(dec("3")))
	assert.Equal(t, "999.00", Format(dec("999")))
}

func TestParseAmount(t *testing.T) {
	t.Run("accepts positive numbers", func(t *testing.T) {
		amount, err := ParseAmount(" 4.005 ")
		require.NoError(t, err)
		assertDecimal(t, "4.01", amount)
	})

	invalid := []string{"", "abc", "0", "-1", "0.001"}
	for _, raw := range invalid {
		t.Run("rejects "+raw, func(t *testing.T) {
			_, err := ParseAmount(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrInvalidAmount))
		})
	}
}

func TestParseNonNegative(t *testing.T) {
	v, err := ParseNonNegative("unit_price", "")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	v, err = ParseNonNegative("unit_price", "12.499")
	require.NoError(t, err)
	assertDecimal(t, "12.50", v)

	_, err = ParseNonNegative("unit_price", "-1")
	assert.True(t, errors.Is(err, shared.ErrInvalidAmount))
}
