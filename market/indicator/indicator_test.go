package indicator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRSIReturnsNeutralSentinelOnInsufficientData(t *testing.T) {
	got := RSI([]float64{1, 2, 3}, 14)
	require.Equal(t, 50.0, got)
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	got := RSI(closes, 14)
	require.Equal(t, 100.0, got)
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 5)
	require.Equal(t, 3.0, got)
}

func TestMACDNeutralOnInsufficientData(t *testing.T) {
	got := MACD([]float64{1, 2, 3}, 12, 26, 9)
	require.Equal(t, MACDResult{}, got)
}

func TestBollingerBandsWiderThanPriceRange(t *testing.T) {
	closes := []float64{10, 11, 9, 10, 12, 8, 10, 11, 9, 10, 11, 10, 9, 10, 11, 10, 9, 10, 11, 10}
	got := Bollinger(closes, 20, 2)
	require.True(t, got.Upper > got.Middle)
	require.True(t, got.Lower < got.Middle)
}
