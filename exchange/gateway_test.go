package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRoundToStep(t *testing.T) {
	step := decimal.NewFromFloat(0.001)

	cases := []struct {
		name string
		in   float64
		want string
	}{
		{"exact multiple", 1.234, "1.234"},
		{"rounds down within step", 1.2344, "1.234"},
		{"rounds up within step", 1.2346, "1.235"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := roundToStep(decimal.NewFromFloat(c.in), step)
			require.Equal(t, c.want, got.String())
		})
	}
}

func TestFakeCreateOrderUsesMarketPriceWhenUnset(t *testing.T) {
	f := NewFake()
	f.SetPrice("BTCUSDT", decimal.NewFromInt(50000))

	res, err := f.CreateOrder(t.Context(), OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     SideBuy,
		Quantity: decimal.NewFromFloat(0.01),
	})
	require.NoError(t, err)
	require.Equal(t, "FILLED", res.Status)
	require.True(t, res.AvgPrice.Equal(decimal.NewFromInt(50000)))
}
