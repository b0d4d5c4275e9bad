package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestArithmeticGridGeneration(t *testing.T) {
	cfg := Config{
		Lower:        decimal.NewFromInt(100),
		Upper:        decimal.NewFromInt(200),
		LevelCount:   6,
		Distribution: DistributionArithmetic,
		Investment:   decimal.NewFromInt(120),
		Leverage:     3,
	}

	levels, err := GenerateLevels(cfg)
	require.NoError(t, err)

	var buyPrices, sellPrices []string
	for _, l := range levels {
		if l.Side == SideBuy {
			buyPrices = append(buyPrices, l.Price.String())
		} else {
			sellPrices = append(sellPrices, l.Price.String())
		}
	}

	require.Equal(t, []string{"100", "120", "140", "160", "180"}, buyPrices)
	require.Equal(t, []string{"120", "140", "160", "180", "200"}, sellPrices)

	// per-level notional = 120*3/6 = 60; buy qty at 100 = 0.6
	buy0 := findLevel(levels, 0, SideBuy)
	require.True(t, buy0.Quantity.Equal(decimal.NewFromFloat(0.6)), "got %s", buy0.Quantity)
}

func TestGeometricGridGeneration(t *testing.T) {
	cfg := Config{
		Lower:        decimal.NewFromInt(100),
		Upper:        decimal.NewFromInt(200),
		LevelCount:   6,
		Distribution: DistributionGeometric,
		Investment:   decimal.NewFromInt(120),
		Leverage:     3,
	}

	levels, err := GenerateLevels(cfg)
	require.NoError(t, err)

	top := findLevel(levels, 5, SideSell)
	require.True(t, top.Price.Equal(decimal.NewFromInt(200)))
}

func findLevel(levels []Level, index int, side Side) Level {
	for _, l := range levels {
		if l.Index == index && l.Side == side {
			return l
		}
	}
	return Level{}
}
