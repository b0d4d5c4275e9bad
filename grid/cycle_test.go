package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestInstance(t *testing.T) *Instance {
	t.Helper()
	cfg := Config{
		Lower:        decimal.NewFromInt(100),
		Upper:        decimal.NewFromInt(200),
		LevelCount:   6,
		Distribution: DistributionArithmetic,
		Investment:   decimal.NewFromInt(120),
		Leverage:     3,
		StopLossPct:  12,
		FeeRate:      decimal.NewFromFloat(0.0005),
	}
	levels, err := GenerateLevels(cfg)
	require.NoError(t, err)
	return &Instance{GridID: "g1", Config: cfg, Levels: levels, Status: StatusActive}
}

func TestCycleProfitAccounting(t *testing.T) {
	inst := newTestInstance(t)

	cycle, err := inst.IngestFill(0, SideBuy, decimal.NewFromFloat(0.6), decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Nil(t, cycle) // only one side filled so far

	// Level 1 sell does not share level 0 buy's quantity: each level's
	// quantity is computed from its own price (60/120 = 0.5 vs 60/100 = 0.6),
	// so fill it with its own qty.
	sellLevel := findLevel(inst.Levels, 1, SideSell)
	cycle, err = inst.IngestFill(1, SideSell, sellLevel.Quantity, decimal.NewFromInt(110))
	require.NoError(t, err)
	require.NotNil(t, cycle)

	require.Equal(t, 1, inst.CyclesCompleted)
	require.True(t, inst.NetProfit.Equal(inst.GrossProfit.Sub(inst.Fees)))

	buyAfter := findLevel(inst.Levels, 0, SideBuy)
	sellAfter := findLevel(inst.Levels, 1, SideSell)
	require.Equal(t, LevelEmpty, buyAfter.State)
	require.Equal(t, LevelEmpty, sellAfter.State)
}

func TestCycleProfitLiteralScenario(t *testing.T) {
	inst := &Instance{
		GridID: "g2",
		Config: Config{FeeRate: decimal.NewFromFloat(0.0005)},
		Levels: []Level{
			{Index: 0, Side: SideBuy, Quantity: decimal.NewFromFloat(0.5), State: LevelEmpty},
			{Index: 1, Side: SideSell, Quantity: decimal.NewFromFloat(0.5), State: LevelEmpty},
		},
		Status: StatusActive,
	}

	_, err := inst.IngestFill(0, SideBuy, decimal.NewFromFloat(0.5), decimal.NewFromInt(100))
	require.NoError(t, err)
	cycle, err := inst.IngestFill(1, SideSell, decimal.NewFromFloat(0.5), decimal.NewFromInt(110))
	require.NoError(t, err)
	require.NotNil(t, cycle)

	require.True(t, cycle.Gross.Equal(decimal.NewFromFloat(5.00)), "gross=%s", cycle.Gross)
	require.True(t, cycle.Fees.Equal(decimal.NewFromFloat(0.0525)), "fees=%s", cycle.Fees)
	require.True(t, cycle.Net.Equal(decimal.NewFromFloat(4.9475)), "net=%s", cycle.Net)
}

func TestPartialFillDoesNotTriggerCycle(t *testing.T) {
	inst := newTestInstance(t)

	cycle, err := inst.IngestFill(0, SideBuy, decimal.NewFromFloat(0.3), decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Nil(t, cycle)

	buy := findLevel(inst.Levels, 0, SideBuy)
	require.Equal(t, LevelPending, buy.State)
}
