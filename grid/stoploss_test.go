package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStopLossTrigger(t *testing.T) {
	inst := &Instance{
		GridID: "g1",
		Config: Config{Lower: decimal.NewFromInt(100), StopLossPct: 12},
		Status: StatusActive,
	}

	require.False(t, inst.CheckStopLoss(decimal.NewFromFloat(88.01)))
	require.Equal(t, StatusActive, inst.StatusOf())

	require.True(t, inst.CheckStopLoss(decimal.NewFromFloat(88.00)))
	require.Equal(t, StatusStopped, inst.StatusOf())
}

func TestStopLossIsIdempotentOnceStopped(t *testing.T) {
	inst := &Instance{
		GridID: "g1",
		Config: Config{Lower: decimal.NewFromInt(100), StopLossPct: 12},
		Status: StatusActive,
	}
	inst.CheckStopLoss(decimal.NewFromFloat(80))
	require.Equal(t, StatusStopped, inst.StatusOf())

	// a second check while already stopped must not toggle anything
	require.False(t, inst.CheckStopLoss(decimal.NewFromFloat(80)))
}
