package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestOpenPositionLocksMargin(t *testing.T) {
	acc := NewTraderAccount("LLM-A", decimal.NewFromInt(1000), 5)

	p := acc.OpenPosition("BTCUSDT", SideLong, decimal.NewFromInt(100), decimal.NewFromFloat(1), 4, "")

	require.True(t, acc.Balance.Equal(decimal.NewFromInt(975))) // 1000 - 100/4
	require.True(t, acc.MarginLocked.Equal(decimal.NewFromInt(25)))
	require.Equal(t, 1, acc.OpenPositionCount())
	require.True(t, p.MarginUsed.Equal(decimal.NewFromInt(25)))
}

func TestClosePositionRoundTripLong(t *testing.T) {
	acc := NewTraderAccount("LLM-A", decimal.NewFromInt(1000), 5)
	p := acc.OpenPosition("BTCUSDT", SideLong, decimal.NewFromInt(100), decimal.NewFromFloat(2), 3, "")

	trade, ok := acc.ClosePosition(p.PositionID, decimal.NewFromInt(110), ExitManual)
	require.True(t, ok)

	// pnl = (110-100)*2*3 = 60
	require.True(t, trade.PnL.Equal(decimal.NewFromInt(60)), "got %s", trade.PnL)
	require.Equal(t, 0, acc.OpenPositionCount())
	require.Equal(t, 1, acc.TotalTrades)
	require.Equal(t, 1, acc.WinningTrades)
}

func TestClosePositionRoundTripShortIsInverted(t *testing.T) {
	acc := NewTraderAccount("LLM-A", decimal.NewFromInt(1000), 5)
	p := acc.OpenPosition("BTCUSDT", SideShort, decimal.NewFromInt(100), decimal.NewFromFloat(1), 2, "")

	trade, ok := acc.ClosePosition(p.PositionID, decimal.NewFromInt(90), ExitManual)
	require.True(t, ok)

	// short: pnl = (100-90)*1*2 = 20
	require.True(t, trade.PnL.Equal(decimal.NewFromInt(20)), "got %s", trade.PnL)
}

func TestEquityInvariant(t *testing.T) {
	acc := NewTraderAccount("LLM-A", decimal.NewFromInt(1000), 5)
	acc.OpenPosition("BTCUSDT", SideLong, decimal.NewFromInt(100), decimal.NewFromFloat(1), 2, "")
	acc.UpdateUnrealized(map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(110)})

	snap := acc.Summary()
	require.True(t, snap.Equity.Equal(snap.Balance.Add(snap.MarginLocked).Add(snap.UnrealizedPnL)))
}
