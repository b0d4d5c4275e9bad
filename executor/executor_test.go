package executor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nofx/account"
	"nofx/attribution"
	"nofx/exchange"
	"nofx/grid"
	"nofx/provider"
	"nofx/risk"
	"nofx/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	st, err := store.NewFromDB(db)
	require.NoError(t, err)
	return st
}

func testLimits() risk.Limits {
	return risk.Limits{
		AllowedSymbols:     map[string]bool{"BTCUSDT": true},
		MinTradeUSD:        decimal.NewFromInt(1),
		MaxTradeUSD:        decimal.NewFromInt(100000),
		MaxOpenPositions:   5,
		MaxLeverage:        20,
		StopLossRangePct:   [2]float64{0, 90},
		TakeProfitRangePct: [2]float64{0, 90},
	}
}

func TestExecuteOpenEncodesNonGridAttribution(t *testing.T) {
	fake := exchange.NewFake()
	fake.SetPrice("BTCUSDT", decimal.NewFromInt(50000))

	st := newTestStore(t)
	gridSvc := grid.NewService(st)
	riskMgr := risk.NewManager(testLimits())
	ex := New(fake, riskMgr, gridSvc)

	acc := account.NewTraderAccount("LLM-A", decimal.NewFromInt(10000), 5)

	d := &provider.Decision{
		Action: provider.ActionBuy,
		Symbol: "BTCUSDT",
		Open:   &provider.OpenParams{SizeUSD: 1000, Leverage: 2},
	}

	res := ex.Execute(t.Context(), d, acc, map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)})
	require.Equal(t, StatusFilled, res.Status)

	a := attribution.Parse(res.ClientOrderID)
	require.Equal(t, attribution.KindNonGrid, a.Kind)
	require.Equal(t, "LLM-A", a.TraderID)
	require.Equal(t, 1, acc.OpenPositionCount())
}

func TestExecuteRejectedNeverCallsExchange(t *testing.T) {
	fake := exchange.NewFake()
	st := newTestStore(t)
	gridSvc := grid.NewService(st)
	riskMgr := risk.NewManager(testLimits())
	ex := New(fake, riskMgr, gridSvc)

	acc := account.NewTraderAccount("LLM-A", decimal.NewFromInt(10), 5)
	d := &provider.Decision{Action: provider.ActionBuy, Symbol: "BTCUSDT", Open: &provider.OpenParams{SizeUSD: 1000, Leverage: 1}}

	res := ex.Execute(t.Context(), d, acc, map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)})
	require.Equal(t, StatusRejected, res.Status)
	require.Equal(t, risk.ReasonInsufficientBalance, res.RejectionReason)
	require.Empty(t, fake.Orders())
}

func TestExecuteSetupGridPlacesLevelOrdersWithGridAttribution(t *testing.T) {
	fake := exchange.NewFake()
	fake.SetPrice("BTCUSDT", decimal.NewFromInt(150))

	st := newTestStore(t)
	gridSvc := grid.NewService(st)
	riskMgr := risk.NewManager(testLimits())
	ex := New(fake, riskMgr, gridSvc)

	acc := account.NewTraderAccount("LLM-A", decimal.NewFromInt(10000), 5)
	d := &provider.Decision{
		Action: provider.ActionSetupGrid,
		Symbol: "BTCUSDT",
		Grid: &provider.GridParams{
			Lower: 100, Upper: 200, LevelCount: 6, Distribution: "arithmetic",
			Investment: 120, Leverage: 3, StopLossPct: 12,
		},
	}

	res := ex.Execute(t.Context(), d, acc, map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(150)})
	require.Equal(t, StatusFilled, res.Status)
	require.NotEmpty(t, fake.Orders())

	for _, o := range fake.Orders() {
		a := attribution.Parse(o.ClientOrderID)
		require.Equal(t, attribution.KindGrid, a.Kind)
		require.Equal(t, "LLM-A", a.TraderID)
	}
}
