package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nofx/account"
	"nofx/attribution"
	"nofx/exchange"
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

// fakeGatewayWithPositions wraps exchange.Fake to also serve fixed
// Positions()/OpenOrders() responses, which the bare Fake double doesn't
// implement (it's built for order-placement tests, not reconciliation).
type fakeGatewayWithPositions struct {
	*exchange.Fake
	positions []exchange.PositionSnapshot
	orders    map[string][]exchange.OpenOrder
}

func (f *fakeGatewayWithPositions) Positions(context.Context) ([]exchange.PositionSnapshot, error) {
	return f.positions, nil
}

func (f *fakeGatewayWithPositions) OpenOrders(_ context.Context, symbol string) ([]exchange.OpenOrder, error) {
	return f.orders[symbol], nil
}

func TestReconcilerCreatesMissingPosition(t *testing.T) {
	gw := &fakeGatewayWithPositions{
		Fake: exchange.NewFake(),
		positions: []exchange.PositionSnapshot{
			{Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: decimal.NewFromFloat(0.1), EntryPrice: decimal.NewFromInt(50000), Leverage: 3},
		},
		orders: map[string][]exchange.OpenOrder{
			"BTCUSDT": {{ClientOrderID: attribution.EncodeNonGrid("LLM-A", "BTCUSDT", time.Now())}},
		},
	}

	st := newTestStore(t)
	accounts := account.NewService(st)
	require.NoError(t, accounts.Bootstrap([]string{"LLM-A"}, decimal.NewFromInt(10000), 5))

	r := New(gw, accounts, []string{"BTCUSDT"})
	deltas, err := r.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	require.Equal(t, 1, deltas[0].Added)

	acc := accounts.Get("LLM-A")
	require.Equal(t, 1, acc.OpenPositionCount())
}

func TestReconcilerIdempotentOnSecondPass(t *testing.T) {
	gw := &fakeGatewayWithPositions{
		Fake: exchange.NewFake(),
		positions: []exchange.PositionSnapshot{
			{Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: decimal.NewFromFloat(0.1), EntryPrice: decimal.NewFromInt(50000), Leverage: 3},
		},
		orders: map[string][]exchange.OpenOrder{
			"BTCUSDT": {{ClientOrderID: attribution.EncodeNonGrid("LLM-A", "BTCUSDT", time.Now())}},
		},
	}

	st := newTestStore(t)
	accounts := account.NewService(st)
	require.NoError(t, accounts.Bootstrap([]string{"LLM-A"}, decimal.NewFromInt(10000), 5))

	r := New(gw, accounts, []string{"BTCUSDT"})
	_, err := r.Run(t.Context())
	require.NoError(t, err)

	deltas, err := r.Run(t.Context())
	require.NoError(t, err)
	require.Empty(t, deltas)
}
