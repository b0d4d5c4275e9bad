package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nofx/account"
	"nofx/exchange"
	"nofx/executor"
	"nofx/grid"
	"nofx/market"
	"nofx/provider"
	"nofx/reconciler"
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

func newTestScheduler(t *testing.T, providers StaticProviders) (*Scheduler, *exchange.Fake) {
	t.Helper()

	fake := exchange.NewFake()
	fake.SetPrice("BTCUSDT", decimal.NewFromInt(50000))

	st := newTestStore(t)
	mkt := market.NewService(fake, time.Minute)
	accounts := account.NewService(st)
	require.NoError(t, accounts.Bootstrap([]string{"LLM-A"}, decimal.NewFromInt(10000), 5))
	grids := grid.NewService(st)
	riskMgr := risk.NewManager(risk.Limits{
		AllowedSymbols:     map[string]bool{"BTCUSDT": true},
		MinTradeUSD:        decimal.NewFromInt(1),
		MaxTradeUSD:        decimal.NewFromInt(100000),
		MaxOpenPositions:   5,
		MaxLeverage:        20,
		StopLossRangePct:   [2]float64{0, 90},
		TakeProfitRangePct: [2]float64{0, 90},
	})
	exec := executor.New(fake, riskMgr, grids)
	recon := reconciler.New(fake, accounts, []string{"BTCUSDT"})

	sched, err := New(Config{
		Symbols:             []string{"BTCUSDT"},
		KlineInterval:       "1h",
		DecisionInterval:    time.Hour,
		ReconcileInterval:   time.Hour,
		DecisionTimeout:     time.Second,
		DecisionConcurrency: 2,
	}, fake, st, mkt, accounts, grids, riskMgr, exec, recon, providers)
	require.NoError(t, err)
	return sched, fake
}

func TestDecisionCycleExecutesHoldWithNoSideEffects(t *testing.T) {
	sched, fake := newTestScheduler(t, StaticProviders{
		"LLM-A": provider.NewFixedHold(),
	})

	require.NoError(t, sched.RunDecisionCycle(t.Context()))
	// Job state is recorded by the overlap guard the ticker runs each cycle
	// through, not by a direct RunDecisionCycle call.
	sched.runOnce(t.Context(), "decision_cycle", sched.decisionJob, sched.RunDecisionCycle)
	require.Empty(t, fake.Orders())

	snap := sched.DecisionJobState()
	require.Equal(t, ResultSuccess, snap.LastResult)
}

func TestDecisionCycleSkipsTraderWithoutProvider(t *testing.T) {
	sched, fake := newTestScheduler(t, StaticProviders{})

	require.NoError(t, sched.RunDecisionCycle(t.Context()))
	require.Empty(t, fake.Orders())
}

func TestOverlappingRunsAreSkippedNotQueued(t *testing.T) {
	sched, _ := newTestScheduler(t, StaticProviders{
		"LLM-A": provider.NewFixedHold(),
	})

	var calls int32
	blockingRun := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	job := newJobState("test_job")
	done := make(chan struct{})
	go func() {
		sched.runOnce(t.Context(), "test_job", job, blockingRun)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	sched.runOnce(t.Context(), "test_job", job, blockingRun)
	<-done

	snap := job.Snapshot()
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, 1, snap.SkippedCount)
}
