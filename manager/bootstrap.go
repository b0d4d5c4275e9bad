package manager

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nofx/account"
	"nofx/config"
	"nofx/exchange"
	"nofx/executor"
	"nofx/grid"
	"nofx/market"
	"nofx/provider"
	"nofx/reconciler"
	"nofx/risk"
	"nofx/scheduler"
	"nofx/store"
)

// System bundles every constructed component for one running process, so
// main can start the scheduler and expose the remaining pieces (e.g. for a
// future HTTP surface, out of scope here) without re-deriving them.
type System struct {
	Store     *store.Store
	Gateway   exchange.Gateway
	Market    *market.Service
	Accounts  *account.Service
	Grids     *grid.Service
	Risk      *risk.Manager
	Executor  *executor.Executor
	Reconcile *reconciler.Reconciler
	Scheduler *scheduler.Scheduler
	Traders   *TraderManager
}

// Bootstrap constructs every component in dependency order and wires them
// into a Scheduler, exactly the sequence described for C1..C11: gateway,
// store, market, account (with restore), grid (with restore), risk,
// executor, reconciler, scheduler. providers maps trader_id to its decision
// provider; callers may still add/remove traders afterwards through the
// returned System.Traders, which the scheduler consults fresh every cycle.
func Bootstrap(ctx context.Context, cfg *config.Config, gw exchange.Gateway, providers map[string]provider.Provider) (*System, error) {
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("manager: open store: %w", err)
	}

	mkt := market.NewService(gw, cfg.Scheduler.MarketCacheTTLDuration())

	accounts := account.NewService(st)
	initialBalance := decimal.NewFromFloat(cfg.InitialBalancePerTrader)
	if err := accounts.Bootstrap(cfg.TraderIDs, initialBalance, cfg.Risk.MaxOpenPositions); err != nil {
		return nil, fmt.Errorf("manager: bootstrap accounts: %w", err)
	}

	grids := grid.NewService(st)
	if err := grids.Restore(ctx, gw, cfg.AllowedSymbols); err != nil {
		return nil, fmt.Errorf("manager: restore grids: %w", err)
	}

	allowed := make(map[string]bool, len(cfg.AllowedSymbols))
	for _, s := range cfg.AllowedSymbols {
		allowed[s] = true
	}
	riskMgr := risk.NewManager(risk.Limits{
		AllowedSymbols:     allowed,
		MinTradeUSD:        decimal.NewFromFloat(cfg.Risk.MinTradeUSD),
		MaxTradeUSD:        decimal.NewFromFloat(cfg.Risk.MaxTradeUSD),
		MaxOpenPositions:   cfg.Risk.MaxOpenPositions,
		MaxLeverage:        cfg.Risk.MaxLeverage,
		StopLossRangePct:   cfg.Risk.StopLossRangePct,
		TakeProfitRangePct: cfg.Risk.TakeProfitRangePct,
	})

	exec := executor.New(gw, riskMgr, grids)
	recon := reconciler.New(gw, accounts, cfg.AllowedSymbols)

	traders := NewTraderManager()
	for id, p := range providers {
		traders.AddTrader(id, p)
	}

	sched, err := scheduler.New(scheduler.Config{
		Symbols:             cfg.AllowedSymbols,
		KlineInterval:       cfg.KlineInterval,
		DecisionInterval:    cfg.Scheduler.DecisionIntervalDuration(),
		ReconcileInterval:   cfg.Scheduler.ReconcileIntervalDuration(),
		GridMonitorInterval: cfg.Scheduler.GridMonitorIntervalDuration(),
		DecisionTimeout:     cfg.Scheduler.DecisionIntervalDuration(),
		DecisionConcurrency: 4,
		StrictProviders:     cfg.StrictProviderValidation,
	}, gw, st, mkt, accounts, grids, riskMgr, exec, recon, traders)
	if err != nil {
		return nil, fmt.Errorf("manager: build scheduler: %w", err)
	}

	return &System{
		Store:     st,
		Gateway:   gw,
		Market:    mkt,
		Accounts:  accounts,
		Grids:     grids,
		Risk:      riskMgr,
		Executor:  exec,
		Reconcile: recon,
		Scheduler: sched,
		Traders:   traders,
	}, nil
}
