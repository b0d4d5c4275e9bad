// Package scheduler drives the decision cycle, the position reconciler and
// the grid monitor on independent fixed intervals, guaranteeing no two runs
// of the same job overlap and recording per-job observability state.
// Grounded on teacher's periodic manager idiom (ticker + stopCh +
// sync.WaitGroup), generalized into a three-job driver with a per-job
// overlap guard.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"nofx/account"
	"nofx/exchange"
	"nofx/executor"
	"nofx/grid"
	"nofx/logger"
	"nofx/market"
	"nofx/provider"
	"nofx/reconciler"
	"nofx/risk"
	"nofx/store"
)

// ProviderRegistry supplies the live trader_id -> Provider set each cycle,
// so a trader can be registered or removed without rebuilding the
// scheduler. *manager.TraderManager satisfies this interface structurally.
type ProviderRegistry interface {
	Providers() map[string]provider.Provider
}

// StaticProviders adapts a plain map to ProviderRegistry, for tests and for
// callers with no dynamic registration needs.
type StaticProviders map[string]provider.Provider

func (s StaticProviders) Providers() map[string]provider.Provider { return s }

// Config carries the scheduler's tunables, sourced from package config.
type Config struct {
	Symbols             []string
	KlineInterval       string
	DecisionInterval    time.Duration
	ReconcileInterval   time.Duration
	GridMonitorInterval time.Duration
	DecisionTimeout     time.Duration
	DecisionConcurrency int
	StrictProviders     bool
}

// Scheduler wires together the per-cycle pipeline (market -> risk ->
// executor), the reconciler and the grid monitor, driving each on its own
// ticker.
type Scheduler struct {
	cfg Config

	gw        exchange.Gateway
	st        *store.Store
	market    *market.Service
	accounts  *account.Service
	grids     *grid.Service
	riskMgr   *risk.Manager
	exec      *executor.Executor
	recon     *reconciler.Reconciler
	providers ProviderRegistry

	decisionJob    *JobState
	reconcileJob   *JobState
	gridMonitorJob *JobState

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Scheduler. providers maps trader_id to its decision
// provider; a trader with no entry is skipped every cycle (recorded as an
// InvariantViolation-adjacent log line, never a hard failure) unless
// cfg.StrictProviders is set, in which case New returns an error instead.
func New(cfg Config, gw exchange.Gateway, st *store.Store, mkt *market.Service, accounts *account.Service, grids *grid.Service, riskMgr *risk.Manager, exec *executor.Executor, recon *reconciler.Reconciler, providers ProviderRegistry) (*Scheduler, error) {
	if cfg.StrictProviders {
		live := providers.Providers()
		for _, acc := range accounts.All() {
			if _, ok := live[acc.TraderID]; !ok {
				return nil, fmt.Errorf("scheduler: strict_provider_validation is set but trader %s has no provider", acc.TraderID)
			}
		}
	}
	if cfg.DecisionConcurrency <= 0 {
		cfg.DecisionConcurrency = 4
	}

	return &Scheduler{
		cfg:            cfg,
		gw:             gw,
		st:             st,
		market:         mkt,
		accounts:       accounts,
		grids:          grids,
		riskMgr:        riskMgr,
		exec:           exec,
		recon:          recon,
		providers:      providers,
		decisionJob:    newJobState("decision_cycle"),
		reconcileJob:   newJobState("reconcile"),
		gridMonitorJob: newJobState("grid_monitor"),
		stopCh:         make(chan struct{}),
	}, nil
}

// Start launches the three tickers in background goroutines and returns
// immediately. Call Stop to request a graceful shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(3)
	go s.driveLoop(ctx, "decision_cycle", s.cfg.DecisionInterval, s.decisionJob, s.RunDecisionCycle)
	go s.driveLoop(ctx, "reconcile", s.cfg.ReconcileInterval, s.reconcileJob, s.runReconcile)
	go s.driveLoop(ctx, "grid_monitor", s.cfg.GridMonitorInterval, s.gridMonitorJob, s.runGridMonitor)
}

// Stop requests all three loops to exit and blocks until they have, or the given
// grace period elapses, whichever comes first.
func (s *Scheduler) Stop(grace time.Duration) {
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		logger.Warnf("scheduler: grace period elapsed before all jobs drained")
	}
}

// DecisionJobState returns a point-in-time snapshot of the decision cycle's state.
func (s *Scheduler) DecisionJobState() Snapshot { return s.decisionJob.Snapshot() }

// ReconcileJobState returns a point-in-time snapshot of the reconciler's state.
func (s *Scheduler) ReconcileJobState() Snapshot { return s.reconcileJob.Snapshot() }

// GridMonitorJobState returns a point-in-time snapshot of the grid monitor's state.
func (s *Scheduler) GridMonitorJobState() Snapshot { return s.gridMonitorJob.Snapshot() }

func (s *Scheduler) driveLoop(ctx context.Context, name string, interval time.Duration, job *JobState, run func(context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx, name, job, run)
		}
	}
}

// runOnce enforces the no-overlap invariant: a tick that lands while the
// previous run is still in flight is skipped, not queued.
func (s *Scheduler) runOnce(ctx context.Context, name string, job *JobState, run func(context.Context) error) {
	if !job.tryEnter() {
		logger.Warnf("scheduler: %s skipped, previous run still in progress", name)
		job.recordSkip()
		return
	}

	started := time.Now()
	err := run(ctx)
	job.leave(started, err)
	if err != nil {
		logger.Errorf("scheduler: %s failed: %v", name, err)
	}
}

func (s *Scheduler) runReconcile(ctx context.Context) error {
	deltas, err := s.recon.Run(ctx)
	if err != nil {
		return err
	}
	for _, d := range deltas {
		logger.Infof("scheduler: reconciled %s: +%d ~%d -%d", d.TraderID, d.Added, d.Updated, d.Removed)
	}
	return nil
}

// RunDecisionCycle runs one full decision cycle: fetch prices, compute
// indicators, fan out to each trader's provider up to the configured
// concurrency cap, validate and execute, then update unrealized PnL and
// flush to the store. Exported so callers (e.g. a manual trigger endpoint,
// or tests) can run a cycle outside the ticker.
func (s *Scheduler) RunDecisionCycle(ctx context.Context) error {
	snapshots := make(map[string]market.Snapshot, len(s.cfg.Symbols))
	prices := make(map[string]decimal.Decimal, len(s.cfg.Symbols))

	for _, symbol := range s.cfg.Symbols {
		snap, err := s.market.Snapshot(ctx, symbol, s.cfg.KlineInterval)
		if err != nil {
			logger.Warnf("scheduler: skipping symbol %s this cycle, market fetch failed: %v", symbol, err)
			continue
		}
		snapshots[symbol] = snap
		prices[symbol] = decimal.NewFromFloat(snap.Price)

		if err := s.st.SaveMarketSnapshot(&store.MarketSnapshotModel{
			Symbol:     symbol,
			PriceUSD:   decimal.NewFromFloat(snap.Price).String(),
			Volume24h:  decimal.NewFromFloat(snap.Volume).String(),
			CapturedAt: snap.CapturedAt,
		}); err != nil {
			logger.Warnf("scheduler: failed to persist market snapshot for %s: %v", symbol, err)
		}
	}

	live := s.providers.Providers()
	accounts := s.accounts.All()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DecisionConcurrency)

	for _, acc := range accounts {
		acc := acc
		g.Go(func() error {
			s.runTraderCycle(gctx, acc, live, snapshots, prices)
			return nil
		})
	}
	_ = g.Wait() // per-trader errors are logged and never abort siblings

	s.accounts.UpdateUnrealizedAll(prices)
	if err := s.accounts.SyncAll(); err != nil {
		return fmt.Errorf("sync accounts after cycle: %w", err)
	}
	return nil
}

// runTraderCycle is strictly sequential for one trader: build context,
// decide, validate, execute. A provider timeout or missing provider skips
// the trader for this cycle only.
func (s *Scheduler) runTraderCycle(ctx context.Context, acc *account.TraderAccount, providers map[string]provider.Provider, snapshots map[string]market.Snapshot, prices map[string]decimal.Decimal) {
	p, ok := providers[acc.TraderID]
	if !ok || p == nil {
		logger.Warnf("scheduler: trader %s has no provider, skipping this cycle", acc.TraderID)
		return
	}

	bundle := s.buildContextBundle(acc, snapshots)

	decideCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.DecisionTimeout > 0 {
		decideCtx, cancel = context.WithTimeout(ctx, s.cfg.DecisionTimeout)
		defer cancel()
	}

	started := time.Now()
	decision, usage, err := p.Decide(decideCtx, bundle)
	latency := time.Since(started)

	rec := &store.DecisionRecordModel{
		DecisionID:  uuid.NewString(),
		TraderID:    acc.TraderID,
		RequestedAt: started,
		TokensUsed:  usage.Tokens,
		CostUSD:     decimal.NewFromFloat(usage.CostUSD).String(),
		LatencyMs:   latency.Milliseconds(),
	}

	if err != nil {
		if parseErr, ok := asParseError(err); ok {
			rec.RawResponse = parseErr.Raw
		}
		rec.ParseError = err.Error()
		if saveErr := s.st.SaveDecisionRecord(rec); saveErr != nil {
			logger.Warnf("scheduler: failed to persist failed decision for %s: %v", acc.TraderID, saveErr)
		}
		logger.Warnf("scheduler: decision provider failed for %s, skipping trader this cycle: %v", acc.TraderID, err)
		return
	}

	rec.Symbol = decision.Symbol
	rec.Action = string(decision.Action)
	if saveErr := s.st.SaveDecisionRecord(rec); saveErr != nil {
		logger.Warnf("scheduler: failed to persist decision for %s: %v", acc.TraderID, saveErr)
	}

	res := s.exec.Execute(ctx, decision, acc, prices)
	logger.Infof("scheduler: %s %s %s -> %s", acc.TraderID, decision.Action, decision.Symbol, res.Status)
}

func asParseError(err error) (*provider.ResponseParseError, bool) {
	pe, ok := err.(*provider.ResponseParseError)
	return pe, ok
}

// buildContextBundle assembles the opaque per-trader input handed to a
// decision provider: account summary, open positions, active grids, recent
// market snapshots, and recent trade history.
func (s *Scheduler) buildContextBundle(acc *account.TraderAccount, snapshots map[string]market.Snapshot) provider.ContextBundle {
	summary := acc.Summary()

	positions := acc.Positions()
	posSummaries := make([]provider.PositionSummary, len(positions))
	for i, p := range positions {
		entry, _ := p.EntryPrice.Float64()
		qty, _ := p.Quantity.Float64()
		upnl, _ := p.UnrealizedPnL.Float64()
		posSummaries[i] = provider.PositionSummary{
			Symbol:        p.Symbol,
			Side:          string(p.Side),
			EntryPrice:    entry,
			Quantity:      qty,
			Leverage:      p.Leverage,
			UnrealizedPnL: upnl,
		}
	}

	var gridSummaries []provider.GridSummary
	for _, g := range s.grids.All() {
		if g.TraderID != acc.TraderID {
			continue
		}
		net, _ := g.NetProfit.Float64()
		gridSummaries = append(gridSummaries, provider.GridSummary{
			GridID:          g.GridID,
			Symbol:          g.Symbol,
			Status:          string(g.StatusOf()),
			CyclesCompleted: g.CyclesCompleted,
			NetProfit:       net,
		})
	}

	symbols := make([]string, 0, len(snapshots))
	for sym := range snapshots {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	marketSummaries := make([]provider.MarketSummary, 0, len(symbols))
	for _, sym := range symbols {
		snap := snapshots[sym]
		marketSummaries = append(marketSummaries, provider.MarketSummary{
			Symbol:      snap.Symbol,
			Price:       snap.Price,
			PriceChgPct: snap.PriceChgPct,
			RSI14:       snap.RSI14,
			EMA12:       snap.EMA12,
			EMA26:       snap.EMA26,
			MACD:        snap.MACD.MACD,
			SMA20:       snap.SMA20,
		})
	}

	var recent []provider.TradeSummary
	if trades, err := s.st.ListRecentTradesByTrader(acc.TraderID, 20); err == nil {
		for _, t := range trades {
			pnl, _ := decimal.RequireFromString(t.RealizedPnLUSD).Float64()
			recent = append(recent, provider.TradeSummary{
				Symbol:     t.Symbol,
				Side:       t.Side,
				PnL:        pnl,
				ExitReason: "",
				ClosedAt:   t.FilledAt,
			})
		}
	}

	balance, _ := summary.Balance.Float64()
	margin, _ := summary.MarginLocked.Float64()
	unrealized, _ := summary.UnrealizedPnL.Float64()
	realized, _ := summary.RealizedPnL.Float64()
	equity, _ := summary.Equity.Float64()

	return provider.ContextBundle{
		TraderID:  acc.TraderID,
		CycleTime: time.Now(),
		Account: provider.AccountSummary{
			Balance:       balance,
			MarginLocked:  margin,
			UnrealizedPnL: unrealized,
			RealizedPnL:   realized,
			Equity:        equity,
		},
		Positions: posSummaries,
		Grids:     gridSummaries,
		Market:    marketSummaries,
		Recent:    recent,
	}
}
