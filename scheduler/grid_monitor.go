package scheduler

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nofx/account"
	"nofx/grid"
	"nofx/logger"
)

// runGridMonitor is the runtime driver for grid.Instance.IngestFill and
// grid.Instance.CheckStopLoss: every tick it polls each ACTIVE grid's
// resting orders for fills, re-places orders for levels a completed cycle
// re-arms, and checks the grid's stop-loss against the current price.
func (s *Scheduler) runGridMonitor(ctx context.Context) error {
	for _, inst := range s.grids.All() {
		if inst.StatusOf() != grid.StatusActive {
			continue
		}
		if err := s.monitorInstance(ctx, inst); err != nil {
			logger.Warnf("scheduler: grid monitor failed for %s: %v", inst.GridID, err)
		}
	}
	return nil
}

func (s *Scheduler) monitorInstance(ctx context.Context, inst *grid.Instance) error {
	price, err := s.gw.TickerPrice(ctx, inst.Symbol)
	if err != nil {
		return fmt.Errorf("grid monitor: price for %s: %w", inst.Symbol, err)
	}

	if err := s.ingestGridFills(ctx, inst); err != nil {
		return err
	}

	if inst.CheckStopLoss(price.Price) {
		s.handleGridStopLoss(ctx, inst, price.Price)
	}

	return s.grids.Persist(inst)
}

// ingestGridFills polls the exchange's resting orders for inst.Symbol and
// treats any PENDING level whose order has left the book as fully filled at
// its own price — a PostOnly limit order can only leave the book by filling
// or by an out-of-band cancel. A completed cycle re-arms its matched pair to
// EMPTY, which this then replenishes with fresh orders.
func (s *Scheduler) ingestGridFills(ctx context.Context, inst *grid.Instance) error {
	pending := inst.PendingOrderLevels()
	if len(pending) == 0 {
		return nil
	}

	orders, err := s.gw.OpenOrders(ctx, inst.Symbol)
	if err != nil {
		return fmt.Errorf("list open orders for %s: %w", inst.Symbol, err)
	}
	stillResting := make(map[string]bool, len(orders))
	for _, o := range orders {
		stillResting[o.OrderID] = true
	}

	replenish := false
	for _, level := range pending {
		if stillResting[level.OrderID] {
			continue
		}

		cycle, err := inst.IngestFill(level.Index, level.Side, level.Quantity, level.Price)
		if err != nil {
			logger.Warnf("scheduler: grid %s ingest fill failed: %v", inst.GridID, err)
			continue
		}
		_ = s.grids.RecordEvent(inst.GridID, level.Index, "order_filled", level.OrderID)

		if cycle != nil {
			logger.Infof("scheduler: grid %s completed cycle buy=%d sell=%d net=%s", inst.GridID, cycle.BuyIndex, cycle.SellIndex, cycle.Net)
			_ = s.grids.RecordEvent(inst.GridID, cycle.SellIndex, "cycle_completed", fmt.Sprintf("net=%s", cycle.Net))
			replenish = true
		}
	}

	if replenish {
		if err := s.exec.ReplenishGrid(ctx, inst); err != nil {
			logger.Warnf("scheduler: grid %s replenish failed: %v", inst.GridID, err)
		}
	}
	return nil
}

// handleGridStopLoss cancels the grid's resting orders and emits a
// STOP_LOSS trade for any residual position the grid left open.
func (s *Scheduler) handleGridStopLoss(ctx context.Context, inst *grid.Instance, price decimal.Decimal) {
	logger.Warnf("scheduler: grid %s stop-loss triggered at %s", inst.GridID, price)
	if err := s.gw.CancelAll(ctx, inst.Symbol); err != nil {
		logger.Warnf("scheduler: grid %s stop-loss cancel failed: %v", inst.GridID, err)
	}
	_ = s.grids.RecordEvent(inst.GridID, -1, "stop_loss", fmt.Sprintf("price=%s", price))

	acc := s.accounts.Get(inst.TraderID)
	if acc == nil {
		return
	}
	for _, p := range acc.Positions() {
		if p.GridID != inst.GridID {
			continue
		}
		if _, ok := acc.ClosePosition(p.PositionID, price, account.ExitStopLoss); ok {
			logger.Infof("scheduler: grid %s closed residual position %s on stop-loss", inst.GridID, p.PositionID)
		}
	}
}
