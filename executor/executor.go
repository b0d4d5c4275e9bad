// Package executor translates accepted decisions into exchange gateway
// calls and owns client-order-id attribution via package attribution. No
// virtual state is mutated until the exchange confirms a fill.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"nofx/account"
	"nofx/attribution"
	"nofx/exchange"
	"nofx/grid"
	"nofx/logger"
	"nofx/provider"
	"nofx/risk"
)

// Status is the outcome of executing one decision.
type Status string

const (
	StatusFilled   Status = "FILLED"
	StatusRejected Status = "REJECTED"
	StatusError    Status = "ERROR"
	StatusNoop     Status = "NOOP" // HOLD
)

// Result is the outcome of one execute() call.
type Result struct {
	Status           Status
	RejectionReason  risk.Reason
	ErrorMessage     string
	PositionID       string
	ClientOrderID    string
}

// Executor wires the gateway, risk manager, account service, and grid
// service together to realize decisions.
type Executor struct {
	gw   exchange.Gateway
	risk *risk.Manager
	grids *grid.Service
}

// New builds an Executor.
func New(gw exchange.Gateway, riskMgr *risk.Manager, grids *grid.Service) *Executor {
	return &Executor{gw: gw, risk: riskMgr, grids: grids}
}

// Execute validates and dispatches one decision for a trader, mutating acc
// and, for grid actions, the grid service, only after the exchange
// confirms.
func (e *Executor) Execute(ctx context.Context, d *provider.Decision, acc *account.TraderAccount, prices map[string]decimal.Decimal) Result {
	if d.Action == provider.ActionHold {
		return Result{Status: StatusNoop}
	}

	if rej := e.risk.Validate(d, acc, prices); rej != nil {
		logger.Infof("executor: rejected %s %s for %s: %s", d.Action, d.Symbol, acc.TraderID, rej.Message)
		return Result{Status: StatusRejected, RejectionReason: rej.Reason, ErrorMessage: rej.Message}
	}

	switch d.Action {
	case provider.ActionBuy, provider.ActionSell:
		return e.executeOpen(ctx, d, acc)
	case provider.ActionClose:
		return e.executeClose(ctx, d, acc, prices)
	case provider.ActionSetupGrid:
		return e.executeSetupGrid(ctx, d, acc)
	case provider.ActionStopGrid:
		return e.executeStopGrid(ctx, d, acc)
	case provider.ActionUpdateGrid:
		return Result{Status: StatusRejected, RejectionReason: risk.ReasonActionUnsupported, ErrorMessage: "UPDATE_GRID is not supported; stop and re-setup the grid instead"}
	default:
		return Result{Status: StatusNoop}
	}
}

func (e *Executor) executeOpen(ctx context.Context, d *provider.Decision, acc *account.TraderAccount) Result {
	side := exchange.SideBuy
	accSide := account.SideLong
	if d.Action == provider.ActionSell {
		side = exchange.SideSell
		accSide = account.SideShort
	}

	info, err := e.gw.SymbolInfo(ctx, d.Symbol)
	if err != nil {
		return Result{Status: StatusError, ErrorMessage: err.Error()}
	}

	if err := e.gw.SetLeverage(ctx, d.Symbol, d.Open.Leverage); err != nil {
		return Result{Status: StatusError, ErrorMessage: err.Error()}
	}

	price, err := e.gw.TickerPrice(ctx, d.Symbol)
	if err != nil {
		return Result{Status: StatusError, ErrorMessage: err.Error()}
	}
	rawQty := decimal.NewFromFloat(d.Open.SizeUSD).Div(price.Price)
	qty := e.gw.RoundStep(info, rawQty)

	clientOrderID := attribution.EncodeNonGrid(acc.TraderID, d.Symbol, time.Now())

	res, err := e.gw.CreateOrder(ctx, exchange.OrderRequest{
		Symbol:        d.Symbol,
		Side:          side,
		Quantity:      qty,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		return Result{Status: StatusError, ErrorMessage: err.Error(), ClientOrderID: clientOrderID}
	}

	entryPrice := res.AvgPrice
	if entryPrice.IsZero() {
		entryPrice = price.Price
	}
	p := acc.OpenPosition(d.Symbol, accSide, entryPrice, qty, d.Open.Leverage, "")
	if d.Open.StopLoss != 0 {
		p.StopLoss = decimal.NewFromFloat(d.Open.StopLoss)
	}
	if d.Open.TakeProfit != 0 {
		p.TakeProfit = decimal.NewFromFloat(d.Open.TakeProfit)
	}

	logger.Infof("executor: opened %s %s %s qty=%s @ %s (client_order_id=%s)", acc.TraderID, d.Action, d.Symbol, qty, entryPrice, clientOrderID)
	return Result{Status: StatusFilled, PositionID: p.PositionID, ClientOrderID: clientOrderID}
}

func (e *Executor) executeClose(ctx context.Context, d *provider.Decision, acc *account.TraderAccount, prices map[string]decimal.Decimal) Result {
	pos, ok := acc.PositionFor(d.Symbol)
	if !ok {
		return Result{Status: StatusRejected, RejectionReason: risk.ReasonNoMatchingPosition, ErrorMessage: "no open position for " + d.Symbol}
	}

	side := exchange.SideSell
	if pos.Side == account.SideShort {
		side = exchange.SideBuy
	}

	clientOrderID := attribution.EncodeNonGrid(acc.TraderID, d.Symbol, time.Now())
	res, err := e.gw.CreateOrder(ctx, exchange.OrderRequest{
		Symbol:        d.Symbol,
		Side:          side,
		Quantity:      pos.Quantity,
		ReduceOnly:    true,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		return Result{Status: StatusError, ErrorMessage: err.Error(), ClientOrderID: clientOrderID}
	}

	exitPrice := res.AvgPrice
	if exitPrice.IsZero() {
		exitPrice = prices[d.Symbol]
	}
	_, ok = acc.ClosePosition(pos.PositionID, exitPrice, account.ExitManual)
	if !ok {
		return Result{Status: StatusError, ErrorMessage: "position vanished before close could be applied"}
	}

	logger.Infof("executor: closed %s %s @ %s (client_order_id=%s)", acc.TraderID, d.Symbol, exitPrice, clientOrderID)
	return Result{Status: StatusFilled, PositionID: pos.PositionID, ClientOrderID: clientOrderID}
}

func (e *Executor) executeSetupGrid(ctx context.Context, d *provider.Decision, acc *account.TraderAccount) Result {
	g := d.Grid
	cfg := grid.Config{
		Lower:        decimal.NewFromFloat(g.Lower),
		Upper:        decimal.NewFromFloat(g.Upper),
		LevelCount:   g.LevelCount,
		Distribution: grid.Distribution(g.Distribution),
		Investment:   decimal.NewFromFloat(g.Investment),
		Leverage:     g.Leverage,
		StopLossPct:  g.StopLossPct,
		FeeRate:      decimal.NewFromFloat(0.0005),
	}

	inst, err := e.grids.CreateInstance(acc.TraderID, d.Symbol, cfg)
	if err != nil {
		return Result{Status: StatusError, ErrorMessage: err.Error()}
	}

	if err := e.gw.SetLeverage(ctx, d.Symbol, g.Leverage); err != nil {
		return Result{Status: StatusError, ErrorMessage: err.Error()}
	}

	if err := e.placeGridOrders(ctx, inst); err != nil {
		return Result{Status: StatusError, ErrorMessage: err.Error()}
	}

	if err := e.grids.Persist(inst); err != nil {
		logger.Warnf("executor: failed to persist grid %s after setup: %v", inst.GridID, err)
	}

	return Result{Status: StatusFilled}
}

// placeGridOrders issues a limit order for every level currently awaiting
// placement (EMPTY), tagged with its grid client-order-id. Used at grid
// setup and again by ReplenishGrid once the grid monitor re-arms a level
// after a completed cycle.
func (e *Executor) placeGridOrders(ctx context.Context, inst *grid.Instance) error {
	info, err := e.gw.SymbolInfo(ctx, inst.Symbol)
	if err != nil {
		return err
	}

	for _, level := range inst.PendingLevels() {
		side := exchange.SideBuy
		attrSide := "BUY"
		if level.Side == grid.SideSell {
			side = exchange.SideSell
			attrSide = "SELL"
		}

		clientOrderID := attribution.EncodeGrid(inst.TraderID, inst.Symbol, inst.GridShort, attrSide, level.Index)
		res, err := e.gw.CreateOrder(ctx, exchange.OrderRequest{
			Symbol:        inst.Symbol,
			Side:          side,
			Quantity:      e.gw.RoundStep(info, level.Quantity),
			Price:         e.gw.RoundTick(info, level.Price),
			PostOnly:      true,
			ClientOrderID: clientOrderID,
		})
		if err != nil {
			logger.Warnf("executor: grid %s level %d/%s order failed: %v", inst.GridID, level.Index, level.Side, err)
			continue
		}
		inst.MarkOrderPlaced(level.Index, level.Side, res.OrderID)
		_ = e.grids.RecordEvent(inst.GridID, level.Index, "order_placed", clientOrderID)
	}
	return nil
}

// ReplenishGrid places orders for every level the grid monitor has just
// re-armed to EMPTY after a completed cycle, then persists the instance.
func (e *Executor) ReplenishGrid(ctx context.Context, inst *grid.Instance) error {
	if err := e.placeGridOrders(ctx, inst); err != nil {
		return err
	}
	return e.grids.Persist(inst)
}

func (e *Executor) executeStopGrid(ctx context.Context, d *provider.Decision, acc *account.TraderAccount) Result {
	inst := e.grids.ActiveFor(acc.TraderID, d.Symbol)
	if inst == nil {
		return Result{Status: StatusRejected, ErrorMessage: "no active grid for " + d.Symbol}
	}

	if err := e.gw.CancelAll(ctx, d.Symbol); err != nil {
		return Result{Status: StatusError, ErrorMessage: err.Error()}
	}
	inst.Stop()
	if err := e.grids.Persist(inst); err != nil {
		return Result{Status: StatusError, ErrorMessage: fmt.Sprintf("stopped but failed to persist: %v", err)}
	}
	_ = e.grids.RecordEvent(inst.GridID, -1, "stopped", "manual STOP_GRID decision")
	return Result{Status: StatusFilled}
}
