// Package reconciler periodically re-aligns virtual account/grid state with
// exchange truth. It is the only component besides the executor that may
// retroactively create or destroy Positions in the account service.
package reconciler

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"nofx/account"
	"nofx/attribution"
	"nofx/exchange"
	"nofx/logger"
)

// Delta summarizes what changed for one trader during a reconciliation pass.
type Delta struct {
	TraderID string
	Added    int
	Updated  int
	Removed  int
}

// Reconciler owns the periodic position-sync job.
type Reconciler struct {
	gw      exchange.Gateway
	accounts *account.Service
	symbols []string
}

// New builds a reconciler over gw and accounts, watching symbols for open
// orders used to attribute otherwise-unowned positions.
func New(gw exchange.Gateway, accounts *account.Service, symbols []string) *Reconciler {
	return &Reconciler{gw: gw, accounts: accounts, symbols: symbols}
}

// Run performs one reconciliation pass: snapshot exchange state, then visit
// each trader in lexicographic trader_id order (account.Service.All),
// diffing against C7.
func (r *Reconciler) Run(ctx context.Context) ([]Delta, error) {
	positions, err := r.gw.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciler: fetch positions: %w", err)
	}

	ownerBySymbol, err := r.buildOwnerIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciler: build owner index: %w", err)
	}

	byTrader := make(map[string][]exchange.PositionSnapshot)
	for _, p := range positions {
		traderID, ok := ownerBySymbol[p.Symbol]
		if !ok {
			logger.Warnf("reconciler: position %s has no attributable owner, flagging unowned", p.Symbol)
			continue
		}
		byTrader[traderID] = append(byTrader[traderID], p)
	}

	var deltas []Delta
	for _, acc := range r.accounts.All() { // already lexicographic, see account.Service.All
		d := r.reconcileTrader(acc, byTrader[acc.TraderID])
		if d.Added+d.Updated+d.Removed > 0 {
			deltas = append(deltas, d)
		}
	}
	return deltas, nil
}

// buildOwnerIndex maps symbol -> trader_id using the client-order-id of the
// last attributable open order the gateway lists for that symbol, per the
// spec's "attribution of
// unassigned positions when possible" guidance.
func (r *Reconciler) buildOwnerIndex(ctx context.Context) (map[string]string, error) {
	owners := make(map[string]string)
	for _, symbol := range r.symbols {
		orders, err := r.gw.OpenOrders(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("open orders for %s: %w", symbol, err)
		}
		for _, o := range orders {
			a := attribution.Parse(o.ClientOrderID)
			if a.Kind == attribution.KindUnowned {
				continue
			}
			owners[symbol] = a.TraderID
		}
	}
	return owners, nil
}

func (r *Reconciler) reconcileTrader(acc *account.TraderAccount, exchangePositions []exchange.PositionSnapshot) Delta {
	d := Delta{TraderID: acc.TraderID}

	exchangeBySymbol := make(map[string]exchange.PositionSnapshot, len(exchangePositions))
	for _, p := range exchangePositions {
		exchangeBySymbol[p.Symbol] = p
	}

	localPositions := acc.Positions()
	localBySymbol := make(map[string]account.Position, len(localPositions))
	for _, p := range localPositions {
		localBySymbol[p.Symbol] = p
	}

	symbols := make([]string, 0, len(exchangeBySymbol)+len(localBySymbol))
	seen := make(map[string]bool)
	for s := range exchangeBySymbol {
		if !seen[s] {
			symbols = append(symbols, s)
			seen[s] = true
		}
	}
	for s := range localBySymbol {
		if !seen[s] {
			symbols = append(symbols, s)
			seen[s] = true
		}
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		ep, hasExchange := exchangeBySymbol[symbol]
		lp, hasLocal := localBySymbol[symbol]

		switch {
		case hasExchange && !hasLocal:
			side := account.SideLong
			if ep.Side == exchange.SideSell {
				side = account.SideShort
			}
			acc.OpenPosition(symbol, side, ep.EntryPrice, ep.Quantity, ep.Leverage, "")
			d.Added++

		case !hasExchange && hasLocal:
			reason := account.ExitManual
			if isNearLiquidation(lp) {
				reason = account.ExitLiquidation
			}
			acc.ClosePosition(lp.PositionID, lp.EntryPrice, reason)
			d.Removed++

		case hasExchange && hasLocal:
			if !lp.EntryPrice.Equal(ep.EntryPrice) || !lp.Quantity.Equal(ep.Quantity) {
				acc.ClosePosition(lp.PositionID, ep.EntryPrice, account.ExitReset)
				side := account.SideLong
				if ep.Side == exchange.SideSell {
					side = account.SideShort
				}
				acc.OpenPosition(symbol, side, ep.EntryPrice, ep.Quantity, ep.Leverage, lp.GridID)
				d.Updated++
			}
		}
	}

	return d
}

// isNearLiquidation approximates the spec's "near the liquidation price"
// test for a local position the exchange no longer reports.
func isNearLiquidation(p account.Position) bool {
	if p.Leverage == 0 {
		return false
	}
	threshold := decimal.NewFromFloat(100.0 / float64(p.Leverage) * 0.9)
	moved := p.UnrealizedPnL.Abs().Div(p.MarginUsed.Add(decimal.NewFromInt(1))).Mul(decimal.NewFromInt(100))
	return moved.GreaterThanOrEqual(threshold)
}
