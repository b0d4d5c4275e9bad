// Package risk implements the pure validator that stands between every
// accepted decision and the exchange gateway: (decision, account, prices) ->
// (accept, reject+reason). It never calls the exchange and never mutates
// account state.
package risk

import (
	"github.com/shopspring/decimal"

	"nofx/account"
	"nofx/provider"
)

// Reason is a structured rejection code, stable across releases so callers
// can branch on it without string matching.
type Reason string

const (
	ReasonSymbolNotAllowed     Reason = "symbol_not_allowed"
	ReasonNoPrice              Reason = "no_price"
	ReasonNoMatchingPosition   Reason = "no_matching_position"
	ReasonPositionExists       Reason = "position_exists"
	ReasonMaxOpenPositions     Reason = "max_open_positions"
	ReasonSizeOutOfRange       Reason = "size_out_of_range"
	ReasonLeverageOutOfRange   Reason = "leverage_out_of_range"
	ReasonInsufficientBalance  Reason = "insufficient_balance"
	ReasonStopLossOutOfRange   Reason = "stop_loss_out_of_range"
	ReasonTakeProfitOutOfRange Reason = "take_profit_out_of_range"
	ReasonActionUnsupported    Reason = "action_unsupported"
)

// Rejection is returned when validate rejects a decision.
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// Limits carries the configured risk bounds, sourced from package config.
type Limits struct {
	AllowedSymbols    map[string]bool
	MinTradeUSD       decimal.Decimal
	MaxTradeUSD       decimal.Decimal
	MaxOpenPositions  int
	MaxLeverage       int
	StopLossRangePct  [2]float64
	TakeProfitRangePct [2]float64
}

// Manager validates decisions against configured Limits.
type Manager struct {
	limits Limits
}

// NewManager builds a risk manager with the given limits.
func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

// Validate checks decision against account and the current price map. A nil
// Rejection means the decision is accepted unchanged.
func (m *Manager) Validate(d *provider.Decision, acc *account.TraderAccount, prices map[string]decimal.Decimal) *Rejection {
	if d.Action == provider.ActionHold {
		return nil
	}

	if d.Symbol != "" && !m.limits.AllowedSymbols[d.Symbol] {
		return &Rejection{Reason: ReasonSymbolNotAllowed, Message: "symbol not in allow-list: " + d.Symbol}
	}

	price, hasPrice := prices[d.Symbol]
	if d.Symbol != "" && !hasPrice {
		return &Rejection{Reason: ReasonNoPrice, Message: "no price available for " + d.Symbol}
	}

	switch d.Action {
	case provider.ActionClose:
		if _, ok := acc.PositionFor(d.Symbol); !ok {
			return &Rejection{Reason: ReasonNoMatchingPosition, Message: "no open position to close for " + d.Symbol}
		}
		return nil

	case provider.ActionBuy, provider.ActionSell:
		return m.validateOpen(d, acc, price)

	case provider.ActionSetupGrid:
		return m.validateSetupGrid(d, acc)

	case provider.ActionStopGrid:
		return nil

	case provider.ActionUpdateGrid:
		return &Rejection{Reason: ReasonActionUnsupported, Message: "UPDATE_GRID is not supported"}

	default:
		return nil
	}
}

func (m *Manager) validateOpen(d *provider.Decision, acc *account.TraderAccount, price decimal.Decimal) *Rejection {
	if _, ok := acc.PositionFor(d.Symbol); ok {
		return &Rejection{Reason: ReasonPositionExists, Message: "position already open for " + d.Symbol}
	}
	if acc.OpenPositionCount() >= m.limits.MaxOpenPositions {
		return &Rejection{Reason: ReasonMaxOpenPositions, Message: "max open positions reached"}
	}

	open := d.Open
	if open == nil {
		return &Rejection{Reason: ReasonSizeOutOfRange, Message: "missing open params"}
	}

	sizeUSD := decimal.NewFromFloat(open.SizeUSD)
	if sizeUSD.LessThan(m.limits.MinTradeUSD) || sizeUSD.GreaterThan(m.limits.MaxTradeUSD) {
		return &Rejection{Reason: ReasonSizeOutOfRange, Message: "size outside configured trade range"}
	}

	if open.Leverage < 1 || open.Leverage > m.limits.MaxLeverage {
		return &Rejection{Reason: ReasonLeverageOutOfRange, Message: "leverage outside configured range"}
	}

	requiredMargin := sizeUSD.Div(decimal.NewFromInt(int64(open.Leverage)))
	if requiredMargin.GreaterThan(acc.Balance) {
		return &Rejection{Reason: ReasonInsufficientBalance, Message: "required margin exceeds free balance"}
	}

	if open.StopLoss != 0 {
		pct := percentFromPrice(price, decimal.NewFromFloat(open.StopLoss))
		if pct < m.limits.StopLossRangePct[0] || pct > m.limits.StopLossRangePct[1] {
			return &Rejection{Reason: ReasonStopLossOutOfRange, Message: "stop-loss outside permitted band"}
		}
	}
	if open.TakeProfit != 0 {
		pct := percentFromPrice(price, decimal.NewFromFloat(open.TakeProfit))
		if pct < m.limits.TakeProfitRangePct[0] || pct > m.limits.TakeProfitRangePct[1] {
			return &Rejection{Reason: ReasonTakeProfitOutOfRange, Message: "take-profit outside permitted band"}
		}
	}

	return nil
}

func (m *Manager) validateSetupGrid(d *provider.Decision, acc *account.TraderAccount) *Rejection {
	if acc.OpenPositionCount() >= m.limits.MaxOpenPositions {
		return &Rejection{Reason: ReasonMaxOpenPositions, Message: "max open positions reached"}
	}
	if d.Grid == nil {
		return &Rejection{Reason: ReasonSizeOutOfRange, Message: "missing grid params"}
	}
	if d.Grid.Leverage < 1 || d.Grid.Leverage > m.limits.MaxLeverage {
		return &Rejection{Reason: ReasonLeverageOutOfRange, Message: "leverage outside configured range"}
	}
	return nil
}

func percentFromPrice(current, target decimal.Decimal) float64 {
	if current.IsZero() {
		return 0
	}
	pct, _ := target.Sub(current).Div(current).Mul(decimal.NewFromInt(100)).Abs().Float64()
	return pct
}

// StopLossTrigger is one account's position that has crossed its stop-loss.
type StopLossTrigger struct {
	PositionID string
	Symbol     string
}

// StopLossTriggers returns every open position whose current price has
// crossed its configured stop-loss.
func StopLossTriggers(acc *account.TraderAccount, prices map[string]decimal.Decimal) []StopLossTrigger {
	var out []StopLossTrigger
	for _, p := range acc.Positions() {
		if p.StopLoss.IsZero() {
			continue
		}
		price, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		crossed := (p.Side == account.SideLong && price.LessThanOrEqual(p.StopLoss)) ||
			(p.Side == account.SideShort && price.GreaterThanOrEqual(p.StopLoss))
		if crossed {
			out = append(out, StopLossTrigger{PositionID: p.PositionID, Symbol: p.Symbol})
		}
	}
	return out
}

// TakeProfitTriggers returns every open position whose current price has
// crossed its configured take-profit.
func TakeProfitTriggers(acc *account.TraderAccount, prices map[string]decimal.Decimal) []StopLossTrigger {
	var out []StopLossTrigger
	for _, p := range acc.Positions() {
		if p.TakeProfit.IsZero() {
			continue
		}
		price, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		crossed := (p.Side == account.SideLong && price.GreaterThanOrEqual(p.TakeProfit)) ||
			(p.Side == account.SideShort && price.LessThanOrEqual(p.TakeProfit))
		if crossed {
			out = append(out, StopLossTrigger{PositionID: p.PositionID, Symbol: p.Symbol})
		}
	}
	return out
}

// LiquidationProximity returns every open position within thresholdPct of
// its notional liquidation distance, approximated here as the price move
// that would exhaust margin_used at the position's leverage.
func LiquidationProximity(acc *account.TraderAccount, prices map[string]decimal.Decimal, thresholdPct float64) []StopLossTrigger {
	var out []StopLossTrigger
	for _, p := range acc.Positions() {
		price, ok := prices[p.Symbol]
		if !ok || p.Leverage == 0 {
			continue
		}
		liqMovePct := 100.0 / float64(p.Leverage)
		movedPct := percentFromPrice(p.EntryPrice, price)
		if movedPct >= liqMovePct*(1-thresholdPct/100) {
			out = append(out, StopLossTrigger{PositionID: p.PositionID, Symbol: p.Symbol})
		}
	}
	return out
}
