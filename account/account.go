// Package account owns the in-memory virtual sub-accounts: one
// TraderAccount per trader, its open positions, and the bookkeeping that
// keeps balance/margin/PnL consistent as positions open and close. All
// monetary math uses decimal; state is persisted through package store.
package account

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"nofx/store"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Status is a position's lifecycle state.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusClosed     Status = "CLOSED"
	StatusLiquidated Status = "LIQUIDATED"
)

// ExitReason records why a position was closed, carried onto its Trade.
type ExitReason string

const (
	ExitManual      ExitReason = "MANUAL"
	ExitStopLoss    ExitReason = "STOP_LOSS"
	ExitTakeProfit  ExitReason = "TAKE_PROFIT"
	ExitLiquidation ExitReason = "LIQUIDATION"
	ExitReset       ExitReason = "RESET"
	ExitStrategy    ExitReason = "STRATEGY"
)

// Position is an open directional exposure. At most one Position exists per
// (trader, symbol) at a time.
type Position struct {
	PositionID    string
	TraderID      string
	Symbol        string
	Side          Side
	EntryPrice    decimal.Decimal
	Quantity      decimal.Decimal
	Leverage      int
	MarginUsed    decimal.Decimal
	StopLoss      decimal.Decimal // zero value means unset
	TakeProfit    decimal.Decimal
	UnrealizedPnL decimal.Decimal
	GridID        string // empty for non-grid positions
	OpenedAt      time.Time
	Status        Status
}

// Trade is an immutable completed round-trip, produced when a Position closes.
type Trade struct {
	TradeID    string
	TraderID   string
	PositionID string
	Symbol     string
	Side       Side
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Quantity   decimal.Decimal
	Leverage   int
	PnL        decimal.Decimal
	PnLPct     decimal.Decimal
	OpenedAt   time.Time
	ClosedAt   time.Time
	ExitReason ExitReason
}

// TraderAccount is one trader's virtual sub-account. Every mutation is
// serialized by mu, matching the per-entity lock discipline the grid engine
// also follows.
type TraderAccount struct {
	mu sync.RWMutex

	TraderID        string
	InitialBalance  decimal.Decimal
	Balance         decimal.Decimal // free cash
	MarginLocked    decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	RealizedPnL     decimal.Decimal
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	MaxOpenPositions int

	positions map[string]*Position // by PositionID
	trades    []Trade
}

// NewTraderAccount constructs a fresh account with the given starting
// balance; created once at boot and never destroyed.
func NewTraderAccount(traderID string, initialBalance decimal.Decimal, maxOpenPositions int) *TraderAccount {
	return &TraderAccount{
		TraderID:         traderID,
		InitialBalance:   initialBalance,
		Balance:          initialBalance,
		MaxOpenPositions: maxOpenPositions,
		positions:        make(map[string]*Position),
	}
}

// Equity returns balance + margin_locked + unrealized_pnl.
func (a *TraderAccount) Equity() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.equityLocked()
}

func (a *TraderAccount) equityLocked() decimal.Decimal {
	return a.Balance.Add(a.MarginLocked).Add(a.UnrealizedPnL)
}

// OpenPositionCount returns the number of currently OPEN positions.
func (a *TraderAccount) OpenPositionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.positions)
}

// PositionFor returns the open position for symbol, if any.
func (a *TraderAccount) PositionFor(symbol string) (*Position, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, p := range a.positions {
		if p.Symbol == symbol && p.Status == StatusOpen {
			cp := *p
			return &cp, true
		}
	}
	return nil, false
}

// Trades returns a snapshot of every completed round-trip recorded so far.
func (a *TraderAccount) Trades() []Trade {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Trade, len(a.trades))
	copy(out, a.trades)
	return out
}

// Positions returns a snapshot of every open position.
func (a *TraderAccount) Positions() []Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	return out
}

// OpenPosition records a new position, decrementing free balance by the
// required margin and incrementing margin_locked. Caller (the executor) is
// responsible for having already validated the decision via package risk.
func (a *TraderAccount) OpenPosition(symbol string, side Side, entryPrice, quantity decimal.Decimal, leverage int, gridID string) *Position {
	a.mu.Lock()
	defer a.mu.Unlock()

	marginUsed := entryPrice.Mul(quantity).Div(decimal.NewFromInt(int64(leverage)))

	p := &Position{
		PositionID: uuid.NewString(),
		TraderID:   a.TraderID,
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Leverage:   leverage,
		MarginUsed: marginUsed,
		GridID:     gridID,
		OpenedAt:   time.Now(),
		Status:     StatusOpen,
	}

	a.Balance = a.Balance.Sub(marginUsed)
	a.MarginLocked = a.MarginLocked.Add(marginUsed)
	a.positions[p.PositionID] = p

	return p
}

// ClosePosition releases margin, credits PnL to balance and realized PnL,
// records a Trade, and increments the win/loss counter. Returns the Trade
// and false if positionID is unknown or already closed.
func (a *TraderAccount) ClosePosition(positionID string, exitPrice decimal.Decimal, reason ExitReason) (Trade, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.positions[positionID]
	if !ok || p.Status != StatusOpen {
		return Trade{}, false
	}

	pnl := pnlFor(p.Side, p.EntryPrice, exitPrice, p.Quantity, p.Leverage)
	pnlPct := decimal.Zero
	if !p.MarginUsed.IsZero() {
		pnlPct = pnl.Div(p.MarginUsed).Mul(decimal.NewFromInt(100))
	}

	a.Balance = a.Balance.Add(p.MarginUsed).Add(pnl)
	a.MarginLocked = a.MarginLocked.Sub(p.MarginUsed)
	a.RealizedPnL = a.RealizedPnL.Add(pnl)

	p.Status = StatusClosed
	if reason == ExitLiquidation {
		p.Status = StatusLiquidated
	}
	delete(a.positions, positionID)

	a.TotalTrades++
	if pnl.IsPositive() {
		a.WinningTrades++
	} else if pnl.IsNegative() {
		a.LosingTrades++
	}

	t := Trade{
		TradeID:    uuid.NewString(),
		TraderID:   a.TraderID,
		PositionID: p.PositionID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   p.Quantity,
		Leverage:   p.Leverage,
		PnL:        pnl,
		PnLPct:     pnlPct,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   time.Now(),
		ExitReason: reason,
	}
	a.trades = append(a.trades, t)
	return t, true
}

// pnlFor computes pnl = (exit - entry) * qty * leverage for LONG, inverted
// for SHORT, per the round-trip invariant in spec §8.
func pnlFor(side Side, entry, exit, qty decimal.Decimal, leverage int) decimal.Decimal {
	diff := exit.Sub(entry)
	if side == SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(qty).Mul(decimal.NewFromInt(int64(leverage)))
}

// UpdateUnrealized recomputes unrealized PnL for every open position given
// current prices, keyed by symbol.
func (a *TraderAccount) UpdateUnrealized(prices map[string]decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := decimal.Zero
	for _, p := range a.positions {
		price, ok := prices[p.Symbol]
		if !ok {
			total = total.Add(p.UnrealizedPnL)
			continue
		}
		p.UnrealizedPnL = pnlFor(p.Side, p.EntryPrice, price, p.Quantity, p.Leverage)
		total = total.Add(p.UnrealizedPnL)
	}
	a.UnrealizedPnL = total
}

// Snapshot is an immutable point-in-time view used for persistence and for
// building provider context bundles.
type Snapshot struct {
	TraderID      string
	Balance       decimal.Decimal
	MarginLocked  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	Equity        decimal.Decimal
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	OpenPositions int
}

// Summary returns a point-in-time Snapshot of the account.
func (a *TraderAccount) Summary() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{
		TraderID:      a.TraderID,
		Balance:       a.Balance,
		MarginLocked:  a.MarginLocked,
		UnrealizedPnL: a.UnrealizedPnL,
		RealizedPnL:   a.RealizedPnL,
		Equity:        a.equityLocked(),
		TotalTrades:   a.TotalTrades,
		WinningTrades: a.WinningTrades,
		LosingTrades:  a.LosingTrades,
		OpenPositions: len(a.positions),
	}
}

// toModel converts a Position to its persisted shape.
func (p *Position) toModel() *store.PositionModel {
	var closedAt *time.Time
	m := &store.PositionModel{
		PositionID:    p.PositionID,
		TraderID:      p.TraderID,
		Symbol:        p.Symbol,
		Side:          string(p.Side),
		QuantityBase:  p.Quantity.String(),
		EntryPriceUSD: p.EntryPrice.String(),
		Leverage:      p.Leverage,
		StopLossUSD:   p.StopLoss.String(),
		TakeProfitUSD: p.TakeProfit.String(),
		UnrealizedPnLUSD: p.UnrealizedPnL.String(),
		GridID:        p.GridID,
		OpenedAt:      p.OpenedAt,
		ClosedAt:      closedAt,
		Status:        string(p.Status),
	}
	return m
}

// toModel converts a Trade to its persisted shape.
func (t *Trade) toModel() *store.TradeModel {
	return &store.TradeModel{
		TradeID:        t.TradeID,
		TraderID:       t.TraderID,
		PositionID:     t.PositionID,
		Symbol:         t.Symbol,
		Side:           string(t.Side),
		QuantityBase:   t.Quantity.String(),
		PriceUSD:       t.ExitPrice.String(),
		RealizedPnLUSD: t.PnL.String(),
		FilledAt:       t.ClosedAt,
	}
}
