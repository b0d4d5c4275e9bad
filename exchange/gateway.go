// Package exchange normalizes access to the futures venue behind a single
// Gateway interface: ticker/kline reads, account/position snapshots, order
// placement and cancellation, and symbol precision rounding. Every trader
// shares one Gateway instance and one exchange-side balance; attribution of
// fills back to a trader happens one layer up, in package executor, via the
// client-order-id scheme.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Ticker is the current best price for a symbol.
type Ticker struct {
	Symbol string
	Price  decimal.Decimal
}

// Ticker24h carries rolling 24h statistics.
type Ticker24h struct {
	Symbol      string
	LastPrice   decimal.Decimal
	PriceChgPct decimal.Decimal
	Volume      decimal.Decimal
	HighPrice   decimal.Decimal
	LowPrice    decimal.Decimal
}

// Kline is one OHLCV candle.
type Kline struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// AccountSnapshot is the exchange-side view of the shared account.
type AccountSnapshot struct {
	TotalWalletBalance     decimal.Decimal
	TotalUnrealizedProfit  decimal.Decimal
	AvailableBalance       decimal.Decimal
}

// PositionSnapshot is the exchange-side view of one open position.
type PositionSnapshot struct {
	Symbol           string
	Side             Side
	Quantity         decimal.Decimal
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	UnrealizedProfit decimal.Decimal
	Leverage         int
	LiquidationPrice decimal.Decimal
}

// OpenOrder is one order still resting on the book.
type OpenOrder struct {
	Symbol        string
	OrderID       string
	ClientOrderID string
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Status        string
}

// OrderRequest describes an order to place. ClientOrderID carries the
// attribution encoding produced by package executor.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	Price         decimal.Decimal // zero value means market order
	PostOnly      bool
	ReduceOnly    bool
	ClientOrderID string
}

// OrderResult is the exchange's immediate (possibly unfilled) response to
// placing an order.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Status        string // NEW, FILLED, PARTIALLY_FILLED, REJECTED
	AvgPrice      decimal.Decimal
	ExecutedQty   decimal.Decimal
	Commission    decimal.Decimal
}

// SymbolInfo carries the precision constraints a gateway must round every
// quantity and price against before placing an order.
type SymbolInfo struct {
	Symbol      string
	StepSize    decimal.Decimal
	TickSize    decimal.Decimal
	MinNotional decimal.Decimal
}

// Gateway is the control plane's single point of contact with the futures
// venue. Implementations must be safe for concurrent use by every trader's
// pipeline.
type Gateway interface {
	TickerPrice(ctx context.Context, symbol string) (Ticker, error)
	Ticker24h(ctx context.Context, symbol string) (Ticker24h, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)

	Account(ctx context.Context) (AccountSnapshot, error)
	Positions(ctx context.Context) ([]PositionSnapshot, error)
	OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAll(ctx context.Context, symbol string) error

	SetLeverage(ctx context.Context, symbol string, leverage int) error

	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	RoundStep(info SymbolInfo, qty decimal.Decimal) decimal.Decimal
	RoundTick(info SymbolInfo, price decimal.Decimal) decimal.Decimal
}

// roundToStep rounds x to the nearest multiple of step, halves rounding away
// from zero (step > 0; a zero step returns x unchanged).
func roundToStep(x, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return x
	}
	div := x.DivRound(step, 0)
	return div.Mul(step)
}
