package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Fake is an in-memory Gateway double for tests elsewhere in the module. It
// keeps a single shared price per symbol and echoes back orders as
// immediately filled, which is enough to exercise the executor/grid/account
// packages without a network dependency.
type Fake struct {
	mu      sync.Mutex
	prices  map[string]decimal.Decimal
	symbols map[string]SymbolInfo
	orders  []OrderRequest
	nextID  int
}

// NewFake builds an empty fake gateway; use SetPrice/SetSymbolInfo to seed it.
func NewFake() *Fake {
	return &Fake{
		prices:  make(map[string]decimal.Decimal),
		symbols: make(map[string]SymbolInfo),
	}
}

// SetPrice fixes the price a subsequent TickerPrice/CreateOrder market fill
// will use for symbol.
func (f *Fake) SetPrice(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

// SetSymbolInfo fixes the rounding constraints returned for symbol.
func (f *Fake) SetSymbolInfo(info SymbolInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols[info.Symbol] = info
}

// Orders returns every order placed so far, for test assertions.
func (f *Fake) Orders() []OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]OrderRequest, len(f.orders))
	copy(out, f.orders)
	return out
}

func (f *Fake) TickerPrice(_ context.Context, symbol string) (Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	if !ok {
		return Ticker{}, &ProtocolError{Op: "TickerPrice", Message: "unknown symbol: " + symbol}
	}
	return Ticker{Symbol: symbol, Price: p}, nil
}

func (f *Fake) Ticker24h(ctx context.Context, symbol string) (Ticker24h, error) {
	t, err := f.TickerPrice(ctx, symbol)
	if err != nil {
		return Ticker24h{}, err
	}
	return Ticker24h{Symbol: symbol, LastPrice: t.Price}, nil
}

func (f *Fake) Klines(_ context.Context, _ string, _ string, _ int) ([]Kline, error) {
	return nil, nil
}

func (f *Fake) Account(_ context.Context) (AccountSnapshot, error) {
	return AccountSnapshot{}, nil
}

func (f *Fake) Positions(_ context.Context) ([]PositionSnapshot, error) {
	return nil, nil
}

func (f *Fake) OpenOrders(_ context.Context, _ string) ([]OpenOrder, error) {
	return nil, nil
}

func (f *Fake) CreateOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	price := req.Price
	if price.IsZero() {
		price = f.prices[req.Symbol]
	}
	f.nextID++
	f.orders = append(f.orders, req)
	return OrderResult{
		OrderID:       fmt.Sprintf("fake-%d", f.nextID),
		ClientOrderID: req.ClientOrderID,
		Status:        "FILLED",
		AvgPrice:      price,
		ExecutedQty:   req.Quantity,
	}, nil
}

func (f *Fake) CancelOrder(_ context.Context, _ string, _ string) error { return nil }
func (f *Fake) CancelAll(_ context.Context, _ string) error             { return nil }
func (f *Fake) SetLeverage(_ context.Context, _ string, _ int) error    { return nil }

func (f *Fake) SymbolInfo(_ context.Context, symbol string) (SymbolInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.symbols[symbol]; ok {
		return info, nil
	}
	return SymbolInfo{
		Symbol:   symbol,
		StepSize: decimal.NewFromFloat(0.001),
		TickSize: decimal.NewFromFloat(0.01),
	}, nil
}

func (f *Fake) RoundStep(info SymbolInfo, qty decimal.Decimal) decimal.Decimal {
	return roundToStep(qty, info.StepSize)
}

func (f *Fake) RoundTick(info SymbolInfo, price decimal.Decimal) decimal.Decimal {
	return roundToStep(price, info.TickSize)
}
