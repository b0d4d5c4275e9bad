package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"nofx/logger"
)

// rateLimitCodes are the go-binance API error codes that mean "reached the
// exchange, but throttled" rather than "reached the exchange and rejected".
var rateLimitCodes = map[int64]bool{
	-1003: true, // TOO_MANY_REQUESTS
	-1015: true, // TOO_MANY_ORDERS
}

// classifyBinanceError maps a go-binance SDK error onto the gateway's
// TransportError/RateLimited/ProtocolError taxonomy so withRetry only
// retries calls that never reached the exchange. An already-classified
// error (raised directly by a service method below) passes through
// unchanged.
func classifyBinanceError(op string, err error) error {
	switch err.(type) {
	case *ProtocolError, *RateLimited, *TransportError:
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if rateLimitCodes[apiErr.Code] {
			return &RateLimited{Op: op}
		}
		return &ProtocolError{Op: op, Code: int(apiErr.Code), Message: apiErr.Message}
	}

	return err
}

// maxAttempts bounds the retry policy for transport-level failures: up to
// three attempts with exponential backoff, never retrying a ProtocolError.
const maxAttempts = 3

// BinanceGateway implements Gateway over github.com/adshao/go-binance/v2/futures.
// It owns one client for the whole process; every trader shares it.
type BinanceGateway struct {
	client  *futures.Client
	limiter *rate.Limiter

	mu          sync.RWMutex
	symbolCache map[string]SymbolInfo
}

// NewBinanceGateway builds a gateway against the live futures API. ratePerSec
// governs the client-side token bucket guarding against provider-side
// throttling (§5, "subject to a provider-side rate limiter").
func NewBinanceGateway(apiKey, secretKey string, ratePerSec float64) *BinanceGateway {
	return &BinanceGateway{
		client:      futures.NewClient(apiKey, secretKey),
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), int(math.Max(1, ratePerSec))),
		symbolCache: make(map[string]SymbolInfo),
	}
}

// withRetry runs fn up to maxAttempts times, retrying only transport-level
// failures with exponential backoff; a ProtocolError is returned immediately.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		err = classifyBinanceError(op, err)
		lastErr = err
		if _, isProtocol := err.(*ProtocolError); isProtocol {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		backoff := time.Duration(math.Pow(2, float64(attempt))) * 200 * time.Millisecond
		logger.Warnf("exchange: %s attempt %d failed, retrying in %s: %v", op, attempt+1, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return &TransportError{Op: op, Err: lastErr}
}

func (g *BinanceGateway) wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

func (g *BinanceGateway) TickerPrice(ctx context.Context, symbol string) (Ticker, error) {
	if err := g.wait(ctx); err != nil {
		return Ticker{}, err
	}
	var out Ticker
	err := withRetry(ctx, "TickerPrice", func() error {
		prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(prices) == 0 {
			return &ProtocolError{Op: "TickerPrice", Message: "symbol not found: " + symbol}
		}
		price, perr := decimal.NewFromString(prices[0].Price)
		if perr != nil {
			return fmt.Errorf("parse price: %w", perr)
		}
		out = Ticker{Symbol: symbol, Price: price}
		return nil
	})
	return out, err
}

func (g *BinanceGateway) Ticker24h(ctx context.Context, symbol string) (Ticker24h, error) {
	if err := g.wait(ctx); err != nil {
		return Ticker24h{}, err
	}
	var out Ticker24h
	err := withRetry(ctx, "Ticker24h", func() error {
		stats, err := g.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			return &ProtocolError{Op: "Ticker24h", Message: "symbol not found: " + symbol}
		}
		s := stats[0]
		out = Ticker24h{
			Symbol:      symbol,
			LastPrice:   mustDecimal(s.LastPrice),
			PriceChgPct: mustDecimal(s.PriceChangePercent),
			Volume:      mustDecimal(s.Volume),
			HighPrice:   mustDecimal(s.HighPrice),
			LowPrice:    mustDecimal(s.LowPrice),
		}
		return nil
	})
	return out, err
}

func (g *BinanceGateway) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	var out []Kline
	err := withRetry(ctx, "Klines", func() error {
		raw, err := g.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
		if err != nil {
			return err
		}
		out = make([]Kline, len(raw))
		for i, k := range raw {
			out[i] = Kline{
				OpenTime:  time.UnixMilli(k.OpenTime),
				Open:      mustFloat(k.Open),
				High:      mustFloat(k.High),
				Low:       mustFloat(k.Low),
				Close:     mustFloat(k.Close),
				Volume:    mustFloat(k.Volume),
				CloseTime: time.UnixMilli(k.CloseTime),
			}
		}
		return nil
	})
	return out, err
}

func (g *BinanceGateway) Account(ctx context.Context) (AccountSnapshot, error) {
	if err := g.wait(ctx); err != nil {
		return AccountSnapshot{}, err
	}
	var out AccountSnapshot
	err := withRetry(ctx, "Account", func() error {
		acc, err := g.client.NewGetAccountService().Do(ctx)
		if err != nil {
			return err
		}
		out = AccountSnapshot{
			TotalWalletBalance:    mustDecimal(acc.TotalWalletBalance),
			TotalUnrealizedProfit: mustDecimal(acc.TotalUnrealizedProfit),
			AvailableBalance:      mustDecimal(acc.AvailableBalance),
		}
		return nil
	})
	return out, err
}

func (g *BinanceGateway) Positions(ctx context.Context) ([]PositionSnapshot, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	var out []PositionSnapshot
	err := withRetry(ctx, "Positions", func() error {
		risks, err := g.client.NewGetPositionRiskService().Do(ctx)
		if err != nil {
			return err
		}
		for _, p := range risks {
			amt := mustDecimal(p.PositionAmt)
			if amt.IsZero() {
				continue
			}
			side := SideBuy
			if amt.IsNegative() {
				side = SideSell
				amt = amt.Neg()
			}
			lev, _ := strconv.Atoi(p.Leverage)
			out = append(out, PositionSnapshot{
				Symbol:           p.Symbol,
				Side:             side,
				Quantity:         amt,
				EntryPrice:       mustDecimal(p.EntryPrice),
				MarkPrice:        mustDecimal(p.MarkPrice),
				UnrealizedProfit: mustDecimal(p.UnRealizedProfit),
				Leverage:         lev,
				LiquidationPrice: mustDecimal(p.LiquidationPrice),
			})
		}
		return nil
	})
	return out, err
}

func (g *BinanceGateway) OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	var out []OpenOrder
	err := withRetry(ctx, "OpenOrders", func() error {
		orders, err := g.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		for _, o := range orders {
			side := SideBuy
			if o.Side == futures.SideTypeSell {
				side = SideSell
			}
			out = append(out, OpenOrder{
				Symbol:        o.Symbol,
				OrderID:       strconv.FormatInt(o.OrderID, 10),
				ClientOrderID: o.ClientOrderID,
				Side:          side,
				Price:         mustDecimal(o.Price),
				Quantity:      mustDecimal(o.OrigQuantity),
				Status:        string(o.Status),
			})
		}
		return nil
	})
	return out, err
}

func (g *BinanceGateway) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := g.wait(ctx); err != nil {
		return OrderResult{}, err
	}
	var out OrderResult
	err := withRetry(ctx, "CreateOrder", func() error {
		side := futures.SideTypeBuy
		if req.Side == SideSell {
			side = futures.SideTypeSell
		}

		svc := g.client.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(side).
			Quantity(req.Quantity.String()).
			NewClientOrderID(req.ClientOrderID).
			ReduceOnly(req.ReduceOnly)

		if req.Price.IsZero() {
			svc = svc.Type(futures.OrderTypeMarket)
		} else {
			svc = svc.Type(futures.OrderTypeLimit).Price(req.Price.String()).TimeInForce(futures.TimeInForceTypeGTC)
			if req.PostOnly {
				svc = svc.TimeInForce(futures.TimeInForceTypeGTX)
			}
		}

		resp, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		out = OrderResult{
			OrderID:       strconv.FormatInt(resp.OrderID, 10),
			ClientOrderID: resp.ClientOrderID,
			Status:        string(resp.Status),
			AvgPrice:      mustDecimal(resp.AvgPrice),
			ExecutedQty:   mustDecimal(resp.ExecutedQuantity),
		}
		return nil
	})
	return out, err
}

func (g *BinanceGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return &ProtocolError{Op: "CancelOrder", Message: "bad order id: " + orderID}
	}
	return withRetry(ctx, "CancelOrder", func() error {
		_, err := g.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
		return err
	})
}

func (g *BinanceGateway) CancelAll(ctx context.Context, symbol string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	return withRetry(ctx, "CancelAll", func() error {
		return g.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx)
	})
}

func (g *BinanceGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	return withRetry(ctx, "SetLeverage", func() error {
		_, err := g.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
		return err
	})
}

func (g *BinanceGateway) SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	g.mu.RLock()
	if info, ok := g.symbolCache[symbol]; ok {
		g.mu.RUnlock()
		return info, nil
	}
	g.mu.RUnlock()

	if err := g.wait(ctx); err != nil {
		return SymbolInfo{}, err
	}

	var out SymbolInfo
	err := withRetry(ctx, "SymbolInfo", func() error {
		ex, err := g.client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return err
		}
		for _, s := range ex.Symbols {
			if s.Symbol != symbol {
				continue
			}
			out = SymbolInfo{Symbol: symbol}
			for _, f := range s.Filters {
				switch f["filterType"] {
				case "LOT_SIZE":
					out.StepSize = mustDecimal(fmt.Sprintf("%v", f["stepSize"]))
				case "PRICE_FILTER":
					out.TickSize = mustDecimal(fmt.Sprintf("%v", f["tickSize"]))
				case "MIN_NOTIONAL":
					out.MinNotional = mustDecimal(fmt.Sprintf("%v", f["notional"]))
				}
			}
			return nil
		}
		return &ProtocolError{Op: "SymbolInfo", Message: "symbol not found: " + symbol}
	})
	if err != nil {
		return SymbolInfo{}, err
	}

	g.mu.Lock()
	g.symbolCache[symbol] = out
	g.mu.Unlock()
	return out, nil
}

func (g *BinanceGateway) RoundStep(info SymbolInfo, qty decimal.Decimal) decimal.Decimal {
	return roundToStep(qty, info.StepSize)
}

func (g *BinanceGateway) RoundTick(info SymbolInfo, price decimal.Decimal) decimal.Decimal {
	return roundToStep(price, info.TickSize)
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func mustFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
