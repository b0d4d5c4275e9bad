// Package grid implements the per-symbol-per-trader grid engine: ladder
// generation, fill ingestion with cycle detection, stop-loss checks, and
// restart recovery. Each Instance is a small state machine over a
// pre-generated ladder, grounded on the teacher's GridState shape (a
// sync.RWMutex-guarded struct mutated in place by the owning component).
package grid

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Distribution is the ladder's price-spacing rule.
type Distribution string

const (
	DistributionArithmetic Distribution = "arithmetic"
	DistributionGeometric  Distribution = "geometric"
)

// Side is a grid level's order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// LevelState is a grid level's lifecycle state.
type LevelState string

const (
	LevelEmpty   LevelState = "EMPTY"
	LevelPending LevelState = "PENDING"
	LevelFilled  LevelState = "FILLED"
)

// Status is a GridInstance's lifecycle state.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusPaused  Status = "PAUSED"
	StatusStopped Status = "STOPPED"
)

// Level is a single ladder rung.
type Level struct {
	Index        int
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Side         Side
	State        LevelState
	OrderID      string
	PositionID   string
	FilledQty    decimal.Decimal // accumulates across partial fills
	FilledPrice  decimal.Decimal
	FilledAt     time.Time
}

// Config is the immutable configuration a grid is created with. It is
// persisted verbatim at creation time so restart recovery does not need to
// fabricate plausible values — resolving the spec's open question on
// restart fidelity.
type Config struct {
	Lower        decimal.Decimal
	Upper        decimal.Decimal
	LevelCount   int
	Distribution Distribution
	Investment   decimal.Decimal
	Leverage     int
	StopLossPct  float64
	FeeRate      decimal.Decimal
}

// Instance is one running grid. All mutation is serialized by mu, matching
// the per-entity lock discipline the account package also follows.
type Instance struct {
	mu sync.RWMutex

	GridID    string
	GridShort string // 8-hex nonce embedded in client-order-ids
	TraderID  string
	Symbol    string
	Config    Config
	Levels    []Level
	Status    Status

	CyclesCompleted int
	GrossProfit     decimal.Decimal
	Fees            decimal.Decimal
	NetProfit       decimal.Decimal

	CreatedAt  time.Time
	LastUpdate time.Time
}

// GenerateLevels computes the ladder prices for cfg. Buy levels are indices
// [0, N-2]; sell levels are indices [1, N-1]; index 0 is buy-only, index
// N-1 is sell-only, interior indices serve as a sibling for both sides of a
// cycle by being reachable from above and below.
func GenerateLevels(cfg Config) ([]Level, error) {
	n := cfg.LevelCount
	if n < 2 {
		return nil, fmt.Errorf("grid: level count must be >= 2, got %d", n)
	}
	if !cfg.Upper.GreaterThan(cfg.Lower) {
		return nil, fmt.Errorf("grid: upper must be > lower")
	}

	prices := make([]decimal.Decimal, n)
	switch cfg.Distribution {
	case DistributionGeometric:
		lowerF, _ := cfg.Lower.Float64()
		upperF, _ := cfg.Upper.Float64()
		ratio := math.Pow(upperF/lowerF, 1.0/float64(n-1))
		for i := 0; i < n; i++ {
			prices[i] = decimal.NewFromFloat(lowerF * math.Pow(ratio, float64(i)))
		}
		prices[n-1] = cfg.Upper
	default: // arithmetic
		step := cfg.Upper.Sub(cfg.Lower).Div(decimal.NewFromInt(int64(n - 1)))
		for i := 0; i < n; i++ {
			prices[i] = cfg.Lower.Add(step.Mul(decimal.NewFromInt(int64(i))))
		}
	}

	notionalPerLevel := cfg.Investment.Mul(decimal.NewFromInt(int64(cfg.Leverage))).Div(decimal.NewFromInt(int64(n)))

	levels := make([]Level, 0, n*2-2)
	for i := 0; i < n; i++ {
		qty := notionalPerLevel.Div(prices[i])
		if i <= n-2 {
			levels = append(levels, Level{Index: i, Price: prices[i], Quantity: qty, Side: SideBuy, State: LevelEmpty})
		}
		if i >= 1 {
			levels = append(levels, Level{Index: i, Price: prices[i], Quantity: qty, Side: SideSell, State: LevelEmpty})
		}
	}
	return levels, nil
}

// levelAt returns a pointer into i.Levels matching (index, side), or nil.
func (i *Instance) levelAt(index int, side Side) *Level {
	for idx := range i.Levels {
		if i.Levels[idx].Index == index && i.Levels[idx].Side == side {
			return &i.Levels[idx]
		}
	}
	return nil
}

// MarkOrderPlaced records the exchange order id for a level, transitioning
// it EMPTY -> PENDING.
func (i *Instance) MarkOrderPlaced(index int, side Side, orderID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	l := i.levelAt(index, side)
	if l == nil {
		return
	}
	l.OrderID = orderID
	l.State = LevelPending
	i.LastUpdate = time.Now()
}

// CycleResult describes one completed buy/sell match.
type CycleResult struct {
	BuyIndex  int
	SellIndex int
	Gross     decimal.Decimal
	Fees      decimal.Decimal
	Net       decimal.Decimal
}

// IngestFill records a fill against a level by (index, side), accumulating
// partial fills until the level's full quantity is reached — per the
// spec's recommended partial-fill semantics — then runs cycle detection.
// Returns the completed cycle, if the fill completed one.
func (i *Instance) IngestFill(index int, side Side, fillQty, fillPrice decimal.Decimal) (*CycleResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	l := i.levelAt(index, side)
	if l == nil {
		return nil, fmt.Errorf("grid %s: no level at index %d side %s", i.GridID, index, side)
	}

	l.FilledQty = l.FilledQty.Add(fillQty)
	l.FilledPrice = fillPrice
	l.FilledAt = time.Now()

	if l.FilledQty.LessThan(l.Quantity) {
		l.State = LevelPending // partial fill, level stays PENDING
		return nil, nil
	}
	l.State = LevelFilled
	i.LastUpdate = time.Now()

	return i.detectCycleLocked(), nil
}

// detectCycleLocked finds the smallest FILLED sell strictly above a FILLED
// buy and, if found, re-arms both levels and updates profit counters.
// Caller must hold i.mu.
func (i *Instance) detectCycleLocked() *CycleResult {
	for b := range i.Levels {
		buy := &i.Levels[b]
		if buy.Side != SideBuy || buy.State != LevelFilled {
			continue
		}

		var bestSell *Level
		for s := range i.Levels {
			sell := &i.Levels[s]
			if sell.Side != SideSell || sell.State != LevelFilled {
				continue
			}
			if !sell.FilledPrice.GreaterThan(buy.FilledPrice) {
				continue
			}
			if bestSell == nil || sell.FilledPrice.LessThan(bestSell.FilledPrice) {
				bestSell = sell
			}
		}
		if bestSell == nil {
			continue
		}

		qty := buy.Quantity
		gross := bestSell.FilledPrice.Sub(buy.FilledPrice).Mul(qty)
		fees := buy.FilledPrice.Add(bestSell.FilledPrice).Mul(qty).Mul(i.Config.FeeRate)
		net := gross.Sub(fees)

		i.CyclesCompleted++
		i.GrossProfit = i.GrossProfit.Add(gross)
		i.Fees = i.Fees.Add(fees)
		i.NetProfit = i.NetProfit.Add(net)

		buy.State = LevelEmpty
		buy.FilledQty = decimal.Zero
		buy.OrderID = ""
		bestSell.State = LevelEmpty
		bestSell.FilledQty = decimal.Zero
		bestSell.OrderID = ""

		return &CycleResult{BuyIndex: buy.Index, SellIndex: bestSell.Index, Gross: gross, Fees: fees, Net: net}
	}
	return nil
}

// StopPrice returns lower * (1 - stop_loss_pct/100).
func (c Config) StopPrice() decimal.Decimal {
	factor := decimal.NewFromFloat(1 - c.StopLossPct/100)
	return c.Lower.Mul(factor)
}

// CheckStopLoss transitions the instance ACTIVE -> STOPPED if currentPrice
// has crossed the configured stop price. Returns true if the transition
// occurred on this call.
func (i *Instance) CheckStopLoss(currentPrice decimal.Decimal) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.Status != StatusActive {
		return false
	}
	if currentPrice.GreaterThan(i.Config.StopPrice()) {
		return false
	}
	i.Status = StatusStopped
	i.LastUpdate = time.Now()
	return true
}

// Pause transitions ACTIVE -> PAUSED.
func (i *Instance) Pause() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Status != StatusActive {
		return fmt.Errorf("grid %s: cannot pause from status %s", i.GridID, i.Status)
	}
	i.Status = StatusPaused
	return nil
}

// Resume transitions PAUSED -> ACTIVE.
func (i *Instance) Resume() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Status != StatusPaused {
		return fmt.Errorf("grid %s: cannot resume from status %s", i.GridID, i.Status)
	}
	i.Status = StatusActive
	return nil
}

// Stop transitions any non-terminal status to STOPPED.
func (i *Instance) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Status = StatusStopped
}

// PendingLevels returns every level not yet PENDING or FILLED, i.e. awaiting
// order placement.
func (i *Instance) PendingLevels() []Level {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []Level
	for _, l := range i.Levels {
		if l.State == LevelEmpty {
			out = append(out, l)
		}
	}
	return out
}

// PendingOrderLevels returns every level with a live order resting on the
// book (PENDING), for the grid monitor to poll for fills.
func (i *Instance) PendingOrderLevels() []Level {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []Level
	for _, l := range i.Levels {
		if l.State == LevelPending {
			out = append(out, l)
		}
	}
	return out
}

// LevelsSnapshot returns a copy of every level, for persistence.
func (i *Instance) LevelsSnapshot() []Level {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Level, len(i.Levels))
	copy(out, i.Levels)
	return out
}

// StatusOf returns the instance's current status.
func (i *Instance) StatusOf() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.Status
}
