package grid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"nofx/attribution"
	"nofx/exchange"
	"nofx/logger"
	"nofx/store"
)

// Service owns every running grid instance, keyed by GridID, and persists
// them through the store. At most one ACTIVE grid may exist per
// (trader_id, symbol), enforced by CreateInstance.
type Service struct {
	st *store.Store

	mu    sync.RWMutex
	grids map[string]*Instance
}

// NewService builds a grid service backed by st.
func NewService(st *store.Store) *Service {
	return &Service{st: st, grids: make(map[string]*Instance)}
}

// Get returns the named grid instance, or nil if unknown.
func (s *Service) Get(gridID string) *Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grids[gridID]
}

// ActiveFor returns the ACTIVE grid for (traderID, symbol), if any.
func (s *Service) ActiveFor(traderID, symbol string) *Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.grids {
		if g.TraderID == traderID && g.Symbol == symbol && g.StatusOf() == StatusActive {
			return g
		}
	}
	return nil
}

// CreateInstance generates a new ladder and registers it, rejecting the
// request if an ACTIVE grid already exists for (traderID, symbol).
func (s *Service) CreateInstance(traderID, symbol string, cfg Config) (*Instance, error) {
	if s.ActiveFor(traderID, symbol) != nil {
		return nil, fmt.Errorf("grid: active grid already exists for %s/%s", traderID, symbol)
	}

	levels, err := GenerateLevels(cfg)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		GridID:    uuid.NewString(),
		GridShort: uuid.NewString()[:8],
		TraderID:  traderID,
		Symbol:    symbol,
		Config:    cfg,
		Levels:    levels,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.grids[inst.GridID] = inst
	s.mu.Unlock()

	if err := s.persist(inst); err != nil {
		return nil, fmt.Errorf("persist new grid: %w", err)
	}
	logger.Infof("grid: created %s for %s/%s (%s, %d levels)", inst.GridID, traderID, symbol, cfg.Distribution, cfg.LevelCount)
	return inst, nil
}

// All returns every known grid instance.
func (s *Service) All() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Instance, 0, len(s.grids))
	for _, g := range s.grids {
		out = append(out, g)
	}
	return out
}

// persist writes a grid's config-level row and its full ladder to the store.
func (s *Service) persist(inst *Instance) error {
	m := &store.GridInstanceModel{
		GridID:            inst.GridID,
		TraderID:          inst.TraderID,
		Symbol:            inst.Symbol,
		Distribution:      string(inst.Config.Distribution),
		LowerPriceUSD:     inst.Config.Lower.String(),
		UpperPriceUSD:     inst.Config.Upper.String(),
		LevelCount:        inst.Config.LevelCount,
		InvestmentUSD:     inst.Config.Investment.String(),
		Leverage:          inst.Config.Leverage,
		FeeRate:           inst.Config.FeeRate.String(),
		StopLossPct:       inst.Config.StopLossPct,
		StopLossUSD:       inst.Config.StopPrice().String(),
		Status:            string(inst.StatusOf()),
		TotalGrossProfitUSD: inst.GrossProfit.String(),
		TotalFeesUSD:      inst.Fees.String(),
		TotalNetProfitUSD: inst.NetProfit.String(),
		CycleCount:        inst.CyclesCompleted,
	}
	if err := s.st.SaveGridInstance(m); err != nil {
		return err
	}

	levels := inst.LevelsSnapshot()
	lms := make([]store.GridLevelModel, len(levels))
	for i, l := range levels {
		lms[i] = store.GridLevelModel{
			GridID:             inst.GridID,
			LevelIndex:         l.Index,
			PriceUSD:           l.Price.String(),
			Side:               string(l.Side),
			State:              string(l.State),
			OrderID:            l.OrderID,
			PositionID:         l.PositionID,
			FilledQuantityBase: l.FilledQty.String(),
		}
	}
	return s.st.SaveGridLevels(inst.GridID, lms)
}

// Persist flushes one instance's current state to the store, used after
// every fill ingestion and cycle completion.
func (s *Service) Persist(inst *Instance) error {
	return s.persist(inst)
}

// RecordEvent appends a grid event row, used by the executor (order_placed,
// stopped) and the scheduler's grid monitor (order_filled, cycle_completed,
// stop_loss) to log transitions.
func (s *Service) RecordEvent(gridID string, levelIndex int, eventType, detail string) error {
	return s.st.AppendGridEvent(&store.GridEventModel{
		GridID:     gridID,
		LevelIndex: levelIndex,
		EventType:  eventType,
		Detail:     detail,
	})
}

// Restore rebuilds runtime GridInstances on boot. It reads open orders from
// the gateway for every tracked symbol, groups client-order-ids matching the
// grid pattern by grid_short, and reconstructs an ACTIVE Instance per group
// from the persisted active grid with the same (trader_id, symbol), whose
// config and counters (cycles/profit) it takes over. Orders whose id matches
// the grid pattern but have no such persisted GridInstance are logged as
// orphans and no Instance is built for them; unrecognized orders are left
// untouched. A persisted active grid with no open orders is not restored.
func (s *Service) Restore(ctx context.Context, gw exchange.Gateway, symbols []string) error {
	persisted, err := s.st.ListActiveGrids()
	if err != nil {
		return fmt.Errorf("list active grids: %w", err)
	}
	byShort := make(map[string]store.GridInstanceModel)
	byID := make(map[string]store.GridInstanceModel)
	for _, g := range persisted {
		byID[g.GridID] = g
	}

	// A persisted grid doesn't carry its short nonce directly; recover it
	// from the first matching order below. Without an open order there is
	// no nonce to recover, and the grid is left out of the restore.
	restored := make(map[string]*Instance)

	for _, symbol := range symbols {
		orders, err := gw.OpenOrders(ctx, symbol)
		if err != nil {
			return fmt.Errorf("list open orders for %s: %w", symbol, err)
		}

		for _, o := range orders {
			a := attribution.Parse(o.ClientOrderID)
			if a.Kind != attribution.KindGrid {
				continue
			}

			inst, ok := restored[a.GridShort]
			if !ok {
				gm, found := findByTraderSymbol(persisted, a.TraderID, a.Symbol)
				if !found {
					logger.Warnf("grid: orphan order %s (grid_short=%s) has no matching store row, skipping reconstruction", o.ClientOrderID, a.GridShort)
					continue
				}
				inst = instanceFromModel(gm, a.GridShort)
				restored[a.GridShort] = inst
				byShort[a.GridShort] = gm
			}

			side := SideBuy
			if a.Side == "SELL" {
				side = SideSell
			}
			l := inst.levelAt(a.LevelIndex, side)
			if l != nil {
				l.State = LevelPending
				l.OrderID = o.OrderID
			}
		}
	}

	s.mu.Lock()
	for _, inst := range restored {
		s.grids[inst.GridID] = inst
	}
	s.mu.Unlock()

	logger.Infof("grid: restored %d grid instances from open orders", len(restored))
	return nil
}

func findByTraderSymbol(models []store.GridInstanceModel, traderID, symbol string) (store.GridInstanceModel, bool) {
	for _, m := range models {
		if m.TraderID == traderID && m.Symbol == symbol {
			return m, true
		}
	}
	return store.GridInstanceModel{}, false
}

func instanceFromModel(m store.GridInstanceModel, gridShort string) *Instance {
	cfg := Config{
		Lower:        decimal.RequireFromString(m.LowerPriceUSD),
		Upper:        decimal.RequireFromString(m.UpperPriceUSD),
		LevelCount:   m.LevelCount,
		Distribution: Distribution(m.Distribution),
		Investment:   decimal.RequireFromString(m.InvestmentUSD),
		Leverage:     m.Leverage,
		FeeRate:      decimal.RequireFromString(m.FeeRate),
		StopLossPct:  m.StopLossPct,
	}
	levels, err := GenerateLevels(cfg)
	if err != nil {
		levels = nil
	}
	return &Instance{
		GridID:          m.GridID,
		GridShort:       gridShort,
		TraderID:        m.TraderID,
		Symbol:          m.Symbol,
		Config:          cfg,
		Levels:          levels,
		Status:          StatusActive,
		CyclesCompleted: m.CycleCount,
		GrossProfit:     decimal.RequireFromString(m.TotalGrossProfitUSD),
		Fees:            decimal.RequireFromString(m.TotalFeesUSD),
		NetProfit:       decimal.RequireFromString(m.TotalNetProfitUSD),
		CreatedAt:       time.Now(),
	}
}
