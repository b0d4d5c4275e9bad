package account

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"nofx/logger"
	"nofx/store"
)

// Service owns the in-memory map trader_id -> TraderAccount. It is the only
// component that creates or removes top-level accounts; positions within an
// account are mutated by the executor and the reconciler through the
// account itself.
type Service struct {
	st *store.Store

	mu       sync.RWMutex
	accounts map[string]*TraderAccount
}

// NewService builds an account service backed by st.
func NewService(st *store.Store) *Service {
	return &Service{st: st, accounts: make(map[string]*TraderAccount)}
}

// Bootstrap creates a fresh TraderAccount for each trader ID not already
// known to the store, and restores the rest from persisted state. Called
// once at boot.
func (s *Service) Bootstrap(traderIDs []string, initialBalance decimal.Decimal, maxOpenPositions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range traderIDs {
		m, err := s.st.LoadAccount(id)
		if err != nil {
			acc := NewTraderAccount(id, initialBalance, maxOpenPositions)
			s.accounts[id] = acc
			if err := s.st.SaveAccount(accountModel(acc)); err != nil {
				return fmt.Errorf("persist new account %s: %w", id, err)
			}
			continue
		}

		acc := NewTraderAccount(id, decimal.RequireFromString(m.InitialBalanceUSD), maxOpenPositions)
		acc.Balance = decimal.RequireFromString(m.CashBalanceUSD)
		acc.RealizedPnL = decimal.RequireFromString(m.RealizedPnLUSD)
		s.accounts[id] = acc

		positions, err := s.st.ListOpenPositions(id)
		if err != nil {
			return fmt.Errorf("load open positions for %s: %w", id, err)
		}
		for _, pm := range positions {
			restorePosition(acc, pm)
		}
	}
	return nil
}

// Get returns the named trader's account, or nil if unknown.
func (s *Service) Get(traderID string) *TraderAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[traderID]
}

// All returns every known account, ordered by trader ID for deterministic
// iteration (matching the reconciler's stable-order lock acquisition).
func (s *Service) All() []*TraderAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*TraderAccount, len(ids))
	for i, id := range ids {
		out[i] = s.accounts[id]
	}
	return out
}

// UpdateUnrealizedAll recomputes unrealized PnL across every account given
// current prices.
func (s *Service) UpdateUnrealizedAll(prices map[string]decimal.Decimal) {
	for _, acc := range s.All() {
		acc.UpdateUnrealized(prices)
	}
}

// SyncAll flushes every account, its open positions and its trades to the
// store, and marks the stored row of each position closed since its last
// flush as CLOSED (or LIQUIDATED) so a restart does not restore it as open.
func (s *Service) SyncAll() error {
	for _, acc := range s.All() {
		if err := s.st.SaveAccount(accountModel(acc)); err != nil {
			return fmt.Errorf("sync account %s: %w", acc.TraderID, err)
		}
		for _, p := range acc.Positions() {
			if err := s.st.SavePosition(p.toModel()); err != nil {
				return fmt.Errorf("sync position %s: %w", p.PositionID, err)
			}
		}
		for _, t := range acc.Trades() {
			if err := s.st.SaveTrade(t.toModel()); err != nil {
				return fmt.Errorf("sync trade %s: %w", t.TradeID, err)
			}
			pm, err := s.st.LoadPosition(t.PositionID)
			if err != nil || pm.Status != string(StatusOpen) {
				continue // never flushed while open, or already marked closed
			}
			pm.Status = string(StatusClosed)
			if t.ExitReason == ExitLiquidation {
				pm.Status = string(StatusLiquidated)
			}
			closedAt := t.ClosedAt
			pm.ClosedAt = &closedAt
			if err := s.st.SavePosition(pm); err != nil {
				return fmt.Errorf("sync closed position %s: %w", t.PositionID, err)
			}
		}
	}
	return nil
}

// LeaderboardEntry is one row of the leaderboard, ranked by equity.
type LeaderboardEntry struct {
	Rank     int
	TraderID string
	Equity   decimal.Decimal
	RealizedPnL decimal.Decimal
}

// Leaderboard ranks every trader by equity, descending.
func (s *Service) Leaderboard() []LeaderboardEntry {
	accounts := s.All()
	entries := make([]LeaderboardEntry, len(accounts))
	for i, acc := range accounts {
		snap := acc.Summary()
		entries[i] = LeaderboardEntry{TraderID: snap.TraderID, Equity: snap.Equity, RealizedPnL: snap.RealizedPnL}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Equity.GreaterThan(entries[j].Equity)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Summary returns the point-in-time snapshot for one trader, or the zero
// value if unknown.
func (s *Service) Summary(traderID string) Snapshot {
	acc := s.Get(traderID)
	if acc == nil {
		return Snapshot{}
	}
	return acc.Summary()
}

func accountModel(acc *TraderAccount) *store.TraderAccountModel {
	snap := acc.Summary()
	return &store.TraderAccountModel{
		TraderID:          acc.TraderID,
		InitialBalanceUSD: acc.InitialBalance.String(),
		CashBalanceUSD:    snap.Balance.String(),
		RealizedPnLUSD:    snap.RealizedPnL.String(),
	}
}

func restorePosition(acc *TraderAccount, m store.PositionModel) {
	p := &Position{
		PositionID: m.PositionID,
		TraderID:   m.TraderID,
		Symbol:     m.Symbol,
		Side:       Side(m.Side),
		EntryPrice: decimal.RequireFromString(m.EntryPriceUSD),
		Quantity:   decimal.RequireFromString(m.QuantityBase),
		Leverage:   m.Leverage,
		MarginUsed: decimal.RequireFromString(m.EntryPriceUSD).Mul(decimal.RequireFromString(m.QuantityBase)).Div(decimal.NewFromInt(int64(leverageOrOne(m.Leverage)))),
		GridID:     m.GridID,
		OpenedAt:   m.OpenedAt,
		Status:     Status(m.Status),
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.positions[p.PositionID] = p
	acc.MarginLocked = acc.MarginLocked.Add(p.MarginUsed)

	logger.Infof("account: restored position %s (%s %s) for trader %s", p.PositionID, p.Side, p.Symbol, p.TraderID)
}

// leverageOrOne guards against a zero-leverage persisted row producing a
// divide-by-zero when recomputing margin_used on restore.
func leverageOrOne(leverage int) int {
	if leverage < 1 {
		return 1
	}
	return leverage
}
