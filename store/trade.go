package store

import (
	"fmt"
	"time"
)

// TradeModel persists one trade, written by account.Service.SyncAll from a
// closed position's account.Trade. Business key is TradeID. That writer
// leaves ClientOrderID, ExchangeOrderID and FeeUSD empty: an account.Trade
// carries no order ids or fees.
type TradeModel struct {
	TradeID       string    `json:"trade_id" gorm:"primaryKey"`
	TraderID      string    `json:"trader_id" gorm:"index"`
	PositionID    string    `json:"position_id" gorm:"index"`
	ClientOrderID string    `json:"client_order_id" gorm:"index"`
	ExchangeOrderID string  `json:"exchange_order_id" gorm:"index"`
	Symbol        string    `json:"symbol" gorm:"index"`
	Side          string    `json:"side"`
	QuantityBase  string    `json:"quantity_base"`
	PriceUSD      string    `json:"price_usd"`
	FeeUSD        string    `json:"fee_usd"`
	RealizedPnLUSD string   `json:"realized_pnl_usd" gorm:"default:'0'"`
	FilledAt      time.Time `json:"filled_at"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (TradeModel) TableName() string { return "trades" }

// SaveTrade upserts a trade by TradeID. account.Service.SyncAll re-saves
// every trade an account holds on each flush, so a repeat save overwrites
// the same row instead of adding one.
func (s *Store) SaveTrade(m *TradeModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Save(m).Error
}

// ListTradesByClientOrderID returns every trade row recorded under
// clientOrderID.
func (s *Store) ListTradesByClientOrderID(clientOrderID string) ([]TradeModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []TradeModel
	err := s.db.Where("client_order_id = ?", clientOrderID).Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("list trades for %s: %w", clientOrderID, err)
	}
	return ms, nil
}

// ListTradesByPosition returns every trade belonging to a position, ordered
// by fill time. Restart does not call it; account.Service.Bootstrap takes
// realized PnL from the stored account row.
func (s *Store) ListTradesByPosition(positionID string) ([]TradeModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []TradeModel
	err := s.db.Where("position_id = ?", positionID).Order("filled_at asc").Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("list trades for position %s: %w", positionID, err)
	}
	return ms, nil
}

// ListRecentTradesByTrader returns a trader's most recent fills, newest
// first, bounded by limit — used to seed decision-provider context bundles
// with recent trade history.
func (s *Store) ListRecentTradesByTrader(traderID string, limit int) ([]TradeModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []TradeModel
	err := s.db.Where("trader_id = ?", traderID).Order("filled_at desc").Limit(limit).Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("list recent trades for %s: %w", traderID, err)
	}
	return ms, nil
}
