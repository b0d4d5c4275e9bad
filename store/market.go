package store

import (
	"fmt"
	"time"
)

// MarketSnapshotModel persists one market-data sample for audit/backtest
// feed purposes. Business key is (Symbol, CapturedAt); the live control
// plane reads current prices from the in-memory TTL cache in package
// market, not from here.
type MarketSnapshotModel struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Symbol     string    `json:"symbol" gorm:"index"`
	PriceUSD   string    `json:"price_usd"`
	Volume24h  string    `json:"volume_24h"`
	CapturedAt time.Time `json:"captured_at" gorm:"index"`
}

func (MarketSnapshotModel) TableName() string { return "market_snapshots" }

// SaveMarketSnapshot inserts one sample.
func (s *Store) SaveMarketSnapshot(m *MarketSnapshotModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Create(m).Error
}

// LoadRecentMarketSnapshots returns the most recent samples for a symbol,
// newest first, bounded by limit.
func (s *Store) LoadRecentMarketSnapshots(symbol string, limit int) ([]MarketSnapshotModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []MarketSnapshotModel
	err := s.db.Where("symbol = ?", symbol).Order("captured_at desc").Limit(limit).Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("load snapshots for %s: %w", symbol, err)
	}
	return ms, nil
}
