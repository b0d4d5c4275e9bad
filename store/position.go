package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PositionModel persists one open (or recently closed) position. Business
// key is PositionID, a UUID minted at open time; it never changes identity
// across partial closes.
type PositionModel struct {
	PositionID       string    `json:"position_id" gorm:"primaryKey"`
	TraderID         string    `json:"trader_id" gorm:"index"`
	Symbol           string    `json:"symbol" gorm:"index"`
	Side             string    `json:"side"` // "LONG" or "SHORT"
	QuantityBase     string    `json:"quantity_base"`
	EntryPriceUSD    string    `json:"entry_price_usd"`
	Leverage         int       `json:"leverage"`
	StopLossUSD      string    `json:"stop_loss_usd"`
	TakeProfitUSD    string    `json:"take_profit_usd"`
	UnrealizedPnLUSD string    `json:"unrealized_pnl_usd" gorm:"default:'0'"`
	GridID           string    `json:"grid_id" gorm:"index"` // empty for non-grid positions
	OpenedAt         time.Time `json:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at"`
	Status           string    `json:"status" gorm:"index"` // "OPEN", "CLOSED" or "LIQUIDATED"
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PositionModel) TableName() string { return "positions" }

// SavePosition upserts a position by PositionID.
func (s *Store) SavePosition(m *PositionModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Save(m).Error
}

// LoadPosition loads one position by ID.
func (s *Store) LoadPosition(positionID string) (*PositionModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m PositionModel
	err := s.db.Where("position_id = ?", positionID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load position %s: %w", positionID, err)
	}
	return &m, nil
}

// ListOpenPositions returns every OPEN position for a trader, used by
// account.Service.Bootstrap to restore open positions on restart.
func (s *Store) ListOpenPositions(traderID string) ([]PositionModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []PositionModel
	err := s.db.Where("trader_id = ? AND status = ?", traderID, "OPEN").Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("list open positions for %s: %w", traderID, err)
	}
	return ms, nil
}

// ListPositionsByGrid returns every position (open or closed) tagged with a
// grid ID. grid.Service.Restore does not call it; it rebuilds level
// occupancy from open orders.
func (s *Store) ListPositionsByGrid(gridID string) ([]PositionModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []PositionModel
	if err := s.db.Where("grid_id = ?", gridID).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list positions for grid %s: %w", gridID, err)
	}
	return ms, nil
}
