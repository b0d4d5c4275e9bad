package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GridInstanceModel is the persisted shape of a running grid. GridConfig is
// stored as a flat snapshot at creation time (rather than referenced) so a
// restart can reconstruct the exact ladder without recomputing bounds from
// live market data, resolving the restart-fidelity open question in favor of
// persisting config at creation.
type GridInstanceModel struct {
	GridID          string    `json:"grid_id" gorm:"primaryKey"`
	TraderID        string    `json:"trader_id" gorm:"index"`
	Symbol          string    `json:"symbol" gorm:"index"`
	Distribution    string    `json:"distribution"` // "arithmetic" or "geometric"
	LowerPriceUSD   string    `json:"lower_price_usd"`
	UpperPriceUSD   string    `json:"upper_price_usd"`
	LevelCount      int       `json:"level_count"`
	InvestmentUSD   string    `json:"investment_usd"`
	Leverage        int       `json:"leverage"`
	FeeRate         string    `json:"fee_rate" gorm:"default:'0'"`
	StopLossPct     float64   `json:"stop_loss_pct"`
	StopLossUSD     string    `json:"stop_loss_usd"`
	Status          string    `json:"status" gorm:"index"` // "ACTIVE", "STOPPED"
	TotalGrossProfitUSD string `json:"total_gross_profit_usd" gorm:"default:'0'"`
	TotalFeesUSD    string    `json:"total_fees_usd" gorm:"default:'0'"`
	TotalNetProfitUSD string  `json:"total_net_profit_usd" gorm:"default:'0'"`
	CycleCount      int       `json:"cycle_count"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (GridInstanceModel) TableName() string { return "grid_instances" }

// GridLevelModel is one ladder rung. Business key is (GridID, LevelIndex,
// Side): an interior index carries both a BUY and a SELL level.
type GridLevelModel struct {
	GridID       string    `json:"grid_id" gorm:"primaryKey"`
	LevelIndex   int       `json:"level_index" gorm:"primaryKey"`
	PriceUSD     string    `json:"price_usd"`
	Side         string    `json:"side" gorm:"primaryKey"` // "BUY" or "SELL"
	State        string    `json:"state" gorm:"index"` // "EMPTY","PENDING","FILLED"
	OrderID      string    `json:"order_id"`
	PositionID   string    `json:"position_id"`
	FilledQuantityBase string `json:"filled_quantity_base" gorm:"default:'0'"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (GridLevelModel) TableName() string { return "grid_levels" }

// GridEventModel is an append-only audit log of grid state transitions,
// written by the executor and the scheduler's grid monitor; nothing in the
// control plane reads it back apart from LoadRecentGridEvents.
type GridEventModel struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	GridID     string    `json:"grid_id" gorm:"index"`
	LevelIndex int       `json:"level_index"`
	EventType  string    `json:"event_type"` // "order_placed","order_filled","cycle_completed","stop_loss","stopped"
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

func (GridEventModel) TableName() string { return "grid_events" }

// SaveGridInstance upserts a grid instance by GridID.
func (s *Store) SaveGridInstance(m *GridInstanceModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Save(m).Error
}

// LoadGridInstance loads a grid instance by GridID.
func (s *Store) LoadGridInstance(gridID string) (*GridInstanceModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m GridInstanceModel
	err := s.db.Where("grid_id = ?", gridID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load grid %s: %w", gridID, err)
	}
	return &m, nil
}

// ListActiveGrids returns every ACTIVE grid, used to rebuild runtime grid
// engines on restart.
func (s *Store) ListActiveGrids() ([]GridInstanceModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []GridInstanceModel
	if err := s.db.Where("status = ?", "ACTIVE").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list active grids: %w", err)
	}
	return ms, nil
}

// SaveGridLevels replaces the full ladder for a grid inside one transaction,
// mirroring the all-or-nothing rewrite the teacher's GridStore uses for
// level persistence.
func (s *Store) SaveGridLevels(gridID string, levels []GridLevelModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := range levels {
			if err := tx.Save(&levels[i]).Error; err != nil {
				return fmt.Errorf("save level %d for grid %s: %w", levels[i].LevelIndex, gridID, err)
			}
		}
		return nil
	})
}

// LoadGridLevels returns the ladder for a grid, ordered by LevelIndex.
func (s *Store) LoadGridLevels(gridID string) ([]GridLevelModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []GridLevelModel
	err := s.db.Where("grid_id = ?", gridID).Order("level_index asc").Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("load levels for grid %s: %w", gridID, err)
	}
	return ms, nil
}

// AppendGridEvent records a level-state transition.
func (s *Store) AppendGridEvent(m *GridEventModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Create(m).Error
}

// LoadRecentGridEvents returns the most recent events for a grid, newest
// first, bounded by limit.
func (s *Store) LoadRecentGridEvents(gridID string, limit int) ([]GridEventModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []GridEventModel
	err := s.db.Where("grid_id = ?", gridID).Order("created_at desc").Limit(limit).Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("load events for grid %s: %w", gridID, err)
	}
	return ms, nil
}
