package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TraderAccountModel persists the virtual sub-account ledger for one trader.
// Business key is TraderID; there is no back-pointer to positions or trades,
// they carry TraderID forward instead.
type TraderAccountModel struct {
	TraderID         string    `json:"trader_id" gorm:"primaryKey"`
	InitialBalanceUSD string   `json:"initial_balance_usd" gorm:"not null"`
	CashBalanceUSD   string    `json:"cash_balance_usd" gorm:"not null"`
	RealizedPnLUSD   string    `json:"realized_pnl_usd" gorm:"not null;default:'0'"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (TraderAccountModel) TableName() string { return "trader_accounts" }

// SaveAccount upserts a trader account by TraderID.
func (s *Store) SaveAccount(m *TraderAccountModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Save(m).Error
}

// LoadAccount loads a trader account by TraderID. Returns gorm.ErrRecordNotFound
// when absent so callers can distinguish "new trader" from a query failure.
func (s *Store) LoadAccount(traderID string) (*TraderAccountModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m TraderAccountModel
	err := s.db.Where("trader_id = ?", traderID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load account %s: %w", traderID, err)
	}
	return &m, nil
}

// ListAccounts returns every known trader account. Restart does not call
// it; account.Service.Bootstrap loads each configured trader with
// LoadAccount.
func (s *Store) ListAccounts() ([]TraderAccountModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []TraderAccountModel
	if err := s.db.Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return ms, nil
}
