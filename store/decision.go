package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DecisionRecordModel persists one decision-provider call, win or parse
// failure alike. RawResponse is kept for audit even on ResponseParseError;
// the control plane never inspects it beyond storing it.
type DecisionRecordModel struct {
	DecisionID    string    `json:"decision_id" gorm:"primaryKey"`
	TraderID      string    `json:"trader_id" gorm:"index"`
	Symbol        string    `json:"symbol" gorm:"index"`
	RequestedAt   time.Time `json:"requested_at"`
	Action        string    `json:"action"`
	RawResponse   string    `json:"raw_response"`
	ParseError    string    `json:"parse_error"`
	TokensUsed    int       `json:"tokens_used"`
	CostUSD       string    `json:"cost_usd"`
	LatencyMs     int64     `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (DecisionRecordModel) TableName() string { return "decision_records" }

// SaveDecisionRecord inserts one decision record.
func (s *Store) SaveDecisionRecord(m *DecisionRecordModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Create(m).Error
}

// LoadDecisionRecord loads a decision record by DecisionID.
func (s *Store) LoadDecisionRecord(decisionID string) (*DecisionRecordModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m DecisionRecordModel
	err := s.db.Where("decision_id = ?", decisionID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load decision %s: %w", decisionID, err)
	}
	return &m, nil
}

// ListRecentDecisions returns the most recent decision records for a trader,
// newest first, bounded by limit.
func (s *Store) ListRecentDecisions(traderID string, limit int) ([]DecisionRecordModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []DecisionRecordModel
	err := s.db.Where("trader_id = ?", traderID).Order("created_at desc").Limit(limit).Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("list decisions for %s: %w", traderID, err)
	}
	return ms, nil
}
