// Package manager wires every component (C1–C11) together for one running
// process and owns the in-memory registry of enabled traders, so a trader
// can be added or removed without restarting the scheduler.
package manager

import (
	"fmt"
	"sync"

	"nofx/provider"
)

// TraderHandle is one trader's registration: its decision provider and
// whether the scheduler should currently drive it.
type TraderHandle struct {
	TraderID string
	Provider provider.Provider
	Enabled  bool
}

// TraderManager owns the trader_id -> TraderHandle registry. The scheduler
// consults it each cycle via Providers() to know which traders to drive.
type TraderManager struct {
	mu      sync.RWMutex
	traders map[string]*TraderHandle
}

// NewTraderManager builds an empty registry.
func NewTraderManager() *TraderManager {
	return &TraderManager{traders: make(map[string]*TraderHandle)}
}

// AddTrader registers or replaces a trader's provider, enabling it
// immediately.
func (tm *TraderManager) AddTrader(traderID string, p provider.Provider) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.traders[traderID] = &TraderHandle{TraderID: traderID, Provider: p, Enabled: true}
}

// RemoveTrader drops a trader from the registry. Removing an unknown or
// already-removed trader is a no-op, never an error or panic.
func (tm *TraderManager) RemoveTrader(traderID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.traders, traderID)
}

// GetTrader returns the named trader's handle, or an error if it is not
// currently registered.
func (tm *TraderManager) GetTrader(traderID string) (*TraderHandle, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	h, ok := tm.traders[traderID]
	if !ok {
		return nil, fmt.Errorf("manager: trader %s is not registered", traderID)
	}
	return h, nil
}

// SetEnabled toggles whether the scheduler drives traderID this cycle,
// without removing its registration (and its provider) entirely.
func (tm *TraderManager) SetEnabled(traderID string, enabled bool) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	h, ok := tm.traders[traderID]
	if !ok {
		return fmt.Errorf("manager: trader %s is not registered", traderID)
	}
	h.Enabled = enabled
	return nil
}

// Providers returns a snapshot of trader_id -> Provider for every currently
// enabled trader, the shape the scheduler consumes directly.
func (tm *TraderManager) Providers() map[string]provider.Provider {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	out := make(map[string]provider.Provider, len(tm.traders))
	for id, h := range tm.traders {
		if h != nil && h.Enabled && h.Provider != nil {
			out[id] = h.Provider
		}
	}
	return out
}
