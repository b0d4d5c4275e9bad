// Package attribution encodes and parses the client-order-id scheme that
// ties an anonymous exchange order back to the trader that placed it. The
// encoding is compatibility-critical: the reconciler and the grid engine's
// restart recovery both depend on it, and changing it is a breaking change
// (see the versioning note in the design notes).
package attribution

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the two client-order-id shapes.
type Kind int

const (
	// KindUnowned is returned when an id matches neither shape.
	KindUnowned Kind = iota
	KindNonGrid
	KindGrid
)

// Attribution is the parsed result of a client-order-id.
type Attribution struct {
	Kind       Kind
	TraderID   string
	Symbol     string
	GridShort  string
	Side       string // "BUY" or "SELL", grid only
	LevelIndex int     // grid only
}

// EncodeNonGrid builds the non-grid client-order-id:
// "{trader_id}_{symbol}_{unix_ms}".
func EncodeNonGrid(traderID, symbol string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", traderID, symbol, at.UnixMilli())
}

// EncodeGrid builds the grid client-order-id:
// "GRID_{trader_id}_{symbol}_{grid_short}_{BUY|SELL}_{level_index}".
func EncodeGrid(traderID, symbol, gridShort, side string, levelIndex int) string {
	return fmt.Sprintf("GRID_%s_%s_%s_%s_%d", traderID, symbol, gridShort, side, levelIndex)
}

// Parse attempts both shapes in turn, returning KindUnowned if neither
// matches. It never errors — a malformed id simply parses to unowned, per
// the spec's attribution property.
func Parse(clientOrderID string) Attribution {
	if a, ok := parseGrid(clientOrderID); ok {
		return a
	}
	if a, ok := parseNonGrid(clientOrderID); ok {
		return a
	}
	return Attribution{Kind: KindUnowned}
}

func parseGrid(id string) (Attribution, bool) {
	if !strings.HasPrefix(id, "GRID_") {
		return Attribution{}, false
	}
	parts := strings.Split(id, "_")
	// GRID _ trader_id _ symbol _ grid_short _ side _ level_index => 6 parts minimum
	if len(parts) < 6 {
		return Attribution{}, false
	}

	side := parts[len(parts)-2]
	if side != "BUY" && side != "SELL" {
		return Attribution{}, false
	}
	levelIndex, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return Attribution{}, false
	}
	gridShort := parts[len(parts)-3]
	symbol := parts[len(parts)-4]

	// trader_id is everything between "GRID" and symbol; trader ids may
	// themselves contain underscores (e.g. "LLM_A"), so join the remainder.
	traderParts := parts[1 : len(parts)-4]
	if len(traderParts) == 0 {
		return Attribution{}, false
	}
	traderID := strings.Join(traderParts, "_")

	return Attribution{
		Kind:       KindGrid,
		TraderID:   traderID,
		Symbol:     symbol,
		GridShort:  gridShort,
		Side:       side,
		LevelIndex: levelIndex,
	}, true
}

func parseNonGrid(id string) (Attribution, bool) {
	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		return Attribution{}, false
	}

	tsStr := parts[len(parts)-1]
	if _, err := strconv.ParseInt(tsStr, 10, 64); err != nil {
		return Attribution{}, false
	}

	symbol := parts[len(parts)-2]
	traderParts := parts[:len(parts)-2]
	if len(traderParts) == 0 {
		return Attribution{}, false
	}
	traderID := strings.Join(traderParts, "_")

	return Attribution{Kind: KindNonGrid, TraderID: traderID, Symbol: symbol}, true
}
