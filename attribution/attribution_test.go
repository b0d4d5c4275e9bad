package attribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseNonGrid(t *testing.T) {
	a := Parse("LLM-A_ETHUSDT_1728394875123")
	require.Equal(t, KindNonGrid, a.Kind)
	require.Equal(t, "LLM-A", a.TraderID)
	require.Equal(t, "ETHUSDT", a.Symbol)
}

func TestParseGrid(t *testing.T) {
	a := Parse("GRID_LLM-B_BNBUSDT_a1b2c3d4_SELL_4")
	require.Equal(t, KindGrid, a.Kind)
	require.Equal(t, "LLM-B", a.TraderID)
	require.Equal(t, "BNBUSDT", a.Symbol)
	require.Equal(t, "a1b2c3d4", a.GridShort)
	require.Equal(t, "SELL", a.Side)
	require.Equal(t, 4, a.LevelIndex)
}

func TestParseUnowned(t *testing.T) {
	a := Parse("random-order-42")
	require.Equal(t, KindUnowned, a.Kind)
}

func TestRoundTripNonGrid(t *testing.T) {
	id := EncodeNonGrid("LLM-C", "SOLUSDT", time.UnixMilli(1700000000000))
	a := Parse(id)
	require.Equal(t, KindNonGrid, a.Kind)
	require.Equal(t, "LLM-C", a.TraderID)
	require.Equal(t, "SOLUSDT", a.Symbol)
}

func TestRoundTripGrid(t *testing.T) {
	id := EncodeGrid("LLM-A", "ETHUSDT", "deadbeef", "BUY", 2)
	a := Parse(id)
	require.Equal(t, KindGrid, a.Kind)
	require.Equal(t, "LLM-A", a.TraderID)
	require.Equal(t, "deadbeef", a.GridShort)
	require.Equal(t, "BUY", a.Side)
	require.Equal(t, 2, a.LevelIndex)
}
