package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"nofx/account"
	"nofx/provider"
)

func limitsFor(symbols ...string) Limits {
	allowed := make(map[string]bool)
	for _, s := range symbols {
		allowed[s] = true
	}
	return Limits{
		AllowedSymbols:     allowed,
		MinTradeUSD:        decimal.NewFromInt(10),
		MaxTradeUSD:        decimal.NewFromInt(1000),
		MaxOpenPositions:   5,
		MaxLeverage:        10,
		StopLossRangePct:   [2]float64{0, 50},
		TakeProfitRangePct: [2]float64{0, 50},
	}
}

func TestValidateAcceptsWithinBalance(t *testing.T) {
	m := NewManager(limitsFor("ETHUSDT"))
	acc := account.NewTraderAccount("LLM-A", decimal.NewFromInt(30), 5)
	prices := map[string]decimal.Decimal{"ETHUSDT": decimal.NewFromInt(2000)}

	d := &provider.Decision{
		Action: provider.ActionBuy,
		Symbol: "ETHUSDT",
		Open:   &provider.OpenParams{SizeUSD: 40, Leverage: 3},
	}

	rej := m.Validate(d, acc, prices)
	require.Nil(t, rej)
}

func TestValidateRejectsInsufficientBalance(t *testing.T) {
	m := NewManager(limitsFor("ETHUSDT"))
	acc := account.NewTraderAccount("LLM-A", decimal.NewFromInt(30), 5)
	prices := map[string]decimal.Decimal{"ETHUSDT": decimal.NewFromInt(2000)}

	d := &provider.Decision{
		Action: provider.ActionBuy,
		Symbol: "ETHUSDT",
		Open:   &provider.OpenParams{SizeUSD: 40, Leverage: 1},
	}

	rej := m.Validate(d, acc, prices)
	require.NotNil(t, rej)
	require.Equal(t, ReasonInsufficientBalance, rej.Reason)
}

func TestValidateRejectsSymbolNotAllowed(t *testing.T) {
	m := NewManager(limitsFor("ETHUSDT"))
	acc := account.NewTraderAccount("LLM-A", decimal.NewFromInt(1000), 5)
	prices := map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)}

	d := &provider.Decision{Action: provider.ActionBuy, Symbol: "BTCUSDT", Open: &provider.OpenParams{SizeUSD: 100, Leverage: 2}}

	rej := m.Validate(d, acc, prices)
	require.NotNil(t, rej)
	require.Equal(t, ReasonSymbolNotAllowed, rej.Reason)
}

func TestValidateRejectsCloseWithoutPosition(t *testing.T) {
	m := NewManager(limitsFor("ETHUSDT"))
	acc := account.NewTraderAccount("LLM-A", decimal.NewFromInt(1000), 5)
	prices := map[string]decimal.Decimal{"ETHUSDT": decimal.NewFromInt(2000)}

	d := &provider.Decision{Action: provider.ActionClose, Symbol: "ETHUSDT"}

	rej := m.Validate(d, acc, prices)
	require.NotNil(t, rej)
	require.Equal(t, ReasonNoMatchingPosition, rej.Reason)
}

func TestValidateHoldAlwaysAccepted(t *testing.T) {
	m := NewManager(limitsFor())
	acc := account.NewTraderAccount("LLM-A", decimal.NewFromInt(1000), 5)
	require.Nil(t, m.Validate(&provider.Decision{Action: provider.ActionHold}, acc, nil))
}
