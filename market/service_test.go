package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"nofx/exchange"
)

func TestSnapshotCachesWithinTTL(t *testing.T) {
	fake := exchange.NewFake()
	fake.SetPrice("BTCUSDT", decimal.NewFromInt(100))

	svc := NewService(fake, time.Minute)

	first, err := svc.Snapshot(t.Context(), "BTCUSDT", "5m")
	require.NoError(t, err)
	require.Equal(t, 100.0, first.Price)

	fake.SetPrice("BTCUSDT", decimal.NewFromInt(200))
	second, err := svc.Snapshot(t.Context(), "BTCUSDT", "5m")
	require.NoError(t, err)
	require.Equal(t, first.CapturedAt, second.CapturedAt)
	require.Equal(t, 100.0, second.Price)
}

func TestSnapshotRefetchesAfterInvalidate(t *testing.T) {
	fake := exchange.NewFake()
	fake.SetPrice("BTCUSDT", decimal.NewFromInt(100))

	svc := NewService(fake, time.Minute)
	_, err := svc.Snapshot(t.Context(), "BTCUSDT", "5m")
	require.NoError(t, err)

	fake.SetPrice("BTCUSDT", decimal.NewFromInt(200))
	svc.Invalidate("BTCUSDT")

	second, err := svc.Snapshot(t.Context(), "BTCUSDT", "5m")
	require.NoError(t, err)
	require.Equal(t, 200.0, second.Price)
}
