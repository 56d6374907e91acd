package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventLedger(t *testing.T) {
	ledger := NewMemoryEventLedger(time.Hour)
	defer ledger.Stop()
	ctx := context.Background()

	seen, err := ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, ledger.MarkProcessed(ctx, "evt_1"))

	seen, err = ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = ledger.Seen(ctx, "evt_2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryEventLedger_Expiry(t *testing.T) {
	ledger := NewMemoryEventLedger(time.Millisecond)
	defer ledger.Stop()
	ctx := context.Background()

	require.NoError(t, ledger.MarkProcessed(ctx, "evt_1"))
	time.Sleep(5 * time.Millisecond)

	seen, err := ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	ledger.cleanup()
	assert.Empty(t, ledger.processed)
}

func TestMemoryEventLedger_StopTwice(t *testing.T) {
	ledger := NewMemoryEventLedger(time.Hour)
	ledger.Stop()
	assert.NotPanics(t, ledger.Stop)
}
