package redisclient

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient("localhost:6379", "", 1)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestHoldUnitsUnseededMirror(t *testing.T) {
	t.Skip("Integration test - requires redis")

	client := testClient(t)
	ctx := context.Background()
	allocationID := uuid.New().String()

	// A missing hash must not read as zero supply; the caller needs to know
	// the mirror is gone so it can reseed from the database.
	_, err := client.HoldUnits(ctx, allocationID, 1)
	assert.ErrorIs(t, err, ErrAvailabilityNotSeeded)

	require.NoError(t, client.InitAvailability(ctx, allocationID, 5, 0))

	held, err := client.HoldUnits(ctx, allocationID, 3)
	require.NoError(t, err)
	assert.True(t, held)

	// 2 remaining minus 3 held: the next hold of 3 does not fit.
	held, err = client.HoldUnits(ctx, allocationID, 3)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestHoldReleaseConsumeRoundTrip(t *testing.T) {
	t.Skip("Integration test - requires redis")

	client := testClient(t)
	ctx := context.Background()
	allocationID := uuid.New().String()

	require.NoError(t, client.InitAvailability(ctx, allocationID, 10, 0))

	held, err := client.HoldUnits(ctx, allocationID, 4)
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, client.ReleaseUnits(ctx, allocationID, 2))
	require.NoError(t, client.ConsumeUnits(ctx, allocationID, 2))

	remaining, heldCount, err := client.GetAvailability(ctx, allocationID)
	require.NoError(t, err)
	assert.Equal(t, 8, remaining)
	assert.Equal(t, 0, heldCount)
}
