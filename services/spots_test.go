package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vparking/models"
	"vparking/services"
)

func TestIsAvailable(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice")
	lot := env.createLot(t, "Lot1", 2, 10)

	res, err := env.ledger.Reserve(ctx, user.ID, lot.ID, "KA01", "")
	require.NoError(t, err)

	available, err := env.spots.IsAvailable(ctx, res.SpotID)
	require.NoError(t, err)
	assert.False(t, available)

	available, err = env.spots.IsAvailable(ctx, env.spotByLabel(t, lot.ID, "S2").ID)
	require.NoError(t, err)
	assert.True(t, available)

	_, err = env.spots.IsAvailable(ctx, 999)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestGetSpotDetail(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice")
	lot := env.createLot(t, "Lot1", 2, 10)

	res, err := env.ledger.Reserve(ctx, user.ID, lot.ID, "KA01", "")
	require.NoError(t, err)

	detail, err := env.spots.GetSpotDetail(ctx, res.SpotID)
	require.NoError(t, err)
	assert.Equal(t, models.SpotOccupied, detail.Status)
	assert.Equal(t, "Lot1", detail.LotName)
	require.NotNil(t, detail.ReservationID)
	assert.Equal(t, res.ReservationID, *detail.ReservationID)
	require.NotNil(t, detail.UserEmail)
	assert.Equal(t, "alice@example.com", *detail.UserEmail)
	assert.Equal(t, "KA01", *detail.VehicleNumber)
	assert.GreaterOrEqual(t, detail.CostTillNow, 0.0)

	free, err := env.spots.GetSpotDetail(ctx, env.spotByLabel(t, lot.ID, "S2").ID)
	require.NoError(t, err)
	assert.Equal(t, models.SpotAvailable, free.Status)
	assert.Nil(t, free.ReservationID)

	_, err = env.spots.GetSpotDetail(ctx, 999)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestListSpotsForLotInvalidatedByReserve(t *testing.T) {
	env := newCachedEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice")
	lot := env.createLot(t, "Lot1", 2, 10)

	listing, err := env.spots.ListSpotsForLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Len(t, listing.Spots, 2)
	assert.Equal(t, models.SpotAvailable, listing.Spots[0].Status)

	_, err = env.ledger.Reserve(ctx, user.ID, lot.ID, "KA01", "")
	require.NoError(t, err)

	listing, err = env.spots.ListSpotsForLot(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SpotOccupied, listing.Spots[0].Status)
	assert.Equal(t, "S1", listing.Spots[0].SpotNumber)

	_, err = env.spots.ListSpotsForLot(ctx, 999)
	assert.ErrorIs(t, err, services.ErrNotFound)
}
