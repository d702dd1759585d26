package data

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fleetline/dispatch/internal/errors"
	"github.com/fleetline/dispatch/internal/testutil"
)

func TestVehicleRepoGetVehicle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewVehicleRepo(db)
	ctx := context.Background()

	id := uuid.NewString()
	name := testutil.UniqueID("truck")
	_, err := db.ExecContext(ctx, `
		INSERT INTO vehicles (id, name, vendor_id, on_duty) VALUES ($1, $2, 'acme', true)`,
		id, name)
	require.NoError(t, err)

	byID, err := repo.GetVehicle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, name, byID.Name)

	byName, err := repo.GetVehicle(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)

	_, err = repo.GetVehicle(ctx, uuid.NewString())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestVehicleRepoBindUnbind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewVehicleRepo(db)
	ctx := context.Background()

	id := uuid.NewString()
	actorID := uuid.NewString()
	_, err := db.ExecContext(ctx, `
		INSERT INTO vehicles (id, name, vendor_id, on_duty) VALUES ($1, $2, 'acme', true)`,
		id, testutil.UniqueID("truck"))
	require.NoError(t, err)

	require.NoError(t, repo.Bind(ctx, id, actorID))

	bound, err := repo.FindBoundTo(ctx, actorID)
	require.NoError(t, err)
	require.NotNil(t, bound)
	assert.Equal(t, id, bound.ID)
	assert.Equal(t, actorID, bound.BoundActorID())
	assert.False(t, bound.Available())

	require.NoError(t, repo.Unbind(ctx, id))
	bound, err = repo.FindBoundTo(ctx, actorID)
	require.NoError(t, err)
	assert.Nil(t, bound)

	assert.True(t, apperrors.IsNotFound(repo.Bind(ctx, uuid.NewString(), actorID)))
	assert.NoError(t, repo.Unbind(ctx, uuid.NewString()), "unbinding an unknown vehicle is a no-op")
}

func TestVehicleRepoFindAvailable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewVehicleRepo(db)
	ctx := context.Background()

	vendorID := testutil.UniqueID("vendor")
	freeID := uuid.NewString()
	busyID := uuid.NewString()
	offDutyID := uuid.NewString()
	actorID := uuid.NewString()
	_, err := db.ExecContext(ctx, `
		INSERT INTO vehicles (id, name, vendor_id, on_duty, bound_to) VALUES
		($1, 'zz-free',     $4, true,  NULL),
		($2, 'aa-busy',     $4, true,  $5),
		($3, 'bb-off-duty', $4, false, NULL)`,
		freeID, busyID, offDutyID, vendorID, actorID)
	require.NoError(t, err)

	v, err := repo.FindAvailable(ctx, vendorID)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, freeID, v.ID, "bound and off-duty vehicles are skipped")

	none, err := repo.FindAvailable(ctx, testutil.UniqueID("empty-vendor"))
	require.NoError(t, err)
	assert.Nil(t, none)
}
