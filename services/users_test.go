package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vparking/models"
	"vparking/services"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	user, err := env.users.Register(ctx, "alice", " Alice@Example.com ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NotEqual(t, "s3cret", user.Password)

	got, err := env.users.Authenticate(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = env.users.Authenticate(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = env.users.Authenticate(ctx, "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicatesAndMissingFields(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.users.Register(ctx, "alice", "alice@example.com", "pw")
	require.NoError(t, err)

	_, err = env.users.Register(ctx, "alice2", "ALICE@example.com", "pw")
	assert.ErrorIs(t, err, services.ErrConflict)

	_, err = env.users.Register(ctx, "", "bob@example.com", "pw")
	assert.ErrorIs(t, err, services.ErrValidation)

	exists, err := env.users.EmailExists(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInactiveUserCannotLogIn(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice")
	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", user.ID).Update("active", false).Error)

	_, err := env.users.Authenticate(ctx, "alice@example.com", "password")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	active, err := env.users.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := env.users.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	first, err := env.users.EnsureAdmin(ctx, "admin@parking.local", "admin1234")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, first.Role)

	second, err := env.users.EnsureAdmin(ctx, "other@parking.local", "x")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = env.users.Authenticate(ctx, "admin@parking.local", "admin1234")
	assert.NoError(t, err)
}

func TestGetUser(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice")

	got, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = env.users.GetByID(ctx, 999)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = env.users.GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, services.ErrNotFound)
}
