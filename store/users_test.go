package store

import (
	"context"
	"testing"

	"github.com/lavraseats/lavraseats/models"
	"github.com/stretchr/testify/require"
)

func newUser(email, cpf string) *models.User {
	code := "123456"
	return &models.User{
		Name:             "Ana",
		Email:            email,
		CPF:              cpf,
		PasswordHash:     "hash",
		Role:             models.RoleUser,
		ConfirmationCode: &code,
	}
}

func TestCreateUserUniqueness(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)

	require.NoError(t, pg.CreateUser(ctx, newUser("ana@example.com", "11111111111")))

	require.ErrorIs(t, pg.CreateUser(ctx, newUser("ana@example.com", "22222222222")), ErrDuplicateUser)
	require.ErrorIs(t, pg.CreateUser(ctx, newUser("other@example.com", "11111111111")), ErrDuplicateUser)
}

func TestUserLookupsAndActivation(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)

	u := newUser("ana@example.com", "11111111111")
	require.NoError(t, pg.CreateUser(ctx, u))
	require.False(t, u.Active)

	byEmail, err := pg.UserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	byCPF, err := pg.UserByCPF(ctx, "11111111111")
	require.NoError(t, err)
	require.Equal(t, u.ID, byCPF.ID)
	require.NotNil(t, byCPF.ConfirmationCode)

	require.NoError(t, pg.ActivateUser(ctx, u.ID))

	byID, err := pg.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, byID.Active)
	require.Nil(t, byID.ConfirmationCode)

	_, err = pg.UserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, pg.ActivateUser(ctx, 999), ErrNotFound)
}

func TestEnsureManagerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pg := newTestStore(t)

	created, err := pg.EnsureManager(ctx, newUser("admin@example.com", "99999999999"))
	require.NoError(t, err)
	require.True(t, created)

	created, err = pg.EnsureManager(ctx, newUser("admin@example.com", "99999999999"))
	require.NoError(t, err)
	require.False(t, created)

	admin, err := pg.UserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.Equal(t, models.RoleManager, admin.Role)
	require.True(t, admin.Active)
}
