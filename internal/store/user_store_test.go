package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCreateNormalizesEmailAndDefaultsRole(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	store := NewUserStore(db)

	user, err := store.Create(testCtx(), CreateUserInput{
		Name:  "Marta Vogel",
		Email: "  Marta@Example.COM ",
	})
	require.NoError(t, err)
	assert.Equal(t, "marta@example.com", user.Email)
	assert.Equal(t, "member", user.Role)
}

func TestUserCreateRejectsDuplicateEmail(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	store := NewUserStore(db)

	_, err := store.Create(testCtx(), CreateUserInput{Name: "One", Email: "dup@example.com"})
	require.NoError(t, err)

	_, err = store.Create(testCtx(), CreateUserInput{Name: "Two", Email: "DUP@example.com"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestUserCreateRequiresNameAndEmail(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	store := NewUserStore(db)

	_, err := store.Create(testCtx(), CreateUserInput{Email: "no-name@example.com"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = store.Create(testCtx(), CreateUserInput{Name: "No Email"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestUserGetByID(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	store := NewUserStore(db)

	id := createTestUser(t, db, "lookup@example.com")

	user, err := store.GetByID(testCtx(), id)
	require.NoError(t, err)
	assert.Equal(t, "lookup@example.com", user.Email)

	_, err = store.GetByID(testCtx(), "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetByID(testCtx(), "not-a-uuid")
	require.ErrorIs(t, err, ErrValidation)
}
