package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/codegrant/internal/crypto"
	"github.com/dgellow/codegrant/internal/scope"
)

func newSeededDirectory(t *testing.T) *Directory {
	t.Helper()
	hash, err := crypto.HashSecret("password2")
	require.NoError(t, err)

	d := NewDirectory()
	require.NoError(t, d.Seed([]Seed{
		{Username: "test1", Password: "password1", Email: "test1@example.com", EmailVerified: true},
		{Username: "test2", PasswordHash: string(hash), Email: "test2@example.com"},
	}))
	return d
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	d := newSeededDirectory(t)

	u, err := d.Authenticate(ctx, "test1", "password1")
	require.NoError(t, err)
	assert.Equal(t, "test1", u.Username)
	_, err = uuid.Parse(u.ID)
	assert.NoError(t, err, "user IDs are UUIDs")

	u2, err := d.Authenticate(ctx, "test2", "password2")
	require.NoError(t, err)
	assert.Equal(t, "test2@example.com", u2.Email)

	_, err = d.Authenticate(ctx, "test1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = d.Authenticate(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	d := newSeededDirectory(t)

	u, err := d.Authenticate(ctx, "test1", "password1")
	require.NoError(t, err)

	got, err := d.Lookup(ctx, u.ID)
	require.NoError(t, err)
	assert.Same(t, u, got)

	_, err = d.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	d := newSeededDirectory(t)

	u, err := d.Register(ctx, "test3", "password3", "test3@example.com")
	require.NoError(t, err)
	assert.False(t, u.EmailVerified)

	_, err = d.Authenticate(ctx, "test3", "password3")
	assert.NoError(t, err)

	_, err = d.Register(ctx, "test3", "x", "other@example.com")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = d.Register(ctx, "test4", "x", "TEST1@example.com")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = d.Register(ctx, " ", "x", "")
	assert.Error(t, err)

	_, err = d.Register(ctx, "test5", "x", "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestSeedRejectsDuplicates(t *testing.T) {
	d := NewDirectory()
	err := d.Seed([]Seed{
		{Username: "a", Password: "p"},
		{Username: "a", Password: "p"},
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestClaims(t *testing.T) {
	u := &User{ID: "id-1", Username: "test1", Email: "test1@example.com", EmailVerified: true}

	t.Run("profile only omits email", func(t *testing.T) {
		claims := u.Claims(scope.Of("profile"))
		assert.Equal(t, map[string]any{"sub": "id-1", "username": "test1"}, claims)
	})

	t.Run("email scope adds email claims", func(t *testing.T) {
		claims := u.Claims(scope.Of("profile", "email"))
		assert.Equal(t, "test1@example.com", claims["email"])
		assert.Equal(t, true, claims["email_verified"])
		assert.Equal(t, "id-1", claims["sub"])
	})

	t.Run("no email on file", func(t *testing.T) {
		bare := &User{ID: "id-2", Username: "test2"}
		assert.NotContains(t, bare.Claims(scope.Of("email")), "email")
	})
}
