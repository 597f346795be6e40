package session

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apperr"
	"github.com/mmeshcher/storefront-client/internal/repository"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("issuer-secret"))
	require.NoError(t, err)
	return token
}

func TestRestore_KeepsMarkerAcrossRestarts(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	first := NewProvider(store, "secret", zap.NewNop())
	require.NoError(t, first.Restore(ctx))
	marker := first.GuestMarker()
	require.NotEmpty(t, marker)

	second := NewProvider(store, "secret", zap.NewNop())
	require.NoError(t, second.Restore(ctx))
	assert.Equal(t, marker, second.GuestMarker())
}

func TestRestore_ReplacesTamperedMarker(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, markerKey, []byte("forged.deadbeef")))

	p := NewProvider(store, "secret", zap.NewNop())
	require.NoError(t, p.Restore(ctx))
	assert.NotEqual(t, "forged", p.GuestMarker())

	stored, err := store.Get(ctx, markerKey)
	require.NoError(t, err)
	marker, ok := p.signer.parse(string(stored))
	require.True(t, ok)
	assert.Equal(t, p.GuestMarker(), marker)
}

func TestRestore_DifferentSecretIssuesNewMarker(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	first := NewProvider(store, "secret-a", zap.NewNop())
	require.NoError(t, first.Restore(ctx))

	second := NewProvider(store, "secret-b", zap.NewNop())
	require.NoError(t, second.Restore(ctx))
	assert.NotEqual(t, first.GuestMarker(), second.GuestMarker())
}

func TestLogin_ReadsUserIDFromClaims(t *testing.T) {
	p := NewProvider(repository.NewMemoryStore(), "secret", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, p.Login(ctx, signedToken(t, jwt.MapClaims{"sub": "42"}), 0))

	assert.True(t, p.HasCredential())
	id, ok := p.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestLogin_ExplicitUserIDWins(t *testing.T) {
	p := NewProvider(repository.NewMemoryStore(), "secret", zap.NewNop())

	require.NoError(t, p.Login(context.Background(), signedToken(t, jwt.MapClaims{"user_id": 5}), 9))

	id, ok := p.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)
}

func TestLogin_OpaqueToken(t *testing.T) {
	p := NewProvider(repository.NewMemoryStore(), "secret", zap.NewNop())

	require.NoError(t, p.Login(context.Background(), "opaque-token", 0))

	token, ok := p.Credential()
	assert.True(t, ok)
	assert.Equal(t, "opaque-token", token)
	_, ok = p.CurrentUserID()
	assert.False(t, ok)
}

func TestLogin_RejectsEmptyToken(t *testing.T) {
	p := NewProvider(repository.NewMemoryStore(), "secret", zap.NewNop())

	err := p.Login(context.Background(), "  ", 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.False(t, p.HasCredential())
}

func TestCredentialSurvivesRestoreAndLogoutClearsIt(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	p := NewProvider(store, "secret", zap.NewNop())
	require.NoError(t, p.Restore(ctx))
	require.NoError(t, p.Login(ctx, "token", 7))

	restored := NewProvider(store, "secret", zap.NewNop())
	require.NoError(t, restored.Restore(ctx))
	assert.True(t, restored.HasCredential())

	require.NoError(t, restored.Logout(ctx))
	assert.False(t, restored.HasCredential())

	again := NewProvider(store, "secret", zap.NewNop())
	require.NoError(t, again.Restore(ctx))
	assert.False(t, again.HasCredential())
}

func TestListenersAreNotified(t *testing.T) {
	p := NewProvider(repository.NewMemoryStore(), "secret", zap.NewNop())
	ctx := context.Background()

	var states []bool
	p.Subscribe(func(context.Context) {
		states = append(states, p.HasCredential())
	})

	require.NoError(t, p.Login(ctx, "token", 1))
	require.NoError(t, p.Logout(ctx))

	assert.Equal(t, []bool{true, false}, states)
}
