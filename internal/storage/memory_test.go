package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	runStorageContract(t, func(*testing.T) Storage {
		return NewMemoryStorage()
	})
}

func TestMemoryStorageReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	code := &AuthorizationCode{Code: "c", ClientID: "client123", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.PutCode(ctx, code))
	code.ClientID = "mutated"

	got, err := store.GetCode(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "client123", got.ClientID)
}

func TestMemoryStorageCleanupExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	store := NewMemoryStorage()
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.PutCode(ctx, &AuthorizationCode{Code: "dead", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.PutCode(ctx, &AuthorizationCode{Code: "live", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.PutToken(ctx, &AccessToken{Token: "dead", ExpiresAt: now}))
	require.NoError(t, store.PutToken(ctx, &AccessToken{Token: "live", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.PutPending(ctx, "old", &PendingAuthorization{ExpiresAt: now.Add(-time.Minute)}))

	removed, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = store.GetCode(ctx, "dead")
	assert.ErrorIs(t, err, ErrCodeNotFound)
	_, err = store.GetCode(ctx, "live")
	assert.NoError(t, err)
	_, err = store.GetToken(ctx, "dead")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = store.GetToken(ctx, "live")
	assert.NoError(t, err)
	_, err = store.TakePending(ctx, "old")
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestCleanupManager(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	require.NoError(t, store.PutCode(ctx, &AuthorizationCode{Code: "dead", ExpiresAt: time.Now().Add(-time.Second)}))

	cm := NewCleanupManager(store, time.Hour)
	cm.Start(ctx)

	// The first sweep runs on start
	assert.Eventually(t, func() bool {
		_, err := store.GetCode(ctx, "dead")
		return err != nil
	}, time.Second, 10*time.Millisecond)

	cm.Stop()
}

func TestCleanupManagerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cm := NewCleanupManager(NewMemoryStorage(), time.Hour)

	done := make(chan struct{})
	go func() {
		_ = cm.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop on context cancellation")
	}
}
