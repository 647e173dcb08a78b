package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradePull/internal/domain/models"
	"TradePull/pkg/cache"
)

// mapCache backs the stores with an in-memory map speaking the cache
// contract: JSON round trips and ErrCacheMiss for absent keys.
type mapCache struct {
	data map[string][]byte
	err  error
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (m *mapCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.err != nil {
		return m.err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	if m.err != nil {
		return m.err
	}
	b, ok := m.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (m *mapCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mapCache) DeleteByPattern(ctx context.Context, pattern string) error { return nil }

func (m *mapCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	for _, k := range keys {
		if _, ok := m.data[k]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (m *mapCache) Increment(ctx context.Context, key string) (int64, error) { return 0, nil }

func (m *mapCache) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return true, nil
}

func (m *mapCache) MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error {
	return nil
}

func (m *mapCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	return nil, nil
}

func (m *mapCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (m *mapCache) Unlock(ctx context.Context, key string) error { return nil }

func TestCredentialStoreRoundTrip(t *testing.T) {
	c := newMapCache()
	store := NewRedisCredentialStore(c)
	ctx := context.Background()

	_, err := store.ActiveAdmin(ctx)
	require.ErrorIs(t, err, models.ErrNotFound)

	cred := &models.Credential{
		APIKey:         "key",
		ClientCode:     "A100",
		SessionToken:   "sess",
		TokenUpdatedAt: time.Now().Truncate(time.Second),
	}
	require.NoError(t, store.Save(ctx, cred))

	got, err := store.ActiveAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, cred.ClientCode, got.ClientCode)
	assert.Equal(t, cred.SessionToken, got.SessionToken)
	assert.True(t, cred.TokenUpdatedAt.Equal(got.TokenUpdatedAt))
}

func TestCredentialStorePropagatesStoreErrors(t *testing.T) {
	c := newMapCache()
	c.err = errors.New("connection refused")
	store := NewRedisCredentialStore(c)

	_, err := store.ActiveAdmin(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound, "a down store is not a missing record")
}

func TestInstanceStoreSetActive(t *testing.T) {
	c := newMapCache()
	store := NewRedisInstanceStore(c)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "instance:7", &models.Instance{ID: 7, Symbol: "SBIN"}, 0))

	require.NoError(t, store.SetActive(ctx, 7, true, "wh-1"))
	inst, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.True(t, inst.Active)
	assert.Equal(t, "wh-1", inst.WebhookID)

	// Deactivation clears the flag but keeps the webhook binding.
	require.NoError(t, store.SetActive(ctx, 7, false, ""))
	inst, err = store.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, inst.Active)
	assert.Equal(t, "wh-1", inst.WebhookID)

	require.ErrorIs(t, store.SetActive(ctx, 99, true, ""), models.ErrNotFound)
}

func TestUserStoreGet(t *testing.T) {
	c := newMapCache()
	store := NewRedisUserStore(c)
	ctx := context.Background()

	_, err := store.Get(ctx, 3)
	require.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, c.Set(ctx, "user:3", &models.User{ID: 3, Username: "trader"}, 0))
	user, err := store.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "trader", user.Username)
}
