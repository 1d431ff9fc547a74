package repository

import (
	"context"
	"testing"
	"time"

	"lifestory/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKVStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisKVStore(client, "lifestory:", 0)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := repo.Set(ctx, "timeline_items", []byte(`[]`))
		require.NoError(t, err)

		got, err := repo.Get(ctx, "timeline_items")
		require.NoError(t, err)
		assert.Equal(t, "[]", string(got))
		assert.True(t, s.Exists("lifestory:timeline_items"))
	})

	t.Run("GetNonExistent", func(t *testing.T) {
		got, err := repo.Get(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "gone", []byte("x")))
		require.NoError(t, repo.Delete(ctx, "gone"))

		got, err := repo.Get(ctx, "gone")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("TTL", func(t *testing.T) {
		ttlRepo := NewRedisKVStore(client, "ttl:", time.Minute)
		require.NoError(t, ttlRepo.Set(ctx, "k", []byte("v")))

		s.FastForward(2 * time.Minute)
		got, err := ttlRepo.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisKVStore(nil, "", 0)
		_, err := repo.Get(ctx, "k")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("ServerDown", func(t *testing.T) {
		down, err := miniredis.Run()
		require.NoError(t, err)
		downClient := redis.NewClient(&redis.Options{Addr: down.Addr()})
		defer downClient.Close()
		down.Close()

		err = NewRedisKVStore(downClient, "", 0).Set(ctx, "k", []byte("v"))
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		err := Ping(ctx, client)
		assert.NoError(t, err)
	})

	t.Run("Close", func(t *testing.T) {
		err := Close(client)
		assert.NoError(t, err)
	})
}
