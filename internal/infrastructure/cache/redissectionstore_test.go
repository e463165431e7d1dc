package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/cellcore/internal/domain/shared"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisSectionStore(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisSectionStore(client, "cellcore:")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, shared.SectionTMSI, shared.KeyLastTMSI, "00000007"))
	assert.Equal(t, "00000007", mr.HGet("cellcore:section:tmsi", "last"))

	require.NoError(t, store.Set(ctx, shared.SectionRegistered, "001010000000001", `{"tmsi":"00000007"}`))
	require.NoError(t, store.Set(ctx, shared.SectionRegistered, "001010000000002", `{}`))

	registered, err := store.Load(ctx, shared.SectionRegistered)
	require.NoError(t, err)
	assert.Len(t, registered, 2)
	assert.Equal(t, `{"tmsi":"00000007"}`, registered["001010000000001"])

	require.NoError(t, store.Delete(ctx, shared.SectionRegistered, "001010000000002"))
	registered, err = store.Load(ctx, shared.SectionRegistered)
	require.NoError(t, err)
	assert.Len(t, registered, 1)

	empty, err := store.Load(ctx, shared.SectionSequence)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisSectionStoreUnreachable(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisSectionStore(client, "cellcore:")
	mr.Close()

	_, err := store.Load(context.Background(), shared.SectionTMSI)
	assert.Error(t, err)
	assert.Error(t, store.Set(context.Background(), shared.SectionTMSI, shared.KeyLastTMSI, "00000001"))
}
