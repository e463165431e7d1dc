package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/cellcore/internal/domain/shared"
)

// RedisSectionStore keeps each section as one Redis hash.
type RedisSectionStore struct {
	client *redis.Client
	prefix string // Key prefix, e.g., "cellcore:"
}

// NewRedisSectionStore creates a new RedisSectionStore instance
func NewRedisSectionStore(client *redis.Client, prefix string) *RedisSectionStore {
	return &RedisSectionStore{
		client: client,
		prefix: prefix,
	}
}

var _ shared.SectionStore = (*RedisSectionStore)(nil)

func (s *RedisSectionStore) Load(ctx context.Context, section string) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.buildKey(section)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load section %s from redis: %w", section, err)
	}
	return values, nil
}

func (s *RedisSectionStore) Set(ctx context.Context, section, key, value string) error {
	if err := s.client.HSet(ctx, s.buildKey(section), key, value).Err(); err != nil {
		return fmt.Errorf("failed to write %s/%s to redis: %w", section, key, err)
	}
	return nil
}

func (s *RedisSectionStore) Delete(ctx context.Context, section, key string) error {
	if err := s.client.HDel(ctx, s.buildKey(section), key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s/%s from redis: %w", section, key, err)
	}
	return nil
}

func (s *RedisSectionStore) buildKey(section string) string {
	return s.prefix + "section:" + section
}
