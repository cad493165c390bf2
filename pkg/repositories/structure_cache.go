package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
)

const structureKeyPrefix = "datasource:structure:"

// StructureCache holds introspected datasource structures outside the primary store.
type StructureCache interface {
	// Get returns (nil, nil) on a cache miss.
	Get(ctx context.Context, datasourceID uuid.UUID) (*models.DatasourceStructure, error)
	Set(ctx context.Context, datasourceID uuid.UUID, structure *models.DatasourceStructure) error
	Invalidate(ctx context.Context, datasourceID uuid.UUID) error
}

// StructureKey is the Redis key of a datasource's structure.
func StructureKey(datasourceID uuid.UUID) string {
	return structureKeyPrefix + datasourceID.String()
}

type redisStructureCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStructureCache returns a Redis-backed cache, or a cache that stores
// nothing when client is nil. A zero ttl keeps entries until invalidated.
func NewStructureCache(client *redis.Client, ttl time.Duration) StructureCache {
	if client == nil {
		return disabledStructureCache{}
	}
	return &redisStructureCache{client: client, ttl: ttl}
}

func (c *redisStructureCache) Get(ctx context.Context, datasourceID uuid.UUID) (*models.DatasourceStructure, error) {
	data, err := c.client.Get(ctx, StructureKey(datasourceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached structure: %w", err)
	}

	var structure models.DatasourceStructure
	if err := json.Unmarshal(data, &structure); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached structure: %w", err)
	}
	return &structure, nil
}

func (c *redisStructureCache) Set(ctx context.Context, datasourceID uuid.UUID, structure *models.DatasourceStructure) error {
	if structure == nil {
		return c.Invalidate(ctx, datasourceID)
	}

	data, err := json.Marshal(structure)
	if err != nil {
		return fmt.Errorf("failed to marshal structure: %w", err)
	}
	if err := c.client.Set(ctx, StructureKey(datasourceID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache structure: %w", err)
	}
	return nil
}

func (c *redisStructureCache) Invalidate(ctx context.Context, datasourceID uuid.UUID) error {
	if err := c.client.Del(ctx, StructureKey(datasourceID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate structure: %w", err)
	}
	return nil
}

type disabledStructureCache struct{}

func (disabledStructureCache) Get(context.Context, uuid.UUID) (*models.DatasourceStructure, error) {
	return nil, nil
}

func (disabledStructureCache) Set(context.Context, uuid.UUID, *models.DatasourceStructure) error {
	return nil
}

func (disabledStructureCache) Invalidate(context.Context, uuid.UUID) error {
	return nil
}
