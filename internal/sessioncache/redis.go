package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func sessionKey(unitId uuid.UUID) string {
	return "active_session:" + unitId.String()
}

func (c *RedisCache) Get(ctx context.Context, unitId uuid.UUID) (ActiveSession, bool, error) {
	data, err := c.client.Get(ctx, sessionKey(unitId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ActiveSession{}, false, nil
	}
	if err != nil {
		return ActiveSession{}, false, fmt.Errorf("error reading session cache: %w", err)
	}

	var session ActiveSession
	if err := json.Unmarshal(data, &session); err != nil {
		return ActiveSession{}, false, fmt.Errorf("error unmarshalling cached session: %w", err)
	}

	return session, true, nil
}

func (c *RedisCache) Set(ctx context.Context, session ActiveSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s is already expired", session.SessionId)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("error marshalling session: %w", err)
	}

	if err := c.client.Set(ctx, sessionKey(session.UnitId), data, ttl).Err(); err != nil {
		return fmt.Errorf("error writing session cache: %w", err)
	}

	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, unitId uuid.UUID) error {
	if err := c.client.Del(ctx, sessionKey(unitId)).Err(); err != nil {
		return fmt.Errorf("error invalidating session cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
