package sessioncache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryCache holds active sessions in a map with expiry checked on read.
// Used for single-node deployments and tests in place of redis.
type InMemoryCache struct {
	lock     sync.Mutex
	sessions map[uuid.UUID]ActiveSession
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{sessions: make(map[uuid.UUID]ActiveSession)}
}

func (c *InMemoryCache) Get(ctx context.Context, unitId uuid.UUID) (ActiveSession, bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	session, ok := c.sessions[unitId]
	if !ok {
		return ActiveSession{}, false, nil
	}

	if time.Now().After(session.ExpiresAt) {
		delete(c.sessions, unitId)
		return ActiveSession{}, false, nil
	}

	return session, true, nil
}

func (c *InMemoryCache) Set(ctx context.Context, session ActiveSession) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.sessions[session.UnitId] = session
	return nil
}

func (c *InMemoryCache) Invalidate(ctx context.Context, unitId uuid.UUID) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.sessions, unitId)
	return nil
}

func (c *InMemoryCache) Close() error {
	return nil
}
