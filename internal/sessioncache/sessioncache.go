package sessioncache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActiveSession is the cached view of an open attendance session, keyed by
// unit so kiosks can resolve the current session without a database read on
// every check-in.
type ActiveSession struct {
	SessionId uuid.UUID `json:"sessionId"`
	UnitId    uuid.UUID `json:"unitId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Cache interface {
	// Get returns the active session for a unit, or false if none is cached.
	Get(ctx context.Context, unitId uuid.UUID) (ActiveSession, bool, error)

	// Set caches the session until it expires.
	Set(ctx context.Context, session ActiveSession) error

	// Invalidate drops the cached session for a unit, e.g. on early close.
	Invalidate(ctx context.Context, unitId uuid.UUID) error

	Close() error
}
