package messaging

import (
	"context"
	"time"

	"eduface-backend/internal/capture"

	"github.com/google/uuid"
)

const (
	EnrollQueue     = "enroll_queue"
	VerifyQueue     = "verify_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// FrameRef locates one stored frame and carries the pose angle it was
// captured under.
type FrameRef struct {
	Key   string
	Angle capture.Angle
}

type EnrollTaskPayload struct {
	SubjectId uuid.UUID
	Frames    []FrameRef
}

type VerifyTaskPayload struct {
	CheckInId uuid.UUID
	SubjectId uuid.UUID
	SessionId uuid.UUID
	FrameKeys []string
}

type Publisher interface {
	PublishEnrollTask(ctx context.Context, payload EnrollTaskPayload) error

	PublishVerifyTask(ctx context.Context, payload VerifyTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
