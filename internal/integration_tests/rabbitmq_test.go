package integrationtests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"eduface-backend/internal/messaging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRabbitMQ(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	publisher, receiver := setupRabbitMQContainer(t, ctx)

	t.Run("Publish and Receive EnrollTask", func(t *testing.T) {
		payload := messaging.EnrollTaskPayload{
			SubjectId: uuid.New(),
			Frames: []messaging.FrameRef{
				{Key: "enrollments/abc/frame_000.jpg", Angle: "frontal"},
				{Key: "enrollments/abc/frame_001.jpg", Angle: "left"},
			},
		}
		err := publisher.PublishEnrollTask(ctx, payload)
		require.NoError(t, err)

		select {
		case task := <-receiver.Tasks():
			assert.Equal(t, messaging.EnrollQueue, task.Type())

			var receivedPayload messaging.EnrollTaskPayload
			err := json.Unmarshal(task.Payload(), &receivedPayload)
			require.NoError(t, err)
			assert.Equal(t, payload, receivedPayload)

			err = task.Ack()
			require.NoError(t, err)
		case <-time.After(4 * time.Second):
			t.Fatal("Timed out waiting for task")
		}
	})

	t.Run("Publish and Receive VerifyTask", func(t *testing.T) {
		payload := messaging.VerifyTaskPayload{
			CheckInId: uuid.New(),
			SubjectId: uuid.New(),
			SessionId: uuid.New(),
			FrameKeys: []string{"checkins/xyz/frame_000.jpg", "checkins/xyz/frame_001.jpg"},
		}
		err := publisher.PublishVerifyTask(ctx, payload)
		require.NoError(t, err)

		select {
		case task := <-receiver.Tasks():
			assert.Equal(t, messaging.VerifyQueue, task.Type())

			var receivedPayload messaging.VerifyTaskPayload
			err := json.Unmarshal(task.Payload(), &receivedPayload)
			require.NoError(t, err)
			assert.Equal(t, payload, receivedPayload)

			err = task.Ack()
			require.NoError(t, err)
		case <-time.After(4 * time.Second):
			t.Fatal("Timed out waiting for task")
		}
	})
}
