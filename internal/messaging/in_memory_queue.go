package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

type inMemoryTask struct {
	taskType string
	payload  []byte
}

func (t *inMemoryTask) Type() string {
	return t.taskType
}

func (t *inMemoryTask) Payload() []byte {
	return t.payload
}

func (t *inMemoryTask) Ack() error {
	return nil
}

func (t *inMemoryTask) Nack() error {
	return nil
}

func (t *inMemoryTask) Reject() error {
	return nil
}

// InMemoryQueue is a Publisher/Receiver pair backed by a channel, used in
// place of rabbitmq in tests.
type InMemoryQueue struct {
	tasks chan Task
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{tasks: make(chan Task, 100)}
}

func (q *InMemoryQueue) publish(taskType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	q.tasks <- &inMemoryTask{taskType: taskType, payload: body}
	return nil
}

func (q *InMemoryQueue) PublishEnrollTask(ctx context.Context, payload EnrollTaskPayload) error {
	return q.publish(EnrollQueue, payload)
}

func (q *InMemoryQueue) PublishVerifyTask(ctx context.Context, payload VerifyTaskPayload) error {
	return q.publish(VerifyQueue, payload)
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

func (q *InMemoryQueue) Close() {
	close(q.tasks)
}
