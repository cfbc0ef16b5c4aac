package saga

import (
	"context"
	"fmt"
	"log/slog"
)

// Step is one unit of a multi-resource operation with its compensating
// action. Undo may be nil for steps with nothing to roll back.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Saga executes steps in order and, when one fails, runs the compensations
// of the completed steps in reverse. Used where an operation spans resources
// that cannot share a database transaction, like provisioning a user across
// the database and the verification service.
type Saga struct {
	steps []Step
}

func New(steps ...Step) *Saga {
	return &Saga{steps: steps}
}

func (s *Saga) Add(step Step) {
	s.steps = append(s.steps, step)
}

func (s *Saga) Execute(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.Run(ctx); err != nil {
			slog.Error("saga step failed, compensating", "step", step.Name, "error", err)
			s.compensate(ctx, i)
			return fmt.Errorf("step %s failed: %w", step.Name, err)
		}
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, failedStep int) {
	for i := failedStep - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(ctx); err != nil {
			// Nothing more we can do here than record it.
			slog.Error("saga compensation failed", "step", step.Name, "error", err)
		}
	}
}
