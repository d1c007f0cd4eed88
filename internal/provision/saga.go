// Package provision creates crew accounts across the user, profile and crew directories.
//
// The records live in independent stores, so creation runs as a saga: each completed step
// registers a compensation, and a failure undoes the completed steps in reverse order.
package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Step is one forward action of a saga and the action that undoes it.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error // nil when the step needs no compensation
}

// Saga runs steps in order and compensates on failure.
type Saga struct {
	logger *logrus.Logger
}

// NewSaga creates a saga runner.
func NewSaga(logger *logrus.Logger) *Saga {
	if logger == nil {
		logger = logrus.New()
	}
	return &Saga{logger: logger}
}

// Run executes steps. When a step fails, the completed steps are undone in reverse order and
// the step error is returned joined with any compensation errors.
//
// Compensations run on a context detached from ctx's cancellation so that a cancelled
// request still cleans up after itself.
func (s *Saga) Run(ctx context.Context, steps ...Step) error {
	done := make([]Step, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return s.compensate(ctx, done, fmt.Errorf("%s: %w", step.Name, err))
		}
		if err := step.Do(ctx); err != nil {
			return s.compensate(ctx, done, fmt.Errorf("%s: %w", step.Name, err))
		}
		done = append(done, step)
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, done []Step, cause error) error {
	errs := []error{cause}
	undoCtx := context.WithoutCancel(ctx)

	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(undoCtx); err != nil {
			s.logger.WithError(err).WithField("step", step.Name).Error("Compensation failed, manual cleanup required")
			errs = append(errs, fmt.Errorf("undo %s: %w", step.Name, err))
			continue
		}
		s.logger.WithField("step", step.Name).Info("Compensated")
	}
	return errors.Join(errs...)
}
