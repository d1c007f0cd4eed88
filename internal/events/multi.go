package events

import (
	"context"
	"errors"

	"flightops/internal/logbook"
)

// Multi fans an event out to every publisher. All publishers are attempted; their errors are
// joined.
type Multi []logbook.Publisher

// Publish implements logbook.Publisher.
func (m Multi) Publish(ctx context.Context, ev logbook.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
