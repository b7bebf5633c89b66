package events

import (
	"context"
	"errors"

	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
)

var _ adapter.Notifier = Fanout(nil)

// Fanout publishes to every notifier and joins their errors.
type Fanout []adapter.Notifier

func (f Fanout) Publish(ctx context.Context, ev model.JobEvent) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
