package adapter

import (
	"context"

	"genhub/internal/domain/model"
)

// Notifier announces terminal job transitions. Delivery is best-effort.
type Notifier interface {
	Publish(ctx context.Context, ev model.JobEvent) error
}
