package broker

import (
	"context"
	"log/slog"

	"github.com/rl1809/apartment-hub/internal/core/domain"
)

// LogPublisher writes events to the log. It stands in for RabbitMQ when no
// broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.log.InfoContext(ctx, "event",
		"type", event.Type,
		"resident_id", event.ResidentID,
		"entity_id", event.EntityID,
	)
	return nil
}
