package usecase

import (
	"context"

	"github.com/collectdesk/collectdesk/internal/logger"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// publish sends an event when a publisher is configured. Publishing failures
// are logged and never fail the operation that produced the event.
func publish(ctx context.Context, events ports.EventPublisher, log logger.Logger, eventType string, data interface{}) {
	if events == nil {
		return
	}
	envelope := ports.NewEnvelope(eventType, logger.CorrelationID(ctx), data)
	if err := events.Publish(ctx, eventType, envelope); err != nil {
		log.Warn(ctx, "Failed to publish event", map[string]interface{}{
			"event_type": eventType,
			"event_id":   envelope.Meta.ID,
			"error":      err.Error(),
		})
	}
}

func loadDelta(mirrorExternalLoad bool) int {
	if mirrorExternalLoad {
		return 1
	}
	return 0
}
