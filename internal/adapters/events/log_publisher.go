package events

import (
	"context"
	"log"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

// LogPublisher writes events to a logger instead of delivering them. It is
// the default when no webhook is configured.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher(logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.logger.Printf("incident event topic=%s event_id=%s %s/%s actor=%s request_id=%s",
		topic, event.EventID, event.AggregateType, event.AggregateID, event.Actor, event.RequestID)
	return nil
}
