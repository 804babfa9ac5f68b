package ports

import (
	"context"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

// OutboxRepository is the dispatcher's view of the transactional outbox.
type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event domain.EventEnvelope) error
}

type APIKeyRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error)
	// Rotate stores key and deactivates any other active key with its name.
	Rotate(ctx context.Context, key domain.APIKey) (revoked int64, err error)
	RevokeByName(ctx context.Context, name string) (int64, error)
}
