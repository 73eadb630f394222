package ports

import (
	"context"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishPolygonDrawn(ctx context.Context, sessionID string, ev *domain.PolygonDrawn) error
	PublishPolygonCleared(ctx context.Context, sessionID string, ev *domain.PolygonCleared) error
	PublishFieldCreated(ctx context.Context, field *domain.Field) error
	PublishFieldDeleted(ctx context.Context, id string) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeFieldEvents(ctx context.Context, handler func(ctx context.Context, subject string, data []byte) error) error
	SubscribeDrawingEvents(ctx context.Context, sessionID string, handler func(ctx context.Context, subject string, data []byte) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// FieldCreator creates a field from validated input. Implemented by the field
// service directly and by the create-field workflow runner.
type FieldCreator interface {
	Create(ctx context.Context, in domain.CreateFieldInput) (*domain.Field, error)
}
