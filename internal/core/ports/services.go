package ports

import (
	"context"
	"errors"

	"github.com/setshaba/mapdata/internal/core/domain"
)

// ErrKeyNotFound is returned by KeyValueStore.Get for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is a durable key-value store. A ttlSeconds of zero means no expiry.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher publishes dataset state changes to a message broker.
type EventPublisher interface {
	PublishStateChange(ctx context.Context, event *domain.StateEvent) error
}

// EventSubscriber subscribes to dataset state changes from a message broker.
type EventSubscriber interface {
	SubscribeStateChanges(ctx context.Context, handler func(ctx context.Context, event *domain.StateEvent) error) error
}
