// Package core defines the interfaces shared between the voice console's
// storage, messaging and HTTP layers.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// EventPublisher publishes fire-and-forget notifications. *nats.Conn
// satisfies it.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}
