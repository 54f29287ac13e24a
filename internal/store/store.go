package store

import (
	"context"
	"errors"
)

// Store persists serialized model artifacts keyed by slot name.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	Close() error
}

// ErrArtifactMiss signals that no artifact is stored under the requested name.
var ErrArtifactMiss = errors.New("artifact not found")

// NoopStore implements Store but never keeps anything, so every build retrains.
type NoopStore struct{}

// Load always returns ErrArtifactMiss.
func (NoopStore) Load(context.Context, string) ([]byte, error) {
	return nil, ErrArtifactMiss
}

// Save discards the artifact.
func (NoopStore) Save(context.Context, string, []byte) error { return nil }

// Close is a no-op.
func (NoopStore) Close() error { return nil }
