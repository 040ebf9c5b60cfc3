package storage

import (
	"context"
)

// NoopStore discards artifacts. It backs deployments that want
// analysis results but no synthesized audio on disk.
type NoopStore struct{}

// NewNoopStore creates a store that discards everything
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

// Put discards data and returns a keyed artifact with no URL
func (s *NoopStore) Put(ctx context.Context, key string, contentType string, data []byte) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Artifact{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// Delete is a no-op
func (s *NoopStore) Delete(ctx context.Context, key string) error {
	return nil
}
