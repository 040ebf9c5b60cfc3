package storage

import (
	"context"
)

// Artifact is a stored pipeline output
type Artifact struct {
	// Key is the store-relative name of the artifact
	Key string `json:"key"`

	// URL is the client-facing reference to the artifact
	URL string `json:"url"`

	// Size is the stored byte count
	Size int64 `json:"size"`

	// ContentType is the MIME type of the stored bytes
	ContentType string `json:"content_type"`
}

// ArtifactStore persists pipeline outputs and hands back client-facing
// references. Implementations must be safe for concurrent use.
type ArtifactStore interface {
	// Put stores data under key and returns the artifact reference
	Put(ctx context.Context, key string, contentType string, data []byte) (*Artifact, error)

	// Delete removes the artifact stored under key. Deleting a missing
	// key is not an error.
	Delete(ctx context.Context, key string) error
}

// AudioKey derives the artifact key for a job's summary audio
func AudioKey(jobID string) string {
	return "summary_" + jobID + ".mp3"
}
