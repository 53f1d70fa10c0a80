// Package artifact stores final binary generation outputs and hands back
// addressable URLs.
package artifact

import (
	"context"
	"errors"
)

// Artifact is one stored binary output.
type Artifact struct {
	Key string
	URL string
}

// Errors returned by artifact stores.
var (
	ErrNotFound   = errors.New("artifact not found")
	ErrInvalidKey = errors.New("invalid artifact key")
)

// Store persists binary outputs. A local-filesystem implementation carries
// the identical contract to object storage and substitutes for it when no
// bucket is configured.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (Artifact, error)
	Get(ctx context.Context, key string) ([]byte, error)
}
