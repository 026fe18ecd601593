package storage

import "context"

// Bucket is the storage protocol the delivery flow depends on: write bytes
// under a path, resolve a public URL for a stored path.
type Bucket interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	PublicURL(path string) string
}
