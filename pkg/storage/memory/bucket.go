// Package memory provides the in-process Bucket emulator used during
// development, mirroring the document store's role for persistence.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// Bucket stores objects in process memory.
type Bucket struct {
	name string

	mu      sync.Mutex
	objects map[string]object
}

// NewBucket constructs an empty named bucket.
func NewBucket(name string) *Bucket {
	return &Bucket{
		name:    name,
		objects: make(map[string]object),
	}
}

// Upload stores the bytes under path, overwriting any prior object.
func (b *Bucket) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "", fmt.Errorf("storage: object path is required")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("storage: empty object body")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	b.objects[path] = object{data: append([]byte(nil), data...), contentType: contentType}
	b.mu.Unlock()
	return path, nil
}

// PublicURL resolves the development-mode URL for a stored path.
func (b *Bucket) PublicURL(path string) string {
	return fmt.Sprintf("https://storage.swiftdrop.local/%s/%s", b.name, strings.TrimPrefix(path, "/"))
}

// Object returns a stored object's bytes and content type, for tests and the
// dev media endpoint.
func (b *Bucket) Object(path string) ([]byte, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[strings.TrimPrefix(path, "/")]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}
